package uploads

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmess/messhall/internal/app/core"
	"github.com/campusmess/messhall/internal/app/domain/user"
	"github.com/campusmess/messhall/pkg/logger"
)

var (
	admin   = user.Principal{ID: "a1", Role: user.RoleMessAdmin, FacilityID: "f1", MessID: "m1"}
	student = user.Principal{ID: "s1", Role: user.RoleStudent, FacilityID: "f1", MessID: "m1"}
	other   = user.Principal{ID: "a2", Role: user.RoleMessAdmin, FacilityID: "f2", MessID: "m2"}
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func newService(max int64) (*Service, *MemoryStore) {
	store := NewMemoryStore("/uploads")
	svc := New(store, max, logger.NewNop())
	svc.newID = func() string { return "fixed" }
	return svc, store
}

func TestUploadStoresImagesUnderFacility(t *testing.T) {
	svc, store := newService(0)
	obj, err := svc.Upload(context.Background(), student, "dal.png", "image/png", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.Equal(t, "f1/fixed.png", obj.ID)
	assert.Equal(t, "/uploads/f1/fixed.png", obj.URL)
	assert.Equal(t, 1, store.Len())

	rec := httptest.NewRecorder()
	store.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, obj.URL, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, pngHeader, body)
}

func TestUploadRejects(t *testing.T) {
	svc, store := newService(64)
	ctx := context.Background()

	_, err := svc.Upload(ctx, student, "notes.txt", "image/png", strings.NewReader("definitely not an image"))
	assert.True(t, core.IsValidationError(err), "bytes decide, not the header: %v", err)

	_, err = svc.Upload(ctx, student, "empty.png", "image/png", bytes.NewReader(nil))
	assert.True(t, core.IsValidationError(err))

	big := append(append([]byte{}, pngHeader...), make([]byte, 64)...)
	_, err = svc.Upload(ctx, student, "big.png", "image/png", bytes.NewReader(big))
	assert.True(t, core.IsValidationError(err))

	_, err = svc.Upload(ctx, user.Principal{ID: "x"}, "dal.png", "image/png", bytes.NewReader(pngHeader))
	assert.True(t, core.IsForbidden(err))

	assert.Zero(t, store.Len())
}

func TestDeleteIsScopedToFacility(t *testing.T) {
	svc, store := newService(0)
	ctx := context.Background()
	obj, err := svc.Upload(ctx, admin, "dal.png", "image/png", bytes.NewReader(pngHeader))
	require.NoError(t, err)

	assert.True(t, core.IsForbidden(svc.Delete(ctx, student, obj.ID)))
	assert.True(t, core.IsNotFound(svc.Delete(ctx, other, obj.ID)))
	assert.True(t, core.IsNotFound(svc.Delete(ctx, admin, "f1/../f2/x.png")))
	require.NoError(t, svc.Delete(ctx, admin, obj.ID))
	assert.Zero(t, store.Len())
}
