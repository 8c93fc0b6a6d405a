package uploads

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campusmess/messhall/internal/app/core"
	"github.com/campusmess/messhall/internal/app/domain/user"
	"github.com/campusmess/messhall/pkg/logger"
)

// MaxSize bounds a single upload.
const MaxSize = 5 << 20

var zeroTime time.Time

// allowed maps sniffed content types to the extension stored objects get.
var allowed = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Service validates images and hands them to an ObjectStore.
type Service struct {
	store   ObjectStore
	maxSize int64
	log     *logger.Logger
	newID   func() string
}

// New constructs an upload service. maxSize <= 0 uses MaxSize.
func New(store ObjectStore, maxSize int64, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("uploads")
	}
	if maxSize <= 0 {
		maxSize = MaxSize
	}
	return &Service{store: store, maxSize: maxSize, log: log, newID: uuid.NewString}
}

// MaxSize is the largest accepted upload in bytes.
func (s *Service) MaxSize() int64 { return s.maxSize }

// Upload stores one image under the principal's facility. The declared
// content type is only a hint; the bytes decide.
func (s *Service) Upload(ctx context.Context, p user.Principal, filename, contentType string, body io.Reader) (Object, error) {
	if p.FacilityID == "" {
		return Object{}, core.NewAccessDeniedError("upload", "", p.ID, "uploads require a facility")
	}
	data, err := io.ReadAll(io.LimitReader(body, s.maxSize+1))
	if err != nil {
		return Object{}, core.NewValidationError("file", "could not be read")
	}
	switch {
	case len(data) == 0:
		return Object{}, core.NewValidationError("file", "is empty")
	case int64(len(data)) > s.maxSize:
		return Object{}, core.NewValidationError("file", fmt.Sprintf("must be at most %d bytes", s.maxSize))
	}

	sniffed := http.DetectContentType(data)
	ext, ok := allowed[sniffed]
	if !ok {
		return Object{}, core.NewValidationError("file", "must be a JPEG, PNG or WebP image")
	}
	if declared := strings.TrimSpace(strings.Split(contentType, ";")[0]); declared != "" && declared != sniffed {
		s.log.WithField("declared", declared).WithField("sniffed", sniffed).Debug("upload content type mismatch")
	}

	key := p.FacilityID + "/" + s.newID() + ext
	obj, err := s.store.Put(ctx, key, sniffed, bytes.NewReader(data))
	if err != nil {
		return Object{}, err
	}
	s.log.WithField("key", key).
		WithField("filename", filename).
		WithField("bytes", len(data)).
		WithField("user_id", p.ID).
		Info("upload stored")
	return obj, nil
}

// Delete removes an object owned by the principal's facility.
func (s *Service) Delete(ctx context.Context, p user.Principal, id string) error {
	if !p.IsAdmin() {
		return core.NewAccessDeniedError("upload", id, p.ID, "only mess admins may delete uploads")
	}
	if p.FacilityID == "" || !strings.HasPrefix(id, p.FacilityID+"/") || strings.Contains(id, "..") {
		return core.NewNotFoundError("upload", id)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.log.WithField("key", id).Info("upload deleted")
	return nil
}
