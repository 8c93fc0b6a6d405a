package directory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmess/messhall/internal/app/core"
	"github.com/campusmess/messhall/internal/app/domain/facility"
	"github.com/campusmess/messhall/internal/app/domain/user"
	"github.com/campusmess/messhall/internal/app/storage/memory"
	"github.com/campusmess/messhall/pkg/logger"
)

func newService(t *testing.T) *Service {
	t.Helper()
	svc := New(memory.New(), logger.NewNop())
	n := 0
	var mu sync.Mutex
	svc.suffix = func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("s%d", n)
	}
	return svc
}

func TestCreateFacility(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	f, err := svc.CreateFacility(ctx, FacilityInput{Name: "SJ Hall", Type: facility.TypeCollege, Mess: MessInput{Name: "SJ Mess"}})
	require.NoError(t, err)
	require.Len(t, f.Messes, 1)
	assert.Equal(t, "sj-hall_sj-mess_s1", f.Messes[0].MessID)
	assert.True(t, f.Messes[0].IsActive)

	_, err = svc.CreateFacility(ctx, FacilityInput{Name: "SJ Hall", Type: facility.TypeHostel, Mess: MessInput{Name: "Other"}})
	assert.True(t, core.IsConflict(err), "expected conflict, got %v", err)

	_, err = svc.CreateFacility(ctx, FacilityInput{Name: "X", Type: "campus"})
	assert.True(t, core.IsValidationError(err), "expected validation error, got %v", err)
}

func TestAddMessNameCollision(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	a, err := svc.CreateFacility(ctx, FacilityInput{Name: "A", Type: facility.TypeCollege, Mess: MessInput{Name: "Main Mess"}})
	require.NoError(t, err)
	b, err := svc.CreateFacility(ctx, FacilityInput{Name: "B", Type: facility.TypeHostel, Mess: MessInput{Name: "Other"}})
	require.NoError(t, err)

	_, err = svc.AddMess(ctx, a.ID, MessInput{Name: "main mess"})
	assert.True(t, core.IsConflict(err), "expected conflict in same facility, got %v", err)

	_, err = svc.AddMess(ctx, b.ID, MessInput{Name: "Main Mess"})
	require.NoError(t, err, "same name in another facility should succeed")

	// A deactivated mess frees its name.
	_, err = svc.DeactivateMess(ctx, a.ID, a.Messes[0].MessID)
	require.NoError(t, err)
	_, err = svc.AddMess(ctx, a.ID, MessInput{Name: "Main Mess"})
	require.NoError(t, err, "name of inactive mess should be reusable")
}

func TestConcurrentAddMessKeepsEveryMess(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	f, err := svc.CreateFacility(ctx, FacilityInput{Name: "Hall", Type: facility.TypeHostel, Mess: MessInput{Name: "M0"}})
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.AddMess(ctx, f.ID, MessInput{Name: fmt.Sprintf("M%d", i)}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	failed := 0
	for err := range errs {
		require.True(t, core.IsUnavailable(err), "unexpected error: %v", err)
		failed++
	}

	got, err := svc.GetFacility(ctx, f.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messes, 1+n-failed, "lost update with %d failures", failed)
}

func TestUpdateMess(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	f, err := svc.CreateFacility(ctx, FacilityInput{Name: "Hall", Type: facility.TypeHostel, Mess: MessInput{Name: "North"}})
	require.NoError(t, err)
	south, err := svc.AddMess(ctx, f.ID, MessInput{Name: "South"})
	require.NoError(t, err)

	capacity := 250
	updated, err := svc.UpdateMess(ctx, f.ID, south.MessID, facility.MessPatch{Capacity: &capacity})
	require.NoError(t, err)
	assert.Equal(t, 250, updated.Capacity)
	assert.Equal(t, "South", updated.Name)

	rename := "NORTH"
	_, err = svc.UpdateMess(ctx, f.ID, south.MessID, facility.MessPatch{Name: &rename})
	assert.True(t, core.IsConflict(err), "expected conflict on rename, got %v", err)

	_, err = svc.UpdateMess(ctx, f.ID, "missing", facility.MessPatch{Capacity: &capacity})
	assert.True(t, core.IsNotFound(err), "expected not found, got %v", err)

	unique, err := svc.IsMessNameUnique(ctx, f.ID, "south", south.MessID)
	require.NoError(t, err)
	assert.True(t, unique, "excluded mess must not collide with itself")
}

func TestDeactivateMessIdempotent(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	f, err := svc.CreateFacility(ctx, FacilityInput{Name: "Hall", Type: facility.TypeHostel, Mess: MessInput{Name: "North"}})
	require.NoError(t, err)
	messID := f.Messes[0].MessID

	for i := 0; i < 2; i++ {
		m, err := svc.DeactivateMess(ctx, f.ID, messID)
		require.NoError(t, err, "deactivate #%d", i+1)
		assert.False(t, m.IsActive, "mess still active after call #%d", i+1)
	}
	_, err = svc.DeactivateMess(ctx, f.ID, "missing")
	assert.True(t, core.IsNotFound(err), "expected not found, got %v", err)

	listed, err := svc.ListFacilities(ctx, true)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Empty(t, listed[0].Messes, "inactive mess should be hidden")
}

func TestFindMessAndAuthorize(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	f, err := svc.CreateFacility(ctx, FacilityInput{Name: "Hall", Type: facility.TypeHostel, Mess: MessInput{Name: "North"}})
	require.NoError(t, err)
	north := f.Messes[0].MessID
	south, err := svc.AddMess(ctx, f.ID, MessInput{Name: "South"})
	require.NoError(t, err)

	owner, m, err := svc.FindMess(ctx, north)
	require.NoError(t, err)
	assert.Equal(t, f.ID, owner.ID)
	assert.Equal(t, "North", m.Name)

	admin := user.Principal{ID: "u1", Role: user.RoleMessAdmin, FacilityID: f.ID, MessID: north}
	assert.NoError(t, Authorize(admin, f.ID))
	assert.True(t, core.IsForbidden(Authorize(admin, "other-facility")))

	student := user.Principal{ID: "u2", Role: user.RoleStudent, FacilityID: f.ID, MessID: north}
	assert.True(t, core.IsForbidden(Authorize(student, f.ID)))

	t.Run("mess scope", func(t *testing.T) {
		assert.NoError(t, AuthorizeMess(admin, f.ID, north))
		assert.True(t, core.IsForbidden(AuthorizeMess(admin, f.ID, south.MessID)), "sibling mess must be off limits")
		assert.True(t, core.IsForbidden(AuthorizeMess(student, f.ID, north)))
		assert.True(t, core.IsForbidden(AuthorizeMess(admin, "other-facility", north)))
	})
}
