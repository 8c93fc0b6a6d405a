package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/campusmess/messhall/internal/app/core"
	"github.com/campusmess/messhall/internal/app/domain/dailymenu"
	"github.com/campusmess/messhall/internal/app/domain/facility"
	"github.com/campusmess/messhall/internal/app/domain/meal"
	"github.com/campusmess/messhall/internal/app/domain/menuitem"
	"github.com/campusmess/messhall/internal/app/domain/rating"
	"github.com/campusmess/messhall/internal/app/domain/stats"
	"github.com/campusmess/messhall/internal/app/domain/user"
	"github.com/campusmess/messhall/internal/app/storage"
)

func TestFacilityVersioning(t *testing.T) {
	store := New()
	ctx := context.Background()

	f, err := store.CreateFacility(ctx, facility.Facility{Name: "SJ Hall", Type: facility.TypeHostel, IsActive: true})
	if err != nil {
		t.Fatalf("create facility: %v", err)
	}
	if f.Version != 1 {
		t.Fatalf("expected version 1, got %d", f.Version)
	}

	if _, err := store.CreateFacility(ctx, facility.Facility{Name: "SJ Hall"}); !core.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate name, got %v", err)
	}

	stale := f
	f.Messes = append(f.Messes, facility.Mess{MessID: "sj_a_1", Name: "A", IsActive: true})
	updated, err := store.UpdateFacility(ctx, f)
	if err != nil {
		t.Fatalf("update facility: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}

	stale.Address = "somewhere"
	if _, err := store.UpdateFacility(ctx, stale); !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	byMess, err := store.GetFacilityByMess(ctx, "sj_a_1")
	if err != nil || byMess.ID != f.ID {
		t.Fatalf("lookup by mess: %v %+v", err, byMess)
	}
}

func TestReturnedDocumentsAreCopies(t *testing.T) {
	store := New()
	ctx := context.Background()

	f, _ := store.CreateFacility(ctx, facility.Facility{Name: "F", Messes: []facility.Mess{{MessID: "m1", Name: "A"}}})
	f.Messes[0].Name = "mutated"

	got, _ := store.GetFacility(ctx, f.ID)
	if got.Messes[0].Name != "A" {
		t.Fatalf("caller mutation leaked into store: %+v", got.Messes[0])
	}
}

func TestUserEmailUniqueCaseInsensitive(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.CreateUser(ctx, user.User{Email: "Ana@Campus.edu", Role: user.RoleStudent}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := store.CreateUser(ctx, user.User{Email: "ana@campus.edu"}); !core.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	u, err := store.GetUserByEmail(ctx, "ANA@campus.edu")
	if err != nil || u.Email != "ana@campus.edu" {
		t.Fatalf("lookup by email: %v %+v", err, u)
	}
	if _, err := store.GetUser(ctx, "missing"); !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDailyMenuKeyUnique(t *testing.T) {
	store := New()
	ctx := context.Background()

	m := dailymenu.Menu{Date: "2024-05-01", MealType: meal.Lunch, FacilityID: "f", MessID: "m", Status: dailymenu.StatusDraft}
	created, err := store.CreateDailyMenu(ctx, m)
	if err != nil {
		t.Fatalf("create menu: %v", err)
	}
	if _, err := store.CreateDailyMenu(ctx, m); !core.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	got, err := store.GetDailyMenuByKey(ctx, m.Key())
	if err != nil || got.ID != created.ID {
		t.Fatalf("lookup by key: %v", err)
	}

	other := m
	other.MealType = meal.Dinner
	if _, err := store.CreateDailyMenu(ctx, other); err != nil {
		t.Fatalf("different meal type must not collide: %v", err)
	}

	list, _ := store.ListDailyMenus(ctx, dailymenu.Filter{FacilityID: "f", MessID: "m"})
	if len(list) != 2 || list[0].MealType != meal.Lunch {
		t.Fatalf("unexpected listing order: %+v", list)
	}
}

func TestRatingKeyIncludesInactive(t *testing.T) {
	store := New()
	ctx := context.Background()

	r := rating.Rating{StudentID: "s", MenuItemID: "i", MealDate: "2024-05-01", MealType: meal.Lunch, IsActive: true}
	created, err := store.CreateRating(ctx, r)
	if err != nil {
		t.Fatalf("create rating: %v", err)
	}
	created.IsActive = false
	if _, err := store.UpdateRating(ctx, created); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := store.CreateRating(ctx, r); !core.IsConflict(err) {
		t.Fatalf("expected conflict against inactive rating, got %v", err)
	}

	active, _ := store.ListRatings(ctx, rating.Filter{MenuItemID: "i", ActiveOnly: true})
	if len(active) != 0 {
		t.Fatalf("expected no active ratings, got %d", len(active))
	}
}

func TestConcurrentCASLosesNoUpdates(t *testing.T) {
	store := New()
	ctx := context.Background()

	it, err := store.CreateMenuItem(ctx, menuitem.Item{Name: "Dal", IsActive: true})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := storage.Retry(ctx, "test", 100, func(ctx context.Context) error {
				cur, err := store.GetMenuItem(ctx, it.ID)
				if err != nil {
					return err
				}
				cur.RatingStats.Add(4, stats.Categories{Taste: 4})
				_, err = store.UpdateMenuItem(ctx, cur)
				return err
			})
			if err != nil {
				t.Errorf("retry: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := store.GetMenuItem(ctx, it.ID)
	if got.RatingStats.TotalRatings != writers || got.RatingStats.CategoryRatings.Taste.Count != writers {
		t.Fatalf("expected %d ratings, got %d", writers, got.RatingStats.TotalRatings)
	}
}
