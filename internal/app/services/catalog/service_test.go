package catalog

import (
	"context"
	"testing"

	"github.com/campusmess/messhall/internal/app/core"
	"github.com/campusmess/messhall/internal/app/domain/menuitem"
	"github.com/campusmess/messhall/internal/app/domain/stats"
	"github.com/campusmess/messhall/internal/app/domain/user"
	"github.com/campusmess/messhall/internal/app/storage/memory"
	"github.com/campusmess/messhall/pkg/logger"
)

var (
	admin   = user.Principal{ID: "a1", Role: user.RoleMessAdmin, FacilityID: "f1", MessID: "m1"}
	student = user.Principal{ID: "s1", Role: user.RoleStudent, FacilityID: "f1", MessID: "m1"}
	other   = user.Principal{ID: "a2", Role: user.RoleMessAdmin, FacilityID: "f2", MessID: "m2"}
)

func TestItemLifecycle(t *testing.T) {
	svc := New(memory.New(), logger.NewNop())
	ctx := context.Background()

	it, err := svc.Create(ctx, admin, ItemInput{Name: " Paneer Butter Masala ", Category: menuitem.CategoryMainCourse, IsVeg: true, Allergens: []string{"Dairy", "dairy", " nuts "}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if it.Name != "Paneer Butter Masala" || len(it.Allergens) != 2 || !it.IsActive {
		t.Fatalf("unexpected item: %+v", it)
	}

	if _, err := svc.Create(ctx, admin, ItemInput{Name: "paneer butter masala", Category: menuitem.CategoryMainCourse}); !core.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := svc.Create(ctx, other, ItemInput{Name: "Paneer Butter Masala", Category: menuitem.CategoryMainCourse}); err != nil {
		t.Fatalf("same name in another mess should succeed: %v", err)
	}
	if _, err := svc.Create(ctx, student, ItemInput{Name: "Tea", Category: menuitem.CategoryBeverage}); !core.IsForbidden(err) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := svc.Create(ctx, admin, ItemInput{Name: "Tea", Category: "drink"}); !core.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	desc := "rich gravy"
	updated, err := svc.Update(ctx, admin, it.ID, menuitem.Patch{Description: &desc})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Description != desc || updated.Name != it.Name {
		t.Fatalf("unexpected update: %+v", updated)
	}
	if _, err := svc.Update(ctx, other, it.ID, menuitem.Patch{Description: &desc}); !core.IsNotFound(err) {
		t.Fatalf("foreign tenant must not see item, got %v", err)
	}

	if err := svc.Delete(ctx, admin, it.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, student, it.ID); !core.IsNotFound(err) {
		t.Fatalf("students must not see inactive items, got %v", err)
	}
	if got, err := svc.Get(ctx, admin, it.ID); err != nil || got.IsActive {
		t.Fatalf("admin should still see inactive item: %v", err)
	}

	visible, _ := svc.List(ctx, student, menuitem.Filter{IncludeInactive: true})
	if len(visible) != 0 {
		t.Fatalf("students never list inactive items, got %d", len(visible))
	}
	all, _ := svc.List(ctx, admin, menuitem.Filter{IncludeInactive: true})
	if len(all) != 1 {
		t.Fatalf("admin should list inactive items, got %d", len(all))
	}

	// The name of a deleted item is free again.
	if _, err := svc.Create(ctx, admin, ItemInput{Name: "Paneer Butter Masala", Category: menuitem.CategoryMainCourse}); err != nil {
		t.Fatalf("recreate: %v", err)
	}
}

func TestAdjustStats(t *testing.T) {
	svc := New(memory.New(), logger.NewNop())
	ctx := context.Background()
	it, _ := svc.Create(ctx, admin, ItemInput{Name: "Dal", Category: menuitem.CategoryMainCourse})

	for _, v := range []int{4, 2} {
		v := v
		if _, err := svc.AdjustStats(ctx, it.ID, func(rs *stats.RatingStats) { rs.Add(v, stats.Categories{}) }); err != nil {
			t.Fatalf("adjust: %v", err)
		}
	}
	got, _ := svc.Lookup(ctx, it.ID)
	if got.RatingStats.AverageRating != 3 || got.RatingStats.TotalRatings != 2 {
		t.Fatalf("unexpected aggregate: %+v", got.RatingStats)
	}
}
