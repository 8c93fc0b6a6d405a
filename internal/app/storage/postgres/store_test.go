package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campusmess/messhall/internal/app/core"
	"github.com/campusmess/messhall/internal/app/domain/dailymenu"
	"github.com/campusmess/messhall/internal/app/domain/facility"
	"github.com/campusmess/messhall/internal/app/domain/meal"
	"github.com/campusmess/messhall/internal/app/domain/menuitem"
	"github.com/campusmess/messhall/internal/app/domain/rating"
	"github.com/campusmess/messhall/internal/app/storage"
	"github.com/campusmess/messhall/internal/platform/migrations"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestCreateFacilityDuplicateNameIsConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO facilities").
		WithArgs(sqlmock.AnyArg(), "SJ Hall", int64(1), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := store.CreateFacility(context.Background(), facility.Facility{Name: "SJ Hall"})
	if !core.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetMenuItemDecodesDocument(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "version", "doc"}).
		AddRow("it-1", int64(4), []byte(`{"name":"Dal","category":"main_course","ratingStats":{"averageRating":4.5,"totalRatings":2}}`))
	mock.ExpectQuery("SELECT id, version, doc FROM menu_items WHERE id").WithArgs("it-1").WillReturnRows(rows)

	it, err := store.GetMenuItem(context.Background(), "it-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if it.ID != "it-1" || it.Version != 4 || it.Name != "Dal" || it.RatingStats.TotalRatings != 2 {
		t.Fatalf("unexpected item: %+v", it)
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, version, doc FROM daily_menus").WillReturnError(sql.ErrNoRows)

	if _, err := store.GetDailyMenu(context.Background(), "nope"); !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateStaleVersionIsVersionConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("UPDATE menu_items").
		WithArgs("it-1", int64(3), "Dal", "main_course", false, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("it-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := store.UpdateMenuItem(context.Background(), menuitem.Item{
		ID: "it-1", Name: "Dal", Category: menuitem.CategoryMainCourse, IsActive: true, Version: 3,
	})
	if !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestUpdateMissingIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("UPDATE daily_menus").WillReturnRows(sqlmock.NewRows([]string{"created_at"}))
	mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := store.UpdateDailyMenu(context.Background(), dailymenu.Menu{ID: "m-1", Version: 1})
	if !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateIncrementsVersion(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery("UPDATE ratings").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	r, err := store.UpdateRating(context.Background(), rating.Rating{ID: "r-1", Version: 2, IsActive: true})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if r.Version != 3 || !r.CreatedAt.Equal(created) {
		t.Fatalf("unexpected rating after update: version=%d created=%v", r.Version, r.CreatedAt)
	}
}

func TestDriverFailureIsUnavailable(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, version, doc, votes FROM ratings").WillReturnError(errors.New("connection reset"))

	_, err := store.ListRatings(context.Background(), rating.Filter{MenuItemID: "it-1", ActiveOnly: true})
	if !core.IsUnavailable(err) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestListDailyMenusBuildsFilter(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, version, doc FROM daily_menus WHERE facility_id = \$1 AND mess_id = \$2 AND meal_type = \$3 AND menu_date >= \$4 AND status = ANY\(\$5\)`).
		WithArgs("f", "m", "lunch", "2024-05-01", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "doc"}).AddRow("d-1", int64(1), []byte(`{"date":"2024-05-01","mealType":"lunch","status":"published"}`)))

	menus, err := store.ListDailyMenus(context.Background(), dailymenu.Filter{
		FacilityID: "f", MessID: "m", MealType: meal.Lunch, From: "2024-05-01",
		Statuses: []dailymenu.Status{dailymenu.StatusPublished, dailymenu.StatusActive},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(menus) != 1 || menus[0].ID != "d-1" || menus[0].Status != dailymenu.StatusPublished {
		t.Fatalf("unexpected menus: %+v", menus)
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	ctx := context.Background()
	db, err := Open(ctx, dsn, 4, 5*time.Second, 45*time.Second)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := migrations.Apply(ctx, db.DB); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := New(db)
	name := "it-" + time.Now().Format("150405.000000")
	f, err := store.CreateFacility(ctx, facility.Facility{Name: name, Type: facility.TypeCollege, IsActive: true,
		Messes: []facility.Mess{{MessID: name + "_m", Name: "Main", IsActive: true}}})
	if err != nil {
		t.Fatalf("create facility: %v", err)
	}
	if _, err := store.CreateFacility(ctx, facility.Facility{Name: name}); !core.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	byMess, err := store.GetFacilityByMess(ctx, name+"_m")
	if err != nil || byMess.ID != f.ID {
		t.Fatalf("get by mess: %v", err)
	}

	stale := f
	f.Address = "north campus"
	if _, err := store.UpdateFacility(ctx, f); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := store.UpdateFacility(ctx, stale); !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}
