//go:build integration && postgres

package httpapi

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"

	app "github.com/campusmess/messhall/internal/app"
	"github.com/campusmess/messhall/internal/app/storage/postgres"
	"github.com/campusmess/messhall/internal/platform/migrations"
	"github.com/campusmess/messhall/pkg/logger"
)

// Integration test against Postgres to ensure migrations and the rating flow
// work with persistence.
func TestIntegrationPostgres(t *testing.T) {
	_ = godotenv.Load() // allow .env for local runs
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping Postgres integration")
	}

	ctx := context.Background()
	db, err := postgres.Open(ctx, dsn, 5, 5*time.Second, 45*time.Second)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := migrations.Apply(ctx, db.DB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, table := range []string{"ratings", "daily_menus", "menu_items", "users", "facilities"} {
		if _, err := db.ExecContext(ctx, "TRUNCATE "+table+" CASCADE"); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}

	store := postgres.New(db)
	application, err := app.New(app.Stores{
		Facilities: store,
		Users:      store,
		MenuItems:  store,
		DailyMenus: store,
		Ratings:    store,
	}, app.Options{JWTSecret: testSecret, Windows: openAllDay(t)}, logger.NewNop())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	h := NewHandler(application, Options{Log: logger.NewNop()})

	s := seedMess(t, h)
	resp := do(h, http.MethodPost, "/api/ratings", s.student.Token, map[string]any{
		"menuItemId": s.itemID, "mealDate": s.today, "mealType": "lunch", "overallRating": 3,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("submit: %d %s", resp.Code, resp.Body.String())
	}
	resp = do(h, http.MethodGet, "/api/daily-menus/"+s.menuID, s.admin.Token, nil)
	var menu struct {
		RatingStats struct {
			TotalRatings int `json:"totalRatings"`
		} `json:"ratingStats"`
	}
	decode(t, resp, &menu)
	if menu.RatingStats.TotalRatings != 1 {
		t.Fatalf("menu stats not persisted: %+v", menu)
	}
	if resp = do(h, http.MethodGet, "/healthz", "", nil); resp.Code != http.StatusOK {
		t.Fatalf("healthz: %d", resp.Code)
	}
}
