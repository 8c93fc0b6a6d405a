package mongo

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/campusmess/messhall/internal/app/core"
	"github.com/campusmess/messhall/internal/app/domain/meal"
	"github.com/campusmess/messhall/internal/app/domain/rating"
	"github.com/campusmess/messhall/internal/app/storage"
)

func TestDateRange(t *testing.T) {
	require.Nil(t, dateRange("", ""))
	require.Equal(t, bson.M{"$gte": "2024-05-01"}, dateRange("2024-05-01", ""))
	require.Equal(t, bson.M{"$gte": "2024-05-01", "$lte": "2024-05-07"}, dateRange("2024-05-01", "2024-05-07"))
}

func TestStoreIntegration(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set; skipping mongo integration test")
	}

	ctx := context.Background()
	dbName := "messhall_test_" + time.Now().Format("150405")
	store, err := Open(ctx, Options{URI: uri, Database: dbName, ConnectTimeout: 5 * time.Second, MaxIdleTime: 45 * time.Second})
	require.NoError(t, err)
	defer func() {
		_ = store.db.Drop(ctx)
		_ = store.Close(ctx)
	}()

	r := rating.Rating{StudentID: "s1", MenuItemID: "i1", MealDate: "2024-05-01", MealType: meal.Lunch, OverallRating: 4, IsActive: true}
	created, err := store.CreateRating(ctx, r)
	require.NoError(t, err)

	_, err = store.CreateRating(ctx, r)
	require.True(t, core.IsConflict(err), "expected conflict, got %v", err)

	stale := created
	created.RecordVote("s2", rating.VoteUp, time.Now())
	updated, err := store.UpdateRating(ctx, created)
	require.NoError(t, err)
	require.Equal(t, int64(2), updated.Version)

	_, err = store.UpdateRating(ctx, stale)
	require.True(t, errors.Is(err, storage.ErrVersionConflict), "expected version conflict, got %v", err)

	got, err := store.GetRatingByKey(ctx, r.Key())
	require.NoError(t, err)
	require.Len(t, got.Votes, 1)
	require.Equal(t, 1, got.Upvotes)
}
