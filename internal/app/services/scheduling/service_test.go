package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmess/messhall/internal/app/core"
	"github.com/campusmess/messhall/internal/app/domain/dailymenu"
	"github.com/campusmess/messhall/internal/app/domain/meal"
	"github.com/campusmess/messhall/internal/app/domain/menuitem"
	"github.com/campusmess/messhall/internal/app/domain/stats"
	"github.com/campusmess/messhall/internal/app/domain/user"
	"github.com/campusmess/messhall/internal/app/services/catalog"
	"github.com/campusmess/messhall/internal/app/storage/memory"
	"github.com/campusmess/messhall/pkg/logger"
)

var (
	admin   = user.Principal{ID: "a1", Role: user.RoleMessAdmin, FacilityID: "f1", MessID: "m1"}
	student = user.Principal{ID: "s1", Role: user.RoleStudent, FacilityID: "f1", MessID: "m1"}
	other   = user.Principal{ID: "a2", Role: user.RoleMessAdmin, FacilityID: "f2", MessID: "m2"}
)

type fixture struct {
	svc   *Service
	items *catalog.Service
	dal   menuitem.Item
	rice  menuitem.Item
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	items := catalog.New(store, logger.NewNop())
	ctx := context.Background()
	dal, err := items.Create(ctx, admin, catalog.ItemInput{Name: "Dal", Category: menuitem.CategoryMainCourse})
	require.NoError(t, err)
	rice, err := items.Create(ctx, admin, catalog.ItemInput{Name: "Rice", Category: menuitem.CategoryRice})
	require.NoError(t, err)

	svc := New(store, items, logger.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 1, 10, 12, 30, 0, 0, time.UTC) }
	return &fixture{svc: svc, items: items, dal: dal, rice: rice}
}

func TestPublishPreconditions(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	m, err := fx.svc.Create(ctx, admin, MenuInput{Date: "2024-01-10", MealType: meal.Lunch})
	require.NoError(t, err)
	assert.Equal(t, dailymenu.StatusDraft, m.Status)

	_, err = fx.svc.Publish(ctx, admin, m.ID)
	assert.True(t, core.IsInvalidState(err), "empty menu must not publish: %v", err)

	_, err = fx.svc.AddItem(ctx, admin, m.ID, EntryInput{MenuItemID: fx.dal.ID, PlannedQuantity: 100, CostPerServing: 20})
	require.NoError(t, err)

	published, err := fx.svc.Publish(ctx, admin, m.ID)
	require.NoError(t, err)
	assert.Equal(t, dailymenu.StatusPublished, published.Status)
	require.NotNil(t, published.PublishedAt)

	_, err = fx.svc.Publish(ctx, admin, m.ID)
	assert.True(t, core.IsConflict(err), "second publish must conflict: %v", err)

	_, err = fx.svc.Activate(ctx, admin, m.ID)
	require.NoError(t, err)
	_, err = fx.svc.Publish(ctx, admin, m.ID)
	assert.True(t, core.IsInvalidState(err), "publishing an active menu is invalid: %v", err)
}

func TestCreateRejectsDuplicateKeyAndBadInput(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Create(ctx, admin, MenuInput{Date: "2024-01-10", MealType: meal.Dinner})
	require.NoError(t, err)
	_, err = fx.svc.Create(ctx, admin, MenuInput{Date: "2024-01-10", MealType: meal.Dinner})
	assert.True(t, core.IsConflict(err))

	_, err = fx.svc.Create(ctx, admin, MenuInput{Date: "10/01/2024", MealType: "brunch"})
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "date")
	assert.Contains(t, verr.Fields, "mealType")

	_, err = fx.svc.Create(ctx, student, MenuInput{Date: "2024-01-11", MealType: meal.Dinner})
	assert.True(t, core.IsForbidden(err))

	_, err = fx.svc.Create(ctx, other, MenuInput{Date: "2024-01-11", MealType: meal.Dinner, Items: []EntryInput{{MenuItemID: fx.dal.ID}}})
	assert.True(t, core.IsNotFound(err), "items of another mess are invisible: %v", err)
}

func TestAddItemRules(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	m, err := fx.svc.Create(ctx, admin, MenuInput{Date: "2024-01-10", MealType: meal.Lunch, Items: []EntryInput{{MenuItemID: fx.dal.ID}}})
	require.NoError(t, err)

	_, err = fx.svc.AddItem(ctx, admin, m.ID, EntryInput{MenuItemID: fx.dal.ID})
	assert.True(t, core.IsConflict(err))

	_, err = fx.svc.AddItem(ctx, admin, m.ID, EntryInput{MenuItemID: "missing"})
	assert.True(t, core.IsNotFound(err))

	require.NoError(t, fx.items.Delete(ctx, admin, fx.rice.ID))
	_, err = fx.svc.AddItem(ctx, admin, m.ID, EntryInput{MenuItemID: fx.rice.ID})
	assert.True(t, core.IsNotFound(err), "inactive items cannot be served")

	_, err = fx.svc.Cancel(ctx, admin, m.ID)
	require.NoError(t, err)
	_, err = fx.svc.RemoveItem(ctx, admin, m.ID, fx.dal.ID)
	assert.True(t, core.IsInvalidState(err), "terminal menus are frozen")
}

func TestUpdateItemStatusRecordsReadyOnce(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	m, _ := fx.svc.Create(ctx, admin, MenuInput{Date: "2024-01-10", MealType: meal.Lunch, Items: []EntryInput{{MenuItemID: fx.dal.ID}}})

	m, err := fx.svc.UpdateItemStatus(ctx, admin, m.ID, fx.dal.ID, dailymenu.PrepInProgress, nil)
	require.NoError(t, err)
	assert.Nil(t, m.Items[0].ActualReadyAt)

	prepared := 80
	m, err = fx.svc.UpdateItemStatus(ctx, admin, m.ID, fx.dal.ID, dailymenu.PrepReady, &prepared)
	require.NoError(t, err)
	require.NotNil(t, m.Items[0].ActualReadyAt)
	first := *m.Items[0].ActualReadyAt
	assert.Equal(t, 80, m.Items[0].PreparedQuantity)

	fx.svc.now = func() time.Time { return first.Add(time.Hour) }
	m, err = fx.svc.UpdateItemStatus(ctx, admin, m.ID, fx.dal.ID, dailymenu.PrepReady, nil)
	require.NoError(t, err)
	assert.True(t, m.Items[0].ActualReadyAt.Equal(first), "re-entering ready must not move the timestamp")

	// Skipping states is accepted.
	m, err = fx.svc.UpdateItemStatus(ctx, admin, m.ID, fx.dal.ID, dailymenu.PrepNotStarted, nil)
	require.NoError(t, err)
	assert.Equal(t, dailymenu.PrepNotStarted, m.Items[0].PreparationStatus)

	_, err = fx.svc.UpdateItemStatus(ctx, admin, m.ID, fx.dal.ID, "burnt", nil)
	assert.True(t, core.IsValidationError(err))
}

func TestTransitions(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	m, _ := fx.svc.Create(ctx, admin, MenuInput{Date: "2024-01-10", MealType: meal.Lunch, Items: []EntryInput{{MenuItemID: fx.dal.ID}}})

	_, err := fx.svc.Complete(ctx, admin, m.ID)
	assert.True(t, core.IsInvalidState(err), "draft cannot complete")

	_, err = fx.svc.Publish(ctx, admin, m.ID)
	require.NoError(t, err)
	_, err = fx.svc.Activate(ctx, admin, m.ID)
	require.NoError(t, err)
	done, err := fx.svc.Complete(ctx, admin, m.ID)
	require.NoError(t, err)
	assert.Equal(t, dailymenu.StatusCompleted, done.Status)

	_, err = fx.svc.Cancel(ctx, admin, m.ID)
	assert.True(t, core.IsInvalidState(err), "completed menus cannot be cancelled")

	_, err = fx.svc.Activate(ctx, other, m.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestStudentVisibility(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	draft, _ := fx.svc.Create(ctx, admin, MenuInput{Date: "2024-01-10", MealType: meal.Breakfast, Items: []EntryInput{{MenuItemID: fx.dal.ID}}})
	live, _ := fx.svc.Create(ctx, admin, MenuInput{Date: "2024-01-10", MealType: meal.Lunch, Items: []EntryInput{{MenuItemID: fx.dal.ID}}})
	_, err := fx.svc.Publish(ctx, admin, live.ID)
	require.NoError(t, err)

	_, err = fx.svc.Get(ctx, student, draft.ID)
	assert.True(t, core.IsNotFound(err))

	menus, err := fx.svc.List(ctx, student, dailymenu.Filter{From: "2024-01-10", To: "2024-01-10"})
	require.NoError(t, err)
	require.Len(t, menus, 1)
	assert.Equal(t, live.ID, menus[0].ID)

	menus, err = fx.svc.List(ctx, student, dailymenu.Filter{Statuses: []dailymenu.Status{dailymenu.StatusDraft}})
	require.NoError(t, err)
	assert.Empty(t, menus)

	menus, err = fx.svc.List(ctx, admin, dailymenu.Filter{})
	require.NoError(t, err)
	assert.Len(t, menus, 2)
}

func TestAdjustStatsRefreshesParticipation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	m, _ := fx.svc.Create(ctx, admin, MenuInput{Date: "2024-01-10", MealType: meal.Lunch, ExpectedStudents: 4})

	m, err := fx.svc.AdjustStats(ctx, m.ID, func(rs *stats.RatingStats) { rs.Add(5, stats.Categories{Taste: 5}) })
	require.NoError(t, err)
	assert.Equal(t, 0.25, m.ParticipationRate)

	students := 0
	m, err = fx.svc.UpdateDetails(ctx, admin, m.ID, Details{ExpectedStudents: &students})
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.ParticipationRate)
}
