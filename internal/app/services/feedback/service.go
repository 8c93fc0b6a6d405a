package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/campusmess/messhall/internal/app/core"
	"github.com/campusmess/messhall/internal/app/domain/dailymenu"
	"github.com/campusmess/messhall/internal/app/domain/meal"
	"github.com/campusmess/messhall/internal/app/domain/menuitem"
	"github.com/campusmess/messhall/internal/app/domain/rating"
	"github.com/campusmess/messhall/internal/app/domain/stats"
	"github.com/campusmess/messhall/internal/app/domain/user"
	"github.com/campusmess/messhall/internal/app/metrics"
	"github.com/campusmess/messhall/internal/app/storage"
	"github.com/campusmess/messhall/pkg/logger"
)

// Limits on free-form rating content.
const (
	MaxReviewLength = 1000
	MaxPhotos       = 5
)

// Items resolves menu items and maintains their aggregates.
type Items interface {
	Lookup(ctx context.Context, id string) (menuitem.Item, error)
	AdjustStats(ctx context.Context, id string, fn func(*stats.RatingStats)) (menuitem.Item, error)
}

// Menus resolves meal instances and maintains their aggregates.
type Menus interface {
	Get(ctx context.Context, p user.Principal, id string) (dailymenu.Menu, error)
	Resolve(ctx context.Context, p user.Principal, date string, mealType meal.Type) (dailymenu.Menu, error)
	AdjustStats(ctx context.Context, menuID string, fn func(*stats.RatingStats)) (dailymenu.Menu, error)
}

// Windows decides whether a meal is open for feedback.
type Windows interface {
	Allowed(mealType meal.Type, at time.Time) bool
	Today(at time.Time) string
}

// SubmitInput carries a new rating.
type SubmitInput struct {
	MenuItemID    string
	MealDate      string
	MealType      meal.Type
	OverallRating int
	Categories    stats.Categories
	Review        string
	Photos        []rating.Photo
	Emoji         string
	IsAnonymous   bool
}

// UpdateInput edits a rating; nil fields are left alone.
type UpdateInput struct {
	OverallRating *int
	Categories    *stats.Categories
	Review        *string
	Photos        *[]rating.Photo
	Emoji         *string
	IsAnonymous   *bool
}

// Service owns ratings and keeps the menu item and daily menu aggregates in
// step with the set of active ratings.
type Service struct {
	ratings  storage.RatingStore
	items    Items
	menus    Menus
	windows  Windows
	notifier Notifier
	log      *logger.Logger
	now      func() time.Time
}

// New constructs a feedback service. A nil notifier drops events.
func New(ratings storage.RatingStore, items Items, menus Menus, windows Windows, notifier Notifier, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("feedback")
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		ratings:  ratings,
		items:    items,
		menus:    menus,
		windows:  windows,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// Submit records a student's rating of one item at one meal and folds it into
// both aggregates.
func (s *Service) Submit(ctx context.Context, p user.Principal, in SubmitInput) (rating.Rating, error) {
	if !p.IsStudent() {
		return rating.Rating{}, core.NewAccessDeniedError("rating", "", p.ID, "only students may submit ratings")
	}
	r, err := s.validateSubmit(p, in)
	if err != nil {
		return rating.Rating{}, err
	}

	switch _, err := s.ratings.GetRatingByKey(ctx, r.Key()); {
	case err == nil:
		return rating.Rating{}, core.NewConflictError("rating", in.MenuItemID, "this item was already rated for this meal")
	case !core.IsNotFound(err):
		return rating.Rating{}, err
	}

	it, err := s.items.Lookup(ctx, r.MenuItemID)
	if err != nil {
		return rating.Rating{}, err
	}
	if !it.IsActive || !p.InTenant(it.FacilityID, it.MessID) {
		return rating.Rating{}, core.NewNotFoundError("menu item", r.MenuItemID)
	}
	menu, err := s.menus.Resolve(ctx, p, r.MealDate, r.MealType)
	if err != nil {
		return rating.Rating{}, err
	}
	if menu.FindItem(r.MenuItemID) < 0 {
		return rating.Rating{}, core.NewNotFoundError("menu item", r.MenuItemID)
	}

	now := s.now()
	if r.MealDate != s.windows.Today(now) || !s.windows.Allowed(r.MealType, now) {
		return rating.Rating{}, core.NewInvalidStateError("rating", fmt.Sprintf("%s feedback for %s is not open now", r.MealType, r.MealDate))
	}

	r.DailyMenuID = menu.ID
	r.CreatedAt = now.UTC()
	created, err := s.ratings.CreateRating(ctx, r)
	if err != nil {
		return rating.Rating{}, err
	}

	if err := s.adjust(ctx, created.MenuItemID, created.DailyMenuID, func(rs *stats.RatingStats) {
		rs.Add(created.OverallRating, created.Categories)
	}); err != nil {
		s.log.WithError(err).WithField("rating_id", created.ID).Error("rating stored but aggregates not updated")
		return rating.Rating{}, core.Unavailable("update rating aggregates", err)
	}

	metrics.RecordRating("submitted", string(created.MealType))
	s.publish(EventSubmitted, created)
	s.log.WithField("rating_id", created.ID).
		WithField("menu_item_id", created.MenuItemID).
		WithField("meal", fmt.Sprintf("%s/%s", created.MealDate, created.MealType)).
		Info("rating submitted")
	return created, nil
}

// Update edits the owner's rating inside the edit window. A change of score
// replaces the old contribution in both aggregates.
func (s *Service) Update(ctx context.Context, p user.Principal, id string, in UpdateInput) (rating.Rating, error) {
	if err := validateUpdate(in); err != nil {
		return rating.Rating{}, err
	}

	var before, after rating.Rating
	err := s.mutate(ctx, "update rating", id, func(r *rating.Rating) error {
		if err := s.ownerCheck(p, *r); err != nil {
			return err
		}
		now := s.now()
		if !r.CanEdit(now) {
			return core.NewInvalidStateError("rating", "ratings can only be edited within 24 hours")
		}
		before = rating.Clone(*r)
		if in.Categories != nil {
			r.Categories = *in.Categories
			r.OverallRating = rating.DeriveOverall(r.Categories)
		}
		if in.OverallRating != nil {
			r.OverallRating = *in.OverallRating
		}
		if r.OverallRating == 0 {
			return core.NewValidationError("overallRating", "an overall score or at least one category is required")
		}
		if in.Review != nil {
			r.Review = strings.TrimSpace(*in.Review)
		}
		if in.Photos != nil {
			r.Photos = append([]rating.Photo(nil), (*in.Photos)...)
		}
		if in.Emoji != nil {
			r.Emoji = *in.Emoji
		}
		if in.IsAnonymous != nil {
			r.IsAnonymous = *in.IsAnonymous
		}
		r.EditedAt = &now
		return nil
	}, &after)
	if err != nil {
		return rating.Rating{}, err
	}

	if before.OverallRating != after.OverallRating || before.Categories != after.Categories {
		if err := s.adjust(ctx, after.MenuItemID, after.DailyMenuID, func(rs *stats.RatingStats) {
			rs.Replace(before.OverallRating, before.Categories, after.OverallRating, after.Categories)
		}); err != nil {
			s.log.WithError(err).WithField("rating_id", id).Error("rating edited but aggregates not corrected")
			return rating.Rating{}, core.Unavailable("update rating aggregates", err)
		}
	}

	metrics.RecordRating("updated", string(after.MealType))
	s.publish(EventUpdated, after)
	s.log.WithField("rating_id", id).Info("rating updated")
	return after, nil
}

// Delete soft-deletes the owner's rating inside the delete window and takes
// its contribution back out of both aggregates.
func (s *Service) Delete(ctx context.Context, p user.Principal, id string) error {
	var removed rating.Rating
	err := s.mutate(ctx, "delete rating", id, func(r *rating.Rating) error {
		if err := s.ownerCheck(p, *r); err != nil {
			return err
		}
		if !r.CanDelete(s.now()) {
			return core.NewInvalidStateError("rating", "ratings can only be deleted within 1 hour")
		}
		r.IsActive = false
		return nil
	}, &removed)
	if err != nil {
		return err
	}

	if err := s.adjust(ctx, removed.MenuItemID, removed.DailyMenuID, func(rs *stats.RatingStats) {
		rs.Remove(removed.OverallRating, removed.Categories)
	}); err != nil {
		s.log.WithError(err).WithField("rating_id", id).Error("rating deleted but aggregates not rolled back")
		return core.Unavailable("update rating aggregates", err)
	}

	metrics.RecordRating("deleted", string(removed.MealType))
	s.publish(EventDeleted, removed)
	s.log.WithField("rating_id", id).Info("rating deleted")
	return nil
}

// Vote records a helpfulness vote, replacing any earlier vote by the same
// user.
func (s *Service) Vote(ctx context.Context, p user.Principal, id string, vt rating.VoteType) (rating.Rating, error) {
	if !vt.Valid() {
		return rating.Rating{}, core.NewValidationError("voteType", "must be up or down")
	}
	var updated rating.Rating
	err := s.mutate(ctx, "vote on rating", id, func(r *rating.Rating) error {
		if !p.InTenant(r.FacilityID, r.MessID) {
			return core.NewNotFoundError("rating", id)
		}
		if r.StudentID == p.ID {
			return core.NewAccessDeniedError("rating", id, p.ID, "cannot vote on your own rating")
		}
		r.RecordVote(p.ID, vt, s.now())
		return nil
	}, &updated)
	if err != nil {
		return rating.Rating{}, err
	}
	metrics.RecordRating("voted", string(updated.MealType))
	s.log.WithField("rating_id", id).WithField("vote", vt).Debug("vote recorded")
	return redact(p, updated), nil
}

// Get returns one active rating in the principal's tenant.
func (s *Service) Get(ctx context.Context, p user.Principal, id string) (rating.Rating, error) {
	r, err := s.ratings.GetRating(ctx, id)
	if err != nil {
		return rating.Rating{}, err
	}
	if !r.IsActive || !p.InTenant(r.FacilityID, r.MessID) {
		return rating.Rating{}, core.NewNotFoundError("rating", id)
	}
	return redact(p, r), nil
}

// ListItemRatings returns the active ratings of an item, newest first.
// Anonymous reviewers are hidden from everyone but themselves.
func (s *Service) ListItemRatings(ctx context.Context, p user.Principal, menuItemID string) ([]rating.Rating, error) {
	it, err := s.items.Lookup(ctx, menuItemID)
	if err != nil {
		return nil, err
	}
	if !p.InTenant(it.FacilityID, it.MessID) {
		return nil, core.NewNotFoundError("menu item", menuItemID)
	}
	list, err := s.ratings.ListRatings(ctx, rating.Filter{
		FacilityID: it.FacilityID,
		MessID:     it.MessID,
		MenuItemID: menuItemID,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i] = redact(p, list[i])
	}
	return list, nil
}

// ListMyRatings returns the student's own active ratings, newest first.
func (s *Service) ListMyRatings(ctx context.Context, p user.Principal, from, to string) ([]rating.Rating, error) {
	return s.ratings.ListRatings(ctx, rating.Filter{StudentID: p.ID, From: from, To: to, ActiveOnly: true})
}

// ReconcileItem rebuilds an item's aggregate from its active ratings.
func (s *Service) ReconcileItem(ctx context.Context, p user.Principal, menuItemID string) (menuitem.Item, error) {
	if !p.IsAdmin() {
		return menuitem.Item{}, core.NewAccessDeniedError("menu item", menuItemID, p.ID, "only mess admins may reconcile aggregates")
	}
	it, err := s.items.Lookup(ctx, menuItemID)
	if err != nil {
		return menuitem.Item{}, err
	}
	if !p.InTenant(it.FacilityID, it.MessID) {
		return menuitem.Item{}, core.NewNotFoundError("menu item", menuItemID)
	}
	list, err := s.ratings.ListRatings(ctx, rating.Filter{MenuItemID: menuItemID, ActiveOnly: true})
	if err != nil {
		return menuitem.Item{}, err
	}
	var fresh stats.RatingStats
	for _, r := range list {
		fresh.Add(r.OverallRating, r.Categories)
	}
	updated, err := s.items.AdjustStats(ctx, menuItemID, func(rs *stats.RatingStats) { *rs = fresh })
	if err != nil {
		return menuitem.Item{}, err
	}
	s.log.WithField("menu_item_id", menuItemID).
		WithField("was", it.RatingStats.AverageRating).
		WithField("now", updated.RatingStats.AverageRating).
		WithField("ratings", fresh.TotalRatings).
		Info("menu item aggregate reconciled")

	// The item's ratings also feed the daily menus they were given under.
	touched := make(map[string]struct{})
	for _, r := range list {
		if _, seen := touched[r.DailyMenuID]; seen || r.DailyMenuID == "" {
			continue
		}
		touched[r.DailyMenuID] = struct{}{}
		if _, err := s.rebuildMenu(ctx, r.DailyMenuID); err != nil {
			return menuitem.Item{}, err
		}
	}
	return updated, nil
}

// ReconcileMenu recomputes a daily menu's aggregate from its active ratings.
func (s *Service) ReconcileMenu(ctx context.Context, p user.Principal, menuID string) (dailymenu.Menu, error) {
	if !p.IsAdmin() {
		return dailymenu.Menu{}, core.NewAccessDeniedError("daily menu", menuID, p.ID, "only mess admins may reconcile aggregates")
	}
	if _, err := s.menus.Get(ctx, p, menuID); err != nil {
		return dailymenu.Menu{}, err
	}
	return s.rebuildMenu(ctx, menuID)
}

func (s *Service) rebuildMenu(ctx context.Context, menuID string) (dailymenu.Menu, error) {
	list, err := s.ratings.ListRatings(ctx, rating.Filter{DailyMenuID: menuID, ActiveOnly: true})
	if err != nil {
		return dailymenu.Menu{}, err
	}
	var fresh stats.RatingStats
	for _, r := range list {
		fresh.Add(r.OverallRating, r.Categories)
	}
	updated, err := s.menus.AdjustStats(ctx, menuID, func(rs *stats.RatingStats) { *rs = fresh })
	if err != nil {
		return dailymenu.Menu{}, fmt.Errorf("daily menu %s: %w", menuID, err)
	}
	s.log.WithField("daily_menu_id", menuID).
		WithField("ratings", fresh.TotalRatings).
		WithField("participation", updated.ParticipationRate).
		Info("daily menu aggregate reconciled")
	return updated, nil
}

func (s *Service) adjust(ctx context.Context, itemID, menuID string, fn func(*stats.RatingStats)) error {
	if _, err := s.items.AdjustStats(ctx, itemID, fn); err != nil {
		return fmt.Errorf("menu item %s: %w", itemID, err)
	}
	if _, err := s.menus.AdjustStats(ctx, menuID, fn); err != nil {
		return fmt.Errorf("daily menu %s: %w", menuID, err)
	}
	return nil
}

func (s *Service) mutate(ctx context.Context, op, id string, fn func(*rating.Rating) error, out *rating.Rating) error {
	return storage.Retry(ctx, op, storage.DefaultAttempts, func(ctx context.Context) error {
		r, err := s.ratings.GetRating(ctx, id)
		if err != nil {
			return err
		}
		if !r.IsActive {
			return core.NewNotFoundError("rating", id)
		}
		if err := fn(&r); err != nil {
			return err
		}
		updated, err := s.ratings.UpdateRating(ctx, r)
		if err != nil {
			return err
		}
		*out = updated
		return nil
	})
}

func (s *Service) ownerCheck(p user.Principal, r rating.Rating) error {
	if r.StudentID != p.ID {
		return core.NewAccessDeniedError("rating", r.ID, p.ID, "only the author may change a rating")
	}
	return nil
}

func (s *Service) publish(kind EventType, r rating.Rating) {
	s.notifier.Notify(Event{
		Type:          kind,
		RatingID:      r.ID,
		FacilityID:    r.FacilityID,
		MessID:        r.MessID,
		MenuItemID:    r.MenuItemID,
		DailyMenuID:   r.DailyMenuID,
		MealDate:      r.MealDate,
		MealType:      r.MealType,
		OverallRating: r.OverallRating,
		At:            s.now(),
	})
}

func (s *Service) validateSubmit(p user.Principal, in SubmitInput) (rating.Rating, error) {
	verr := &core.ValidationError{}
	itemID := strings.TrimSpace(in.MenuItemID)
	if itemID == "" {
		verr.Add("menuItemId", "is required")
	}
	date, err := meal.ParseDate(in.MealDate)
	if err != nil {
		verr.Add("mealDate", "must be YYYY-MM-DD")
	}
	mealType, err := meal.ParseType(string(in.MealType))
	if err != nil {
		verr.Add("mealType", "must be breakfast, lunch or dinner")
	}
	checkScores(verr, in.OverallRating, in.Categories)
	overall := in.OverallRating
	if overall == 0 {
		overall = rating.DeriveOverall(in.Categories)
	}
	if overall == 0 {
		verr.Add("overallRating", "an overall score or at least one category is required")
	}
	checkContent(verr, in.Review, len(in.Photos))
	if err := verr.OrNil(); err != nil {
		return rating.Rating{}, err
	}
	return rating.Rating{
		StudentID:     p.ID,
		MenuItemID:    itemID,
		FacilityID:    p.FacilityID,
		MessID:        p.MessID,
		MealDate:      date,
		MealType:      mealType,
		OverallRating: overall,
		Categories:    in.Categories,
		Review:        strings.TrimSpace(in.Review),
		Photos:        append([]rating.Photo(nil), in.Photos...),
		Emoji:         in.Emoji,
		IsAnonymous:   in.IsAnonymous,
		IsActive:      true,
	}, nil
}

func validateUpdate(in UpdateInput) error {
	verr := &core.ValidationError{}
	overall := 0
	if in.OverallRating != nil {
		overall = *in.OverallRating
		if overall == 0 {
			verr.Add("overallRating", "must be between 1 and 5")
		}
	}
	var cats stats.Categories
	if in.Categories != nil {
		cats = *in.Categories
	}
	checkScores(verr, overall, cats)
	review, photos := "", 0
	if in.Review != nil {
		review = *in.Review
	}
	if in.Photos != nil {
		photos = len(*in.Photos)
	}
	checkContent(verr, review, photos)
	return verr.OrNil()
}

func checkScores(verr *core.ValidationError, overall int, cats stats.Categories) {
	if overall < 0 || overall > 5 {
		verr.Add("overallRating", "must be between 1 and 5")
	}
	names := [4]string{"taste", "quantity", "freshness", "value"}
	for i, v := range cats.Values() {
		if v < 0 || v > 5 {
			verr.Add("categories."+names[i], "must be between 1 and 5")
		}
	}
}

func checkContent(verr *core.ValidationError, review string, photos int) {
	if len([]rune(strings.TrimSpace(review))) > MaxReviewLength {
		verr.Add("review", fmt.Sprintf("must be at most %d characters", MaxReviewLength))
	}
	if photos > MaxPhotos {
		verr.Add("photos", fmt.Sprintf("at most %d photos", MaxPhotos))
	}
}

// redact hides the author of an anonymous rating from other viewers.
func redact(viewer user.Principal, r rating.Rating) rating.Rating {
	if r.IsAnonymous && r.StudentID != viewer.ID {
		r.StudentID = ""
	}
	r.Votes = nil
	return r
}
