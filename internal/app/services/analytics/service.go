package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/campusmess/messhall/internal/app/core"
	"github.com/campusmess/messhall/internal/app/domain/dailymenu"
	"github.com/campusmess/messhall/internal/app/domain/meal"
	"github.com/campusmess/messhall/internal/app/domain/menuitem"
	"github.com/campusmess/messhall/internal/app/domain/rating"
	"github.com/campusmess/messhall/internal/app/domain/user"
	"github.com/campusmess/messhall/internal/app/metrics"
	"github.com/campusmess/messhall/internal/app/storage"
	"github.com/campusmess/messhall/pkg/logger"
)

// Report shaping limits.
const (
	DefaultRange   = 30
	MaxRange       = 366
	RankedItems    = 5
	RecentReviews  = 10
	DefaultTTL     = time.Minute
	minRankRatings = 1
)

// Service computes read-only dashboards over ratings, items and menus.
type Service struct {
	ratings storage.RatingStore
	items   storage.MenuItemStore
	menus   storage.DailyMenuStore
	cache   Cache
	ttl     time.Duration
	flight  singleflight.Group
	log     *logger.Logger
	now     func() time.Time
}

// New constructs an analytics service. A nil cache disables caching.
func New(ratings storage.RatingStore, items storage.MenuItemStore, menus storage.DailyMenuStore, cache Cache, ttl time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("analytics")
	}
	if cache == nil {
		cache = NopCache{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{ratings: ratings, items: items, menus: menus, cache: cache, ttl: ttl, log: log, now: time.Now}
}

// Dashboard summarises a mess's feedback between from and to inclusive.
// Empty bounds default to the last DefaultRange days.
func (s *Service) Dashboard(ctx context.Context, p user.Principal, from, to string) (Dashboard, error) {
	if !p.IsAdmin() {
		return Dashboard{}, core.NewAccessDeniedError("dashboard", p.MessID, p.ID, "only mess admins may view analytics")
	}
	from, to, err := s.window(from, to)
	if err != nil {
		return Dashboard{}, err
	}
	key := fmt.Sprintf("dashboard:%s:%s:%s:%s", p.FacilityID, p.MessID, from, to)
	var out Dashboard
	err = s.cached(ctx, "dashboard", key, &out, func(ctx context.Context) (any, error) {
		return s.buildDashboard(ctx, p.FacilityID, p.MessID, from, to)
	})
	return out, err
}

// ItemTrend returns the daily average of an item over the last days days,
// oldest first, with a point for every day.
func (s *Service) ItemTrend(ctx context.Context, p user.Principal, itemID string, days int) (Trend, error) {
	if !p.IsAdmin() {
		return Trend{}, core.NewAccessDeniedError("trend", itemID, p.ID, "only mess admins may view analytics")
	}
	if days <= 0 {
		days = DefaultRange
	}
	if days > MaxRange {
		return Trend{}, core.NewValidationError("days", fmt.Sprintf("must be at most %d", MaxRange))
	}
	it, err := s.items.GetMenuItem(ctx, itemID)
	if err != nil {
		return Trend{}, err
	}
	if !p.InTenant(it.FacilityID, it.MessID) {
		return Trend{}, core.NewNotFoundError("menu item", itemID)
	}

	to := s.now().UTC()
	from := to.AddDate(0, 0, -(days - 1))
	key := fmt.Sprintf("trend:%s:%s:%d", itemID, to.Format(meal.DateLayout), days)
	var out Trend
	err = s.cached(ctx, "trend", key, &out, func(ctx context.Context) (any, error) {
		list, err := s.ratings.ListRatings(ctx, rating.Filter{
			MenuItemID: itemID,
			From:       from.Format(meal.DateLayout),
			To:         to.Format(meal.DateLayout),
			ActiveOnly: true,
		})
		if err != nil {
			return nil, err
		}
		return buildTrend(it, list, from, days), nil
	})
	return out, err
}

// cached serves key from the cache, or computes it once across concurrent
// callers and stores the result. Cache failures degrade to recomputation.
func (s *Service) cached(ctx context.Context, report, key string, dst any, compute func(context.Context) (any, error)) error {
	if hit, err := s.cache.Get(ctx, key, dst); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("analytics cache read failed")
	} else if hit {
		metrics.RecordCacheLookup(report, true)
		return nil
	}
	metrics.RecordCacheLookup(report, false)

	// The flight is shared, so it must outlive whichever caller started it.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.flight.Do(key, func() (any, error) {
		result, err := compute(shared)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(shared, key, result, s.ttl); err != nil {
			s.log.WithError(err).WithField("key", key).Warn("analytics cache write failed")
		}
		return result, nil
	})
	if err != nil {
		return err
	}
	return assign(dst, v)
}

func assign(dst, v any) error {
	switch d := dst.(type) {
	case *Dashboard:
		*d = v.(Dashboard)
	case *Trend:
		*d = v.(Trend)
	default:
		return fmt.Errorf("analytics: unsupported report type %T", dst)
	}
	return nil
}

func (s *Service) window(from, to string) (string, string, error) {
	today := s.now().UTC()
	verr := &core.ValidationError{}
	if to == "" {
		to = today.Format(meal.DateLayout)
	} else if parsed, err := meal.ParseDate(to); err != nil {
		verr.Add("to", "must be YYYY-MM-DD")
	} else {
		to = parsed
	}
	if from == "" {
		if end, err := time.Parse(meal.DateLayout, to); err == nil {
			from = end.AddDate(0, 0, -(DefaultRange - 1)).Format(meal.DateLayout)
		}
	} else if parsed, err := meal.ParseDate(from); err != nil {
		verr.Add("from", "must be YYYY-MM-DD")
	} else {
		from = parsed
	}
	if err := verr.OrNil(); err != nil {
		return "", "", err
	}
	start, _ := time.Parse(meal.DateLayout, from)
	end, _ := time.Parse(meal.DateLayout, to)
	switch {
	case end.Before(start):
		return "", "", core.NewValidationError("from", "must not be after to")
	case end.Sub(start) > MaxRange*24*time.Hour:
		return "", "", core.NewValidationError("from", fmt.Sprintf("range must be at most %d days", MaxRange))
	}
	return from, to, nil
}

func (s *Service) buildDashboard(ctx context.Context, facilityID, messID, from, to string) (Dashboard, error) {
	var (
		ratings []rating.Rating
		items   []menuitem.Item
		menus   []dailymenu.Menu
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ratings, err = s.ratings.ListRatings(gctx, rating.Filter{FacilityID: facilityID, MessID: messID, From: from, To: to, ActiveOnly: true})
		return err
	})
	g.Go(func() error {
		var err error
		items, err = s.items.ListMenuItems(gctx, menuitem.Filter{FacilityID: facilityID, MessID: messID, IncludeInactive: true})
		return err
	})
	g.Go(func() error {
		var err error
		menus, err = s.menus.ListDailyMenus(gctx, dailymenu.Filter{FacilityID: facilityID, MessID: messID, From: from, To: to})
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	d := summarize(ratings, items, menus)
	d.FacilityID, d.MessID, d.From, d.To = facilityID, messID, from, to
	d.GeneratedAt = s.now().UTC()
	s.log.WithField("mess_id", messID).
		WithField("ratings", d.TotalRatings).
		WithField("range", from+".."+to).
		Debug("dashboard computed")
	return d, nil
}

func summarize(ratings []rating.Rating, items []menuitem.Item, menus []dailymenu.Menu) Dashboard {
	d := Dashboard{ByMealType: make(map[meal.Type]MealSummary, len(meal.Types))}
	names := make(map[string]string, len(items))
	for _, it := range items {
		names[it.ID] = it.Name
	}

	type acc struct {
		sum   int
		count int
	}
	perItem := make(map[string]*acc)
	perMeal := make(map[meal.Type]*acc)
	total := acc{}
	for _, r := range ratings {
		total.sum += r.OverallRating
		total.count++
		if r.OverallRating >= 1 && r.OverallRating <= 5 {
			d.Distribution[r.OverallRating-1]++
		}
		if perItem[r.MenuItemID] == nil {
			perItem[r.MenuItemID] = &acc{}
		}
		perItem[r.MenuItemID].sum += r.OverallRating
		perItem[r.MenuItemID].count++
		if perMeal[r.MealType] == nil {
			perMeal[r.MealType] = &acc{}
		}
		perMeal[r.MealType].sum += r.OverallRating
		perMeal[r.MealType].count++
	}
	d.TotalRatings = total.count
	d.AverageRating = mean(total.sum, total.count)
	for _, t := range meal.Types {
		a := perMeal[t]
		if a == nil {
			a = &acc{}
		}
		d.ByMealType[t] = MealSummary{Ratings: a.count, Average: mean(a.sum, a.count)}
	}

	ranked := make([]ItemSummary, 0, len(perItem))
	for id, a := range perItem {
		if a.count < minRankRatings {
			continue
		}
		ranked = append(ranked, ItemSummary{MenuItemID: id, Name: names[id], Ratings: a.count, Average: mean(a.sum, a.count)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Average != ranked[j].Average {
			return ranked[i].Average > ranked[j].Average
		}
		if ranked[i].Ratings != ranked[j].Ratings {
			return ranked[i].Ratings > ranked[j].Ratings
		}
		return ranked[i].MenuItemID < ranked[j].MenuItemID
	})
	d.TopItems = head(ranked, RankedItems)
	bottom := make([]ItemSummary, len(ranked))
	for i := range ranked {
		bottom[len(ranked)-1-i] = ranked[i]
	}
	d.BottomItems = head(bottom, RankedItems)

	var participation float64
	served := 0
	for _, m := range menus {
		if m.Status == dailymenu.StatusDraft || m.Status == dailymenu.StatusCancelled {
			continue
		}
		served++
		participation += m.ParticipationRate
	}
	d.MenusServed = served
	if served > 0 {
		d.AverageParticipation = participation / float64(served)
	}

	for _, r := range ratings {
		if len(d.RecentReviews) == RecentReviews {
			break
		}
		if r.Review == "" {
			continue
		}
		rev := Review{
			RatingID:      r.ID,
			MenuItemID:    r.MenuItemID,
			ItemName:      names[r.MenuItemID],
			OverallRating: r.OverallRating,
			Review:        r.Review,
			MealDate:      r.MealDate,
			MealType:      r.MealType,
			CreatedAt:     r.CreatedAt,
		}
		if !r.IsAnonymous {
			rev.StudentID = r.StudentID
		}
		d.RecentReviews = append(d.RecentReviews, rev)
	}
	return d
}

func buildTrend(it menuitem.Item, ratings []rating.Rating, from time.Time, days int) Trend {
	type acc struct{ sum, count int }
	byDay := make(map[string]*acc, days)
	for _, r := range ratings {
		if byDay[r.MealDate] == nil {
			byDay[r.MealDate] = &acc{}
		}
		byDay[r.MealDate].sum += r.OverallRating
		byDay[r.MealDate].count++
	}
	t := Trend{MenuItemID: it.ID, Name: it.Name, Points: make([]TrendPoint, 0, days)}
	for i := 0; i < days; i++ {
		day := from.AddDate(0, 0, i).Format(meal.DateLayout)
		a := byDay[day]
		if a == nil {
			a = &acc{}
		}
		t.Points = append(t.Points, TrendPoint{Date: day, Ratings: a.count, Average: mean(a.sum, a.count)})
	}
	return t
}

func mean(sum, count int) float64 {
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

func head(in []ItemSummary, n int) []ItemSummary {
	if len(in) > n {
		in = in[:n]
	}
	return in
}
