package storage

import (
	"context"

	"github.com/campusmess/messhall/internal/app/domain/dailymenu"
	"github.com/campusmess/messhall/internal/app/domain/facility"
	"github.com/campusmess/messhall/internal/app/domain/menuitem"
	"github.com/campusmess/messhall/internal/app/domain/rating"
	"github.com/campusmess/messhall/internal/app/domain/user"
)

// Every Update* method is a compare-and-swap on Version: the caller passes the
// version it read, the store rejects a stale one with ErrVersionConflict and
// returns the stored document with Version incremented. Create* methods report
// uniqueness violations as core.ConflictError and Get* misses as
// core.NotFoundError.

// FacilityStore persists facilities together with their embedded messes.
type FacilityStore interface {
	CreateFacility(ctx context.Context, f facility.Facility) (facility.Facility, error)
	UpdateFacility(ctx context.Context, f facility.Facility) (facility.Facility, error)
	GetFacility(ctx context.Context, id string) (facility.Facility, error)
	GetFacilityByName(ctx context.Context, name string) (facility.Facility, error)
	GetFacilityByMess(ctx context.Context, messID string) (facility.Facility, error)
	ListFacilities(ctx context.Context) ([]facility.Facility, error)
}

// UserStore persists accounts. Emails are unique.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
}

// MenuItemStore persists dish definitions.
type MenuItemStore interface {
	CreateMenuItem(ctx context.Context, it menuitem.Item) (menuitem.Item, error)
	UpdateMenuItem(ctx context.Context, it menuitem.Item) (menuitem.Item, error)
	GetMenuItem(ctx context.Context, id string) (menuitem.Item, error)
	ListMenuItems(ctx context.Context, filter menuitem.Filter) ([]menuitem.Item, error)
}

// DailyMenuStore persists daily menus. (date, mealType, facility, mess) is
// unique.
type DailyMenuStore interface {
	CreateDailyMenu(ctx context.Context, m dailymenu.Menu) (dailymenu.Menu, error)
	UpdateDailyMenu(ctx context.Context, m dailymenu.Menu) (dailymenu.Menu, error)
	GetDailyMenu(ctx context.Context, id string) (dailymenu.Menu, error)
	GetDailyMenuByKey(ctx context.Context, key dailymenu.Key) (dailymenu.Menu, error)
	ListDailyMenus(ctx context.Context, filter dailymenu.Filter) ([]dailymenu.Menu, error)
}

// RatingStore persists ratings. (student, item, mealDate, mealType) is unique,
// inactive ratings included.
type RatingStore interface {
	CreateRating(ctx context.Context, r rating.Rating) (rating.Rating, error)
	UpdateRating(ctx context.Context, r rating.Rating) (rating.Rating, error)
	GetRating(ctx context.Context, id string) (rating.Rating, error)
	GetRatingByKey(ctx context.Context, key rating.Key) (rating.Rating, error)
	ListRatings(ctx context.Context, filter rating.Filter) ([]rating.Rating, error)
}

// Pinger is implemented by stores backed by a remote database.
type Pinger interface {
	Ping(ctx context.Context) error
}
