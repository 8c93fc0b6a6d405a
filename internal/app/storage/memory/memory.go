package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/campusmess/messhall/internal/app/core"
	"github.com/campusmess/messhall/internal/app/domain/dailymenu"
	"github.com/campusmess/messhall/internal/app/domain/facility"
	"github.com/campusmess/messhall/internal/app/domain/menuitem"
	"github.com/campusmess/messhall/internal/app/domain/rating"
	"github.com/campusmess/messhall/internal/app/domain/user"
	"github.com/campusmess/messhall/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu               sync.RWMutex
	nextID           int64
	facilities       map[string]facility.Facility
	facilitiesByName map[string]string
	users            map[string]user.User
	usersByEmail     map[string]string
	menuItems        map[string]menuitem.Item
	dailyMenus       map[string]dailymenu.Menu
	dailyMenusByKey  map[dailymenu.Key]string
	ratings          map[string]rating.Rating
	ratingsByKey     map[rating.Key]string
}

var _ storage.FacilityStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)
var _ storage.MenuItemStore = (*Store)(nil)
var _ storage.DailyMenuStore = (*Store)(nil)
var _ storage.RatingStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:           1,
		facilities:       make(map[string]facility.Facility),
		facilitiesByName: make(map[string]string),
		users:            make(map[string]user.User),
		usersByEmail:     make(map[string]string),
		menuItems:        make(map[string]menuitem.Item),
		dailyMenus:       make(map[string]dailymenu.Menu),
		dailyMenusByKey:  make(map[dailymenu.Key]string),
		ratings:          make(map[string]rating.Rating),
		ratingsByKey:     make(map[rating.Key]string),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// FacilityStore implementation ------------------------------------------------

func (s *Store) CreateFacility(_ context.Context, f facility.Facility) (facility.Facility, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.facilitiesByName[f.Name]; exists {
		return facility.Facility{}, core.NewConflictError("facility", f.Name, "name already registered")
	}
	for _, existing := range s.facilities {
		for _, m := range f.Messes {
			if existing.FindMess(m.MessID) >= 0 {
				return facility.Facility{}, core.NewConflictError("mess", m.MessID, "id already in use")
			}
		}
	}
	if f.ID == "" {
		f.ID = s.nextIDLocked()
	} else if _, exists := s.facilities[f.ID]; exists {
		return facility.Facility{}, core.NewConflictError("facility", f.ID, "id already in use")
	}

	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now
	f.Version = 1

	s.facilities[f.ID] = facility.Clone(f)
	s.facilitiesByName[f.Name] = f.ID
	return facility.Clone(f), nil
}

func (s *Store) UpdateFacility(_ context.Context, f facility.Facility) (facility.Facility, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.facilities[f.ID]
	if !ok {
		return facility.Facility{}, core.NewNotFoundError("facility", f.ID)
	}
	if original.Version != f.Version {
		return facility.Facility{}, storage.ErrVersionConflict
	}
	if f.Name != original.Name {
		if _, taken := s.facilitiesByName[f.Name]; taken {
			return facility.Facility{}, core.NewConflictError("facility", f.Name, "name already registered")
		}
		delete(s.facilitiesByName, original.Name)
		s.facilitiesByName[f.Name] = f.ID
	}

	f.CreatedAt = original.CreatedAt
	f.UpdatedAt = time.Now().UTC()
	f.Version = original.Version + 1

	s.facilities[f.ID] = facility.Clone(f)
	return facility.Clone(f), nil
}

func (s *Store) GetFacility(_ context.Context, id string) (facility.Facility, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.facilities[id]
	if !ok {
		return facility.Facility{}, core.NewNotFoundError("facility", id)
	}
	return facility.Clone(f), nil
}

func (s *Store) GetFacilityByName(_ context.Context, name string) (facility.Facility, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.facilitiesByName[name]
	if !ok {
		return facility.Facility{}, core.NewNotFoundError("facility", name)
	}
	return facility.Clone(s.facilities[id]), nil
}

func (s *Store) GetFacilityByMess(_ context.Context, messID string) (facility.Facility, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, f := range s.facilities {
		if f.FindMess(messID) >= 0 {
			return facility.Clone(f), nil
		}
	}
	return facility.Facility{}, core.NewNotFoundError("mess", messID)
}

func (s *Store) ListFacilities(_ context.Context) ([]facility.Facility, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]facility.Facility, 0, len(s.facilities))
	for _, f := range s.facilities {
		result = append(result, facility.Clone(f))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, exists := s.usersByEmail[email]; exists {
		return user.User{}, core.NewConflictError("user", email, "email already registered")
	}
	if u.ID == "" {
		u.ID = s.nextIDLocked()
	} else if _, exists := s.users[u.ID]; exists {
		return user.User{}, core.NewConflictError("user", u.ID, "id already in use")
	}

	now := time.Now().UTC()
	u.Email = email
	u.CreatedAt = now
	u.UpdatedAt = now
	u.Version = 1

	s.users[u.ID] = cloneUser(u)
	s.usersByEmail[email] = u.ID
	return cloneUser(u), nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.users[u.ID]
	if !ok {
		return user.User{}, core.NewNotFoundError("user", u.ID)
	}
	if original.Version != u.Version {
		return user.User{}, storage.ErrVersionConflict
	}

	u.Email = original.Email
	u.CreatedAt = original.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	u.Version = original.Version + 1

	s.users[u.ID] = cloneUser(u)
	return cloneUser(u), nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, core.NewNotFoundError("user", id)
	}
	return cloneUser(u), nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return user.User{}, core.NewNotFoundError("user", email)
	}
	return cloneUser(s.users[id]), nil
}

// MenuItemStore implementation ------------------------------------------------

func (s *Store) CreateMenuItem(_ context.Context, it menuitem.Item) (menuitem.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if it.ID == "" {
		it.ID = s.nextIDLocked()
	} else if _, exists := s.menuItems[it.ID]; exists {
		return menuitem.Item{}, core.NewConflictError("menu item", it.ID, "id already in use")
	}

	now := time.Now().UTC()
	it.CreatedAt = now
	it.UpdatedAt = now
	it.Version = 1

	s.menuItems[it.ID] = menuitem.Clone(it)
	return menuitem.Clone(it), nil
}

func (s *Store) UpdateMenuItem(_ context.Context, it menuitem.Item) (menuitem.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.menuItems[it.ID]
	if !ok {
		return menuitem.Item{}, core.NewNotFoundError("menu item", it.ID)
	}
	if original.Version != it.Version {
		return menuitem.Item{}, storage.ErrVersionConflict
	}

	it.FacilityID = original.FacilityID
	it.MessID = original.MessID
	it.CreatedAt = original.CreatedAt
	it.UpdatedAt = time.Now().UTC()
	it.Version = original.Version + 1

	s.menuItems[it.ID] = menuitem.Clone(it)
	return menuitem.Clone(it), nil
}

func (s *Store) GetMenuItem(_ context.Context, id string) (menuitem.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.menuItems[id]
	if !ok {
		return menuitem.Item{}, core.NewNotFoundError("menu item", id)
	}
	return menuitem.Clone(it), nil
}

func (s *Store) ListMenuItems(_ context.Context, filter menuitem.Filter) ([]menuitem.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]menuitem.Item, 0)
	for _, it := range s.menuItems {
		if filter.Matches(it) {
			result = append(result, menuitem.Clone(it))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// DailyMenuStore implementation -----------------------------------------------

func (s *Store) CreateDailyMenu(_ context.Context, m dailymenu.Menu) (dailymenu.Menu, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := m.Key()
	if _, exists := s.dailyMenusByKey[key]; exists {
		return dailymenu.Menu{}, core.NewConflictError("daily menu", fmt.Sprintf("%s/%s", key.Date, key.MealType), "already exists for this mess")
	}
	if m.ID == "" {
		m.ID = s.nextIDLocked()
	} else if _, exists := s.dailyMenus[m.ID]; exists {
		return dailymenu.Menu{}, core.NewConflictError("daily menu", m.ID, "id already in use")
	}

	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	m.Version = 1

	s.dailyMenus[m.ID] = dailymenu.Clone(m)
	s.dailyMenusByKey[key] = m.ID
	return dailymenu.Clone(m), nil
}

func (s *Store) UpdateDailyMenu(_ context.Context, m dailymenu.Menu) (dailymenu.Menu, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.dailyMenus[m.ID]
	if !ok {
		return dailymenu.Menu{}, core.NewNotFoundError("daily menu", m.ID)
	}
	if original.Version != m.Version {
		return dailymenu.Menu{}, storage.ErrVersionConflict
	}

	// The uniqueness key is immutable once created.
	m.Date, m.MealType, m.FacilityID, m.MessID = original.Date, original.MealType, original.FacilityID, original.MessID
	m.CreatedAt = original.CreatedAt
	m.UpdatedAt = time.Now().UTC()
	m.Version = original.Version + 1

	s.dailyMenus[m.ID] = dailymenu.Clone(m)
	return dailymenu.Clone(m), nil
}

func (s *Store) GetDailyMenu(_ context.Context, id string) (dailymenu.Menu, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.dailyMenus[id]
	if !ok {
		return dailymenu.Menu{}, core.NewNotFoundError("daily menu", id)
	}
	return dailymenu.Clone(m), nil
}

func (s *Store) GetDailyMenuByKey(_ context.Context, key dailymenu.Key) (dailymenu.Menu, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.dailyMenusByKey[key]
	if !ok {
		return dailymenu.Menu{}, core.NewNotFoundError("daily menu", fmt.Sprintf("%s/%s", key.Date, key.MealType))
	}
	return dailymenu.Clone(s.dailyMenus[id]), nil
}

func (s *Store) ListDailyMenus(_ context.Context, filter dailymenu.Filter) ([]dailymenu.Menu, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]dailymenu.Menu, 0)
	for _, m := range s.dailyMenus {
		if filter.Matches(m) {
			result = append(result, dailymenu.Clone(m))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date < result[j].Date
		}
		return result[i].MealType.Order() < result[j].MealType.Order()
	})
	return result, nil
}

// RatingStore implementation --------------------------------------------------

func (s *Store) CreateRating(_ context.Context, r rating.Rating) (rating.Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.Key()
	if _, exists := s.ratingsByKey[key]; exists {
		return rating.Rating{}, core.NewConflictError("rating", "", "already submitted for this meal")
	}
	if r.ID == "" {
		r.ID = s.nextIDLocked()
	} else if _, exists := s.ratings[r.ID]; exists {
		return rating.Rating{}, core.NewConflictError("rating", r.ID, "id already in use")
	}

	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	r.Version = 1

	s.ratings[r.ID] = rating.Clone(r)
	s.ratingsByKey[key] = r.ID
	return rating.Clone(r), nil
}

func (s *Store) UpdateRating(_ context.Context, r rating.Rating) (rating.Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.ratings[r.ID]
	if !ok {
		return rating.Rating{}, core.NewNotFoundError("rating", r.ID)
	}
	if original.Version != r.Version {
		return rating.Rating{}, storage.ErrVersionConflict
	}

	r.StudentID, r.MenuItemID, r.MealDate, r.MealType = original.StudentID, original.MenuItemID, original.MealDate, original.MealType
	r.CreatedAt = original.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	r.Version = original.Version + 1

	s.ratings[r.ID] = rating.Clone(r)
	return rating.Clone(r), nil
}

func (s *Store) GetRating(_ context.Context, id string) (rating.Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.ratings[id]
	if !ok {
		return rating.Rating{}, core.NewNotFoundError("rating", id)
	}
	return rating.Clone(r), nil
}

func (s *Store) GetRatingByKey(_ context.Context, key rating.Key) (rating.Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.ratingsByKey[key]
	if !ok {
		return rating.Rating{}, core.NewNotFoundError("rating", "")
	}
	return rating.Clone(s.ratings[id]), nil
}

func (s *Store) ListRatings(_ context.Context, filter rating.Filter) ([]rating.Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]rating.Rating, 0)
	for _, r := range s.ratings {
		if filter.Matches(r) {
			result = append(result, rating.Clone(r))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// Helpers ---------------------------------------------------------------------

func cloneUser(u user.User) user.User {
	if u.LockUntil != nil {
		t := *u.LockUntil
		u.LockUntil = &t
	}
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		u.LastLoginAt = &t
	}
	return u
}
