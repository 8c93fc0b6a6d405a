package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/campusmess/messhall/internal/app/core"
	"github.com/campusmess/messhall/internal/app/domain/dailymenu"
	"github.com/campusmess/messhall/internal/app/domain/meal"
	"github.com/campusmess/messhall/internal/app/domain/menuitem"
	"github.com/campusmess/messhall/internal/app/domain/stats"
	"github.com/campusmess/messhall/internal/app/domain/user"
	"github.com/campusmess/messhall/internal/app/storage"
	"github.com/campusmess/messhall/pkg/logger"
)

// EntryInput describes one dish to serve.
type EntryInput struct {
	MenuItemID      string
	PlannedQuantity int
	CostPerServing  float64
}

// MenuInput carries the fields of a new daily menu.
type MenuInput struct {
	Date             string
	MealType         meal.Type
	Items            []EntryInput
	ExpectedStudents int
	Notes            string
}

// Details overwrites planning fields; nil fields are left alone.
type Details struct {
	ExpectedStudents *int
	Notes            *string
}

// Items resolves menu item ids.
type Items interface {
	Lookup(ctx context.Context, id string) (menuitem.Item, error)
}

// studentVisible lists the statuses students may see.
var studentVisible = []dailymenu.Status{dailymenu.StatusPublished, dailymenu.StatusActive, dailymenu.StatusCompleted}

// Service owns daily menus and their lifecycle.
type Service struct {
	store storage.DailyMenuStore
	items Items
	log   *logger.Logger
	now   func() time.Time
}

// New constructs a scheduling service.
func New(store storage.DailyMenuStore, items Items, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("scheduling")
	}
	return &Service{store: store, items: items, log: log, now: time.Now}
}

// Create adds a draft menu for the admin's mess.
func (s *Service) Create(ctx context.Context, p user.Principal, in MenuInput) (dailymenu.Menu, error) {
	if err := requireAdmin(p, ""); err != nil {
		return dailymenu.Menu{}, err
	}

	verr := &core.ValidationError{}
	date, err := meal.ParseDate(in.Date)
	if err != nil {
		verr.Add("date", "must be YYYY-MM-DD")
	}
	if !in.MealType.Valid() {
		verr.Add("mealType", "must be breakfast, lunch or dinner")
	}
	if in.ExpectedStudents < 0 {
		verr.Add("expectedStudents", "must not be negative")
	}
	if err := verr.OrNil(); err != nil {
		return dailymenu.Menu{}, err
	}

	m := dailymenu.Menu{
		Date:             date,
		MealType:         in.MealType,
		FacilityID:       p.FacilityID,
		MessID:           p.MessID,
		Status:           dailymenu.StatusDraft,
		ExpectedStudents: in.ExpectedStudents,
		Notes:            strings.TrimSpace(in.Notes),
		CreatedBy:        p.ID,
	}
	for _, e := range in.Items {
		if m.FindItem(e.MenuItemID) >= 0 {
			return dailymenu.Menu{}, core.NewConflictError("menu entry", e.MenuItemID, "item is already on the menu")
		}
		entry, err := s.newEntry(ctx, p, e)
		if err != nil {
			return dailymenu.Menu{}, err
		}
		m.Items = append(m.Items, entry)
	}

	created, err := s.store.CreateDailyMenu(ctx, m)
	if err != nil {
		return dailymenu.Menu{}, err
	}
	s.log.WithField("menu_id", created.ID).
		WithField("date", created.Date).
		WithField("meal_type", created.MealType).
		Info("daily menu created")
	return created, nil
}

// Get returns a menu visible to the principal.
func (s *Service) Get(ctx context.Context, p user.Principal, id string) (dailymenu.Menu, error) {
	m, err := s.store.GetDailyMenu(ctx, id)
	if err != nil {
		return dailymenu.Menu{}, err
	}
	if !visible(p, m) {
		return dailymenu.Menu{}, core.NewNotFoundError("daily menu", id)
	}
	return m, nil
}

// Lookup returns a menu without tenant checks.
func (s *Service) Lookup(ctx context.Context, id string) (dailymenu.Menu, error) {
	return s.store.GetDailyMenu(ctx, id)
}

// Resolve returns the principal's menu for one meal instance.
func (s *Service) Resolve(ctx context.Context, p user.Principal, date string, mealType meal.Type) (dailymenu.Menu, error) {
	m, err := s.store.GetDailyMenuByKey(ctx, dailymenu.Key{Date: date, MealType: mealType, FacilityID: p.FacilityID, MessID: p.MessID})
	if err != nil {
		return dailymenu.Menu{}, err
	}
	if !visible(p, m) {
		return dailymenu.Menu{}, core.NewNotFoundError("daily menu", date+"/"+string(mealType))
	}
	return m, nil
}

// List returns the tenant's menus. Students only ever see served or servable
// menus.
func (s *Service) List(ctx context.Context, p user.Principal, filter dailymenu.Filter) ([]dailymenu.Menu, error) {
	filter.FacilityID, filter.MessID = p.FacilityID, p.MessID
	if !p.IsAdmin() {
		filter.Statuses = restrict(filter.Statuses)
		if len(filter.Statuses) == 0 {
			return []dailymenu.Menu{}, nil
		}
	}
	return s.store.ListDailyMenus(ctx, filter)
}

// AddItem appends a dish to a non-terminal menu.
func (s *Service) AddItem(ctx context.Context, p user.Principal, menuID string, in EntryInput) (dailymenu.Menu, error) {
	if err := requireAdmin(p, menuID); err != nil {
		return dailymenu.Menu{}, err
	}
	entry, err := s.newEntry(ctx, p, in)
	if err != nil {
		return dailymenu.Menu{}, err
	}
	return s.mutate(ctx, "add menu entry", p, menuID, func(m *dailymenu.Menu) error {
		if m.Status.Terminal() {
			return core.NewInvalidStateError("daily menu", fmt.Sprintf("cannot change items of a %s menu", m.Status))
		}
		if m.FindItem(in.MenuItemID) >= 0 {
			return core.NewConflictError("menu entry", in.MenuItemID, "item is already on the menu")
		}
		m.Items = append(m.Items, entry)
		return nil
	})
}

// RemoveItem drops a dish from a non-terminal menu.
func (s *Service) RemoveItem(ctx context.Context, p user.Principal, menuID, itemID string) (dailymenu.Menu, error) {
	if err := requireAdmin(p, menuID); err != nil {
		return dailymenu.Menu{}, err
	}
	return s.mutate(ctx, "remove menu entry", p, menuID, func(m *dailymenu.Menu) error {
		if m.Status.Terminal() {
			return core.NewInvalidStateError("daily menu", fmt.Sprintf("cannot change items of a %s menu", m.Status))
		}
		idx := m.FindItem(itemID)
		if idx < 0 {
			return core.NewNotFoundError("menu entry", itemID)
		}
		m.Items = append(m.Items[:idx], m.Items[idx+1:]...)
		return nil
	})
}

// UpdateItemStatus moves a dish to any preparation status. The ready time is
// recorded only when the dish enters ready.
func (s *Service) UpdateItemStatus(ctx context.Context, p user.Principal, menuID, itemID string, status dailymenu.PrepStatus, prepared *int) (dailymenu.Menu, error) {
	if err := requireAdmin(p, menuID); err != nil {
		return dailymenu.Menu{}, err
	}
	if !status.Valid() {
		return dailymenu.Menu{}, core.NewValidationError("status", "is not a known preparation status")
	}
	if prepared != nil && *prepared < 0 {
		return dailymenu.Menu{}, core.NewValidationError("preparedQuantity", "must not be negative")
	}
	return s.mutate(ctx, "update menu entry", p, menuID, func(m *dailymenu.Menu) error {
		if m.Status.Terminal() {
			return core.NewInvalidStateError("daily menu", fmt.Sprintf("cannot change items of a %s menu", m.Status))
		}
		idx := m.FindItem(itemID)
		if idx < 0 {
			return core.NewNotFoundError("menu entry", itemID)
		}
		entry := &m.Items[idx]
		if status == dailymenu.PrepReady && entry.PreparationStatus != dailymenu.PrepReady {
			at := s.now().UTC()
			entry.ActualReadyAt = &at
		}
		entry.PreparationStatus = status
		if prepared != nil {
			entry.PreparedQuantity = *prepared
		}
		return nil
	})
}

// Publish makes a draft menu visible to students.
func (s *Service) Publish(ctx context.Context, p user.Principal, menuID string) (dailymenu.Menu, error) {
	if err := requireAdmin(p, menuID); err != nil {
		return dailymenu.Menu{}, err
	}
	m, err := s.mutate(ctx, "publish daily menu", p, menuID, func(m *dailymenu.Menu) error {
		switch {
		case m.Status == dailymenu.StatusPublished:
			return core.NewConflictError("daily menu", m.ID, "already published")
		case m.Status != dailymenu.StatusDraft:
			return core.NewInvalidStateError("daily menu", fmt.Sprintf("cannot publish a %s menu", m.Status))
		case len(m.Items) == 0:
			return core.NewInvalidStateError("daily menu", "cannot publish a menu without items")
		}
		at := s.now().UTC()
		m.Status = dailymenu.StatusPublished
		m.PublishedAt = &at
		return nil
	})
	if err != nil {
		return dailymenu.Menu{}, err
	}
	s.log.WithField("menu_id", menuID).Info("daily menu published")
	return m, nil
}

// Activate marks a published menu as being served.
func (s *Service) Activate(ctx context.Context, p user.Principal, menuID string) (dailymenu.Menu, error) {
	return s.transition(ctx, p, menuID, dailymenu.StatusActive)
}

// Complete closes an active menu.
func (s *Service) Complete(ctx context.Context, p user.Principal, menuID string) (dailymenu.Menu, error) {
	return s.transition(ctx, p, menuID, dailymenu.StatusCompleted)
}

// Cancel abandons a menu from any non-terminal state.
func (s *Service) Cancel(ctx context.Context, p user.Principal, menuID string) (dailymenu.Menu, error) {
	return s.transition(ctx, p, menuID, dailymenu.StatusCancelled)
}

// UpdateDetails overwrites expected head count and notes.
func (s *Service) UpdateDetails(ctx context.Context, p user.Principal, menuID string, d Details) (dailymenu.Menu, error) {
	if err := requireAdmin(p, menuID); err != nil {
		return dailymenu.Menu{}, err
	}
	if d.ExpectedStudents != nil && *d.ExpectedStudents < 0 {
		return dailymenu.Menu{}, core.NewValidationError("expectedStudents", "must not be negative")
	}
	return s.mutate(ctx, "update daily menu", p, menuID, func(m *dailymenu.Menu) error {
		if d.ExpectedStudents != nil {
			m.ExpectedStudents = *d.ExpectedStudents
			m.RefreshParticipation()
		}
		if d.Notes != nil {
			m.Notes = strings.TrimSpace(*d.Notes)
		}
		return nil
	})
}

// AdjustStats applies fn to the menu's rating aggregate under a version check
// and refreshes the participation rate.
func (s *Service) AdjustStats(ctx context.Context, menuID string, fn func(*stats.RatingStats)) (dailymenu.Menu, error) {
	var updated dailymenu.Menu
	err := storage.Retry(ctx, "update daily menu aggregate", storage.DefaultAttempts, func(ctx context.Context) error {
		m, err := s.store.GetDailyMenu(ctx, menuID)
		if err != nil {
			return err
		}
		fn(&m.RatingStats)
		m.RefreshParticipation()
		updated, err = s.store.UpdateDailyMenu(ctx, m)
		return err
	})
	return updated, err
}

func (s *Service) transition(ctx context.Context, p user.Principal, menuID string, to dailymenu.Status) (dailymenu.Menu, error) {
	if err := requireAdmin(p, menuID); err != nil {
		return dailymenu.Menu{}, err
	}
	var from dailymenu.Status
	m, err := s.mutate(ctx, "transition daily menu", p, menuID, func(m *dailymenu.Menu) error {
		if !dailymenu.CanTransition(m.Status, to) {
			return core.NewInvalidStateError("daily menu", fmt.Sprintf("cannot move from %s to %s", m.Status, to))
		}
		from = m.Status
		m.Status = to
		return nil
	})
	if err != nil {
		return dailymenu.Menu{}, err
	}
	s.log.WithField("menu_id", menuID).
		WithField("from", from).
		WithField("to", to).
		Info("daily menu status changed")
	return m, nil
}

func (s *Service) mutate(ctx context.Context, op string, p user.Principal, menuID string, fn func(*dailymenu.Menu) error) (dailymenu.Menu, error) {
	var updated dailymenu.Menu
	err := storage.Retry(ctx, op, storage.DefaultAttempts, func(ctx context.Context) error {
		m, err := s.store.GetDailyMenu(ctx, menuID)
		if err != nil {
			return err
		}
		if !p.InTenant(m.FacilityID, m.MessID) {
			return core.NewNotFoundError("daily menu", menuID)
		}
		if err := fn(&m); err != nil {
			return err
		}
		updated, err = s.store.UpdateDailyMenu(ctx, m)
		return err
	})
	return updated, err
}

func (s *Service) newEntry(ctx context.Context, p user.Principal, in EntryInput) (dailymenu.Entry, error) {
	if strings.TrimSpace(in.MenuItemID) == "" {
		return dailymenu.Entry{}, core.RequiredError("menuItemId")
	}
	if in.PlannedQuantity < 0 || in.CostPerServing < 0 {
		return dailymenu.Entry{}, core.NewValidationError("items", "quantities and costs must not be negative")
	}
	it, err := s.items.Lookup(ctx, in.MenuItemID)
	if err != nil {
		return dailymenu.Entry{}, err
	}
	if !it.IsActive || !p.InTenant(it.FacilityID, it.MessID) {
		return dailymenu.Entry{}, core.NewNotFoundError("menu item", in.MenuItemID)
	}
	return dailymenu.Entry{
		MenuItemID:        it.ID,
		PreparationStatus: dailymenu.PrepNotStarted,
		PlannedQuantity:   in.PlannedQuantity,
		CostPerServing:    in.CostPerServing,
	}, nil
}

func requireAdmin(p user.Principal, menuID string) error {
	if !p.IsAdmin() {
		return core.NewAccessDeniedError("daily menu", menuID, p.ID, "only mess admins may manage menus")
	}
	return nil
}

func visible(p user.Principal, m dailymenu.Menu) bool {
	if !p.InTenant(m.FacilityID, m.MessID) {
		return false
	}
	if p.IsAdmin() {
		return true
	}
	for _, st := range studentVisible {
		if m.Status == st {
			return true
		}
	}
	return false
}

// restrict narrows requested statuses to those students may see.
func restrict(requested []dailymenu.Status) []dailymenu.Status {
	if len(requested) == 0 {
		return append([]dailymenu.Status(nil), studentVisible...)
	}
	out := make([]dailymenu.Status, 0, len(requested))
	for _, r := range requested {
		for _, st := range studentVisible {
			if r == st {
				out = append(out, r)
			}
		}
	}
	return out
}
