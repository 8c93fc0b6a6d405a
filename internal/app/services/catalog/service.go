package catalog

import (
	"context"
	"strings"

	"github.com/campusmess/messhall/internal/app/core"
	"github.com/campusmess/messhall/internal/app/domain/menuitem"
	"github.com/campusmess/messhall/internal/app/domain/stats"
	"github.com/campusmess/messhall/internal/app/domain/user"
	"github.com/campusmess/messhall/internal/app/storage"
	"github.com/campusmess/messhall/pkg/logger"
)

// ItemInput carries the fields of a new menu item.
type ItemInput struct {
	Name        string
	Description string
	Category    menuitem.Category
	IsVeg       bool
	Allergens   []string
	Nutrition   menuitem.Nutrition
	Image       *menuitem.Image
}

// Service owns dish definitions and their rating aggregates.
type Service struct {
	store storage.MenuItemStore
	log   *logger.Logger
}

// New constructs a catalog service.
func New(store storage.MenuItemStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("catalog")
	}
	return &Service{store: store, log: log}
}

// Create adds an item to the admin's mess.
func (s *Service) Create(ctx context.Context, p user.Principal, in ItemInput) (menuitem.Item, error) {
	if !p.IsAdmin() {
		return menuitem.Item{}, core.NewAccessDeniedError("menu item", "", p.ID, "only mess admins may create items")
	}
	in.Name = strings.TrimSpace(in.Name)
	verr := &core.ValidationError{}
	if in.Name == "" {
		verr.Add("name", "is required")
	}
	if !in.Category.Valid() {
		verr.Add("category", "is not a known category")
	}
	if err := verr.OrNil(); err != nil {
		return menuitem.Item{}, err
	}
	if err := s.ensureNameFree(ctx, p, in.Name, ""); err != nil {
		return menuitem.Item{}, err
	}

	it := menuitem.Item{
		FacilityID:  p.FacilityID,
		MessID:      p.MessID,
		Name:        in.Name,
		Description: strings.TrimSpace(in.Description),
		Category:    in.Category,
		IsVeg:       in.IsVeg,
		Allergens:   normalizeAllergens(in.Allergens),
		Nutrition:   in.Nutrition,
		Image:       in.Image,
		IsActive:    true,
		CreatedBy:   p.ID,
	}
	created, err := s.store.CreateMenuItem(ctx, it)
	if err != nil {
		return menuitem.Item{}, err
	}
	s.log.WithField("item_id", created.ID).WithField("mess_id", created.MessID).Info("menu item created")
	return created, nil
}

// Get returns an item visible to the principal's tenant.
func (s *Service) Get(ctx context.Context, p user.Principal, id string) (menuitem.Item, error) {
	it, err := s.store.GetMenuItem(ctx, id)
	if err != nil {
		return menuitem.Item{}, err
	}
	if !p.InTenant(it.FacilityID, it.MessID) || (!it.IsActive && !p.IsAdmin()) {
		return menuitem.Item{}, core.NewNotFoundError("menu item", id)
	}
	return it, nil
}

// Lookup returns an item without tenant checks. Collaborating services use it
// after they have established scope themselves.
func (s *Service) Lookup(ctx context.Context, id string) (menuitem.Item, error) {
	return s.store.GetMenuItem(ctx, id)
}

// List returns the tenant's items. Only admins may include inactive items.
func (s *Service) List(ctx context.Context, p user.Principal, filter menuitem.Filter) ([]menuitem.Item, error) {
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, core.NewValidationError("category", "is not a known category")
	}
	filter.FacilityID, filter.MessID = p.FacilityID, p.MessID
	if !p.IsAdmin() {
		filter.IncludeInactive = false
	}
	return s.store.ListMenuItems(ctx, filter)
}

// Update applies a partial patch.
func (s *Service) Update(ctx context.Context, p user.Principal, id string, patch menuitem.Patch) (menuitem.Item, error) {
	if !p.IsAdmin() {
		return menuitem.Item{}, core.NewAccessDeniedError("menu item", id, p.ID, "only mess admins may edit items")
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return menuitem.Item{}, core.NewValidationError("name", "must not be empty")
		}
		patch.Name = &name
	}
	if patch.Category != nil && !patch.Category.Valid() {
		return menuitem.Item{}, core.NewValidationError("category", "is not a known category")
	}
	if patch.Allergens != nil {
		normalized := normalizeAllergens(*patch.Allergens)
		patch.Allergens = &normalized
	}

	var updated menuitem.Item
	err := s.mutate(ctx, "update menu item", p, id, func(it *menuitem.Item) error {
		if patch.Name != nil && !strings.EqualFold(*patch.Name, it.Name) {
			if err := s.ensureNameFree(ctx, p, *patch.Name, it.ID); err != nil {
				return err
			}
		}
		it.Apply(patch)
		return nil
	}, &updated)
	if err != nil {
		return menuitem.Item{}, err
	}
	s.log.WithField("item_id", id).Info("menu item updated")
	return updated, nil
}

// Delete soft-deletes an item. Ratings already recorded stay valid.
func (s *Service) Delete(ctx context.Context, p user.Principal, id string) error {
	if !p.IsAdmin() {
		return core.NewAccessDeniedError("menu item", id, p.ID, "only mess admins may delete items")
	}
	err := s.mutate(ctx, "delete menu item", p, id, func(it *menuitem.Item) error {
		it.IsActive = false
		return nil
	}, nil)
	if err != nil {
		return err
	}
	s.log.WithField("item_id", id).Info("menu item deactivated")
	return nil
}

// AdjustStats applies fn to the item's rating aggregate under a version check
// and returns the stored result.
func (s *Service) AdjustStats(ctx context.Context, id string, fn func(*stats.RatingStats)) (menuitem.Item, error) {
	var updated menuitem.Item
	err := storage.Retry(ctx, "update menu item aggregate", storage.DefaultAttempts, func(ctx context.Context) error {
		it, err := s.store.GetMenuItem(ctx, id)
		if err != nil {
			return err
		}
		fn(&it.RatingStats)
		updated, err = s.store.UpdateMenuItem(ctx, it)
		return err
	})
	return updated, err
}

func (s *Service) mutate(ctx context.Context, op string, p user.Principal, id string, fn func(*menuitem.Item) error, out *menuitem.Item) error {
	return storage.Retry(ctx, op, storage.DefaultAttempts, func(ctx context.Context) error {
		it, err := s.store.GetMenuItem(ctx, id)
		if err != nil {
			return err
		}
		if !p.InTenant(it.FacilityID, it.MessID) {
			return core.NewNotFoundError("menu item", id)
		}
		if err := fn(&it); err != nil {
			return err
		}
		updated, err := s.store.UpdateMenuItem(ctx, it)
		if err != nil {
			return err
		}
		if out != nil {
			*out = updated
		}
		return nil
	})
}

func (s *Service) ensureNameFree(ctx context.Context, p user.Principal, name, excludeID string) error {
	existing, err := s.store.ListMenuItems(ctx, menuitem.Filter{FacilityID: p.FacilityID, MessID: p.MessID})
	if err != nil {
		return err
	}
	for _, it := range existing {
		if it.ID != excludeID && strings.EqualFold(it.Name, name) {
			return core.NewConflictError("menu item", name, "an active item with this name already exists")
		}
	}
	return nil
}

func normalizeAllergens(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, a := range in {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
