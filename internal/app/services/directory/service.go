package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campusmess/messhall/internal/app/core"
	"github.com/campusmess/messhall/internal/app/domain/facility"
	"github.com/campusmess/messhall/internal/app/domain/user"
	"github.com/campusmess/messhall/internal/app/storage"
	"github.com/campusmess/messhall/pkg/logger"
)

// MessInput carries the fields of a new mess.
type MessInput struct {
	Name           string
	Description    string
	Capacity       int
	OperatingHours []facility.Hours
}

// FacilityInput carries the fields of a new facility and its first mess.
type FacilityInput struct {
	Name      string
	Type      facility.Type
	Address   string
	CreatedBy string
	Mess      MessInput
}

// Service owns the facility to mess hierarchy.
type Service struct {
	store  storage.FacilityStore
	log    *logger.Logger
	suffix func() string
}

// New constructs a directory service.
func New(store storage.FacilityStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("directory")
	}
	return &Service{store: store, log: log, suffix: newSuffix}
}

func newSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// CreateFacility creates a facility with one active mess.
func (s *Service) CreateFacility(ctx context.Context, in FacilityInput) (facility.Facility, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Mess.Name = strings.TrimSpace(in.Mess.Name)

	verr := &core.ValidationError{}
	if in.Name == "" {
		verr.Add("name", "is required")
	}
	if !in.Type.Valid() {
		verr.Add("type", "must be college or hostel")
	}
	if in.Mess.Name == "" {
		verr.Add("mess.name", "is required")
	}
	if err := verr.OrNil(); err != nil {
		return facility.Facility{}, err
	}

	if _, err := s.store.GetFacilityByName(ctx, in.Name); err == nil {
		return facility.Facility{}, core.NewConflictError("facility", in.Name, "name already registered")
	} else if !core.IsNotFound(err) {
		return facility.Facility{}, err
	}

	now := time.Now().UTC()
	f := facility.Facility{
		Name:      in.Name,
		Type:      in.Type,
		Address:   strings.TrimSpace(in.Address),
		IsActive:  true,
		CreatedBy: in.CreatedBy,
		Messes:    []facility.Mess{s.newMess(in.Name, in.Mess, now)},
	}
	created, err := s.store.CreateFacility(ctx, f)
	if err != nil {
		return facility.Facility{}, err
	}
	s.log.WithField("facility_id", created.ID).
		WithField("mess_id", created.Messes[0].MessID).
		Info("facility created")
	return created, nil
}

// AddMess appends an active mess to the facility.
func (s *Service) AddMess(ctx context.Context, facilityID string, in MessInput) (facility.Mess, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return facility.Mess{}, core.RequiredError("name")
	}

	var added facility.Mess
	err := s.mutate(ctx, "add mess", facilityID, func(f *facility.Facility) error {
		if f.MessNameTaken(in.Name, "") {
			return core.NewConflictError("mess", in.Name, "an active mess with this name already exists in the facility")
		}
		added = s.newMess(f.Name, in, time.Now().UTC())
		f.Messes = append(f.Messes, added)
		return nil
	})
	if err != nil {
		return facility.Mess{}, err
	}
	s.log.WithField("facility_id", facilityID).WithField("mess_id", added.MessID).Info("mess added")
	return added, nil
}

// UpdateMess overwrites every field present in patch.
func (s *Service) UpdateMess(ctx context.Context, facilityID, messID string, patch facility.MessPatch) (facility.Mess, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return facility.Mess{}, core.NewValidationError("name", "must not be empty")
	}

	var updated facility.Mess
	err := s.mutate(ctx, "update mess", facilityID, func(f *facility.Facility) error {
		idx := f.FindMess(messID)
		if idx < 0 {
			return core.NewNotFoundError("mess", messID)
		}
		m := f.Messes[idx]
		m.Apply(patch)
		if m.IsActive && f.MessNameTaken(m.Name, messID) {
			return core.NewConflictError("mess", m.Name, "an active mess with this name already exists in the facility")
		}
		m.UpdatedAt = time.Now().UTC()
		f.Messes[idx] = m
		updated = m
		return nil
	})
	return updated, err
}

// DeactivateMess marks the mess inactive. Deactivating twice succeeds.
func (s *Service) DeactivateMess(ctx context.Context, facilityID, messID string) (facility.Mess, error) {
	var result facility.Mess
	err := s.mutate(ctx, "deactivate mess", facilityID, func(f *facility.Facility) error {
		idx := f.FindMess(messID)
		if idx < 0 {
			return core.NewNotFoundError("mess", messID)
		}
		if !f.Messes[idx].IsActive {
			result = f.Messes[idx]
			return errUnchanged
		}
		f.Messes[idx].IsActive = false
		f.Messes[idx].UpdatedAt = time.Now().UTC()
		result = f.Messes[idx]
		return nil
	})
	if err != nil {
		return facility.Mess{}, err
	}
	s.log.WithField("facility_id", facilityID).WithField("mess_id", messID).Info("mess deactivated")
	return result, nil
}

// IsMessNameUnique reports whether no active mess other than excludeMessID
// uses name.
func (s *Service) IsMessNameUnique(ctx context.Context, facilityID, name, excludeMessID string) (bool, error) {
	f, err := s.store.GetFacility(ctx, facilityID)
	if err != nil {
		return false, err
	}
	return !f.MessNameTaken(name, excludeMessID), nil
}

// GetFacility returns one facility.
func (s *Service) GetFacility(ctx context.Context, id string) (facility.Facility, error) {
	return s.store.GetFacility(ctx, id)
}

// GetFacilityByName returns the facility registered under name.
func (s *Service) GetFacilityByName(ctx context.Context, name string) (facility.Facility, error) {
	return s.store.GetFacilityByName(ctx, strings.TrimSpace(name))
}

// ListFacilities lists facilities. With activeOnly, inactive facilities and
// their inactive messes are omitted.
func (s *Service) ListFacilities(ctx context.Context, activeOnly bool) ([]facility.Facility, error) {
	all, err := s.store.ListFacilities(ctx)
	if err != nil || !activeOnly {
		return all, err
	}
	result := make([]facility.Facility, 0, len(all))
	for _, f := range all {
		if !f.IsActive {
			continue
		}
		messes := f.Messes[:0:0]
		for _, m := range f.Messes {
			if m.IsActive {
				messes = append(messes, m)
			}
		}
		f.Messes = messes
		result = append(result, f)
	}
	return result, nil
}

// FindMess resolves a mess id to its facility and record.
func (s *Service) FindMess(ctx context.Context, messID string) (facility.Facility, facility.Mess, error) {
	f, err := s.store.GetFacilityByMess(ctx, messID)
	if err != nil {
		return facility.Facility{}, facility.Mess{}, err
	}
	idx := f.FindMess(messID)
	if idx < 0 {
		return facility.Facility{}, facility.Mess{}, core.NewNotFoundError("mess", messID)
	}
	return f, f.Messes[idx], nil
}

// Authorize checks that p administers a mess of facilityID.
func Authorize(p user.Principal, facilityID string) error {
	if !p.IsAdmin() || p.FacilityID != facilityID {
		return core.NewAccessDeniedError("facility", facilityID, p.ID, "only the facility's mess admins may change it")
	}
	return nil
}

// AuthorizeMess checks that p is the admin of messID itself. Sibling admins
// of the same facility may add messes but not edit or retire each other's.
func AuthorizeMess(p user.Principal, facilityID, messID string) error {
	if err := Authorize(p, facilityID); err != nil {
		return err
	}
	if p.MessID != messID {
		return core.NewAccessDeniedError("mess", messID, p.ID, "only the mess's own admin may change it")
	}
	return nil
}

// errUnchanged short-circuits mutate without writing.
var errUnchanged = errors.New("unchanged")

// mutate applies fn to a fresh copy of the facility and writes it back with a
// version check, retrying on concurrent modification.
func (s *Service) mutate(ctx context.Context, op, facilityID string, fn func(*facility.Facility) error) error {
	err := storage.Retry(ctx, op, storage.DefaultAttempts, func(ctx context.Context) error {
		f, err := s.store.GetFacility(ctx, facilityID)
		if err != nil {
			return err
		}
		if err := fn(&f); err != nil {
			return err
		}
		_, err = s.store.UpdateFacility(ctx, f)
		return err
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	return err
}

func (s *Service) newMess(facilityName string, in MessInput, now time.Time) facility.Mess {
	return facility.Mess{
		MessID:         facility.MessID(facilityName, in.Name, s.suffix()),
		Name:           in.Name,
		Description:    strings.TrimSpace(in.Description),
		Capacity:       in.Capacity,
		IsActive:       true,
		OperatingHours: append([]facility.Hours(nil), in.OperatingHours...),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
