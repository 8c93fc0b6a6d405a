package identity

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/campusmess/messhall/internal/app/core"
	"github.com/campusmess/messhall/internal/app/domain/facility"
	"github.com/campusmess/messhall/internal/app/domain/user"
	"github.com/campusmess/messhall/internal/app/services/directory"
	"github.com/campusmess/messhall/internal/app/storage"
	"github.com/campusmess/messhall/pkg/logger"
)

// Lockout policy.
const (
	MaxLoginAttempts = 5
	LockDuration     = 2 * time.Hour
	MinPasswordLen   = 8
)

// Directory is the subset of the directory service registration relies on.
type Directory interface {
	FindMess(ctx context.Context, messID string) (facility.Facility, facility.Mess, error)
	GetFacilityByName(ctx context.Context, name string) (facility.Facility, error)
	CreateFacility(ctx context.Context, in directory.FacilityInput) (facility.Facility, error)
	AddMess(ctx context.Context, facilityID string, in directory.MessInput) (facility.Mess, error)
	DeactivateMess(ctx context.Context, facilityID, messID string) (facility.Mess, error)
}

// Registration carries sign-up fields. Students join MessID; admins name the
// facility and mess they manage, creating either when missing.
type Registration struct {
	Name         string
	Email        string
	Password     string
	Role         user.Role
	RollNumber   string
	MessID       string
	FacilityName string
	FacilityType facility.Type
	MessName     string
}

// Session is the result of a successful login or registration.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      user.User `json:"user"`
}

// Service owns accounts, password hashing and session issuance.
type Service struct {
	users     storage.UserStore
	directory Directory
	tokens    *Tokens
	log       *logger.Logger
	now       func() time.Time
	cost      int
}

// New constructs an identity service.
func New(users storage.UserStore, dir Directory, tokens *Tokens, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("identity")
	}
	return &Service{users: users, directory: dir, tokens: tokens, log: log, now: time.Now, cost: bcrypt.DefaultCost}
}

// Tokens exposes the token issuer for the HTTP auth middleware.
func (s *Service) Tokens() *Tokens { return s.tokens }

// Register creates an account and signs the caller in.
func (s *Service) Register(ctx context.Context, reg Registration) (Session, error) {
	reg.Email = strings.ToLower(strings.TrimSpace(reg.Email))
	reg.Name = strings.TrimSpace(reg.Name)
	if err := validateRegistration(reg); err != nil {
		return Session{}, err
	}

	if _, err := s.users.GetUserByEmail(ctx, reg.Email); err == nil {
		return Session{}, core.NewConflictError("user", reg.Email, "email already registered")
	} else if !core.IsNotFound(err) {
		return Session{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
	if err != nil {
		return Session{}, err
	}

	u := user.User{
		Name:         reg.Name,
		Email:        reg.Email,
		PasswordHash: string(hash),
		Role:         reg.Role,
		IsActive:     true,
	}

	switch reg.Role {
	case user.RoleStudent:
		f, m, err := s.directory.FindMess(ctx, reg.MessID)
		if err != nil {
			return Session{}, err
		}
		if !f.IsActive || !m.IsActive {
			return Session{}, core.NewInvalidStateError("mess", "mess is not accepting students")
		}
		u.FacilityID, u.MessID, u.RollNumber = f.ID, m.MessID, strings.TrimSpace(reg.RollNumber)
	case user.RoleMessAdmin:
		facilityID, messID, err := s.provisionMess(ctx, reg)
		if err != nil {
			return Session{}, err
		}
		u.FacilityID, u.MessID = facilityID, messID
	}

	created, err := s.users.CreateUser(ctx, u)
	if err != nil {
		if reg.Role == user.RoleMessAdmin {
			s.releaseMess(ctx, u.FacilityID, u.MessID)
		}
		return Session{}, err
	}
	s.log.WithField("user_id", created.ID).
		WithField("role", created.Role).
		WithField("mess_id", created.MessID).
		Info("user registered")
	return s.session(created)
}

// provisionMess finds or creates the facility and mess an admin manages.
func (s *Service) provisionMess(ctx context.Context, reg Registration) (string, string, error) {
	in := directory.MessInput{Name: reg.MessName}
	f, err := s.directory.GetFacilityByName(ctx, reg.FacilityName)
	switch {
	case core.IsNotFound(err):
		created, err := s.directory.CreateFacility(ctx, directory.FacilityInput{
			Name: reg.FacilityName, Type: reg.FacilityType, CreatedBy: reg.Email, Mess: in,
		})
		if err != nil {
			return "", "", err
		}
		return created.ID, created.Messes[0].MessID, nil
	case err != nil:
		return "", "", err
	}

	m, err := s.directory.AddMess(ctx, f.ID, in)
	if err != nil {
		return "", "", err
	}
	return f.ID, m.MessID, nil
}

// releaseMess deactivates a mess provisioned for a registration whose account
// could not be stored, freeing its name for the next attempt.
func (s *Service) releaseMess(ctx context.Context, facilityID, messID string) {
	if _, err := s.directory.DeactivateMess(context.WithoutCancel(ctx), facilityID, messID); err != nil {
		s.log.WithError(err).
			WithField("facility_id", facilityID).
			WithField("mess_id", messID).
			Error("release provisioned mess")
		return
	}
	s.log.WithField("mess_id", messID).Warn("provisioned mess released after failed registration")
}

// Login verifies credentials. Five consecutive failures lock the account for
// two hours; a success clears the counter.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.GetUserByEmail(ctx, email)
	if core.IsNotFound(err) {
		return Session{}, core.Unauthorized("invalid email or password")
	}
	if err != nil {
		return Session{}, err
	}
	if !u.IsActive {
		return Session{}, core.Unauthorized("account disabled")
	}
	now := s.now().UTC()
	if u.Locked(now) {
		return Session{}, core.Unauthorized("account locked; try again later")
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		locked, err := s.recordFailure(ctx, u.ID, now)
		if err != nil {
			return Session{}, err
		}
		if locked {
			s.log.WithField("user_id", u.ID).Warn("account locked after repeated login failures")
			return Session{}, core.Unauthorized("account locked; try again later")
		}
		return Session{}, core.Unauthorized("invalid email or password")
	}

	var signedIn user.User
	err = s.update(ctx, "record login", u.ID, func(u *user.User) error {
		u.LoginAttempts = 0
		u.LockUntil = nil
		u.LastLoginAt = &now
		return nil
	}, &signedIn)
	if err != nil {
		return Session{}, err
	}
	return s.session(signedIn)
}

func (s *Service) recordFailure(ctx context.Context, userID string, now time.Time) (bool, error) {
	locked := false
	err := s.update(ctx, "record login failure", userID, func(u *user.User) error {
		locked = false
		if u.LockUntil != nil && !u.Locked(now) {
			u.LockUntil = nil
			u.LoginAttempts = 0
		}
		u.LoginAttempts++
		if u.LoginAttempts >= MaxLoginAttempts {
			until := now.Add(LockDuration)
			u.LockUntil = &until
			u.LoginAttempts = 0
			locked = true
		}
		return nil
	}, nil)
	return locked, err
}

// Me returns the principal's account.
func (s *Service) Me(ctx context.Context, p user.Principal) (user.User, error) {
	return s.users.GetUser(ctx, p.ID)
}

// ChangePassword replaces the password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, p user.Principal, current, next string) error {
	if len(next) < MinPasswordLen {
		return core.NewValidationError("newPassword", "must be at least 8 characters")
	}
	if current == next {
		return core.NewValidationError("newPassword", "must differ from the current password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return err
	}
	err = s.update(ctx, "change password", p.ID, func(u *user.User) error {
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
			return core.Unauthorized("current password is incorrect")
		}
		u.PasswordHash = string(hash)
		return nil
	}, nil)
	if err != nil {
		return err
	}
	s.log.WithField("user_id", p.ID).Info("password changed")
	return nil
}

func (s *Service) update(ctx context.Context, op, userID string, fn func(*user.User) error, out *user.User) error {
	return storage.Retry(ctx, op, storage.DefaultAttempts, func(ctx context.Context) error {
		u, err := s.users.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if err := fn(&u); err != nil {
			return err
		}
		updated, err := s.users.UpdateUser(ctx, u)
		if err != nil {
			return err
		}
		if out != nil {
			*out = updated
		}
		return nil
	})
}

func (s *Service) session(u user.User) (Session, error) {
	if s.tokens == nil {
		return Session{}, errors.New("token issuer not configured")
	}
	token, expires, err := s.tokens.Issue(u.Principal())
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expires, User: u}, nil
}

func validateRegistration(reg Registration) error {
	verr := &core.ValidationError{}
	if reg.Name == "" {
		verr.Add("name", "is required")
	}
	if _, err := mail.ParseAddress(reg.Email); err != nil || reg.Email == "" {
		verr.Add("email", "must be a valid email address")
	}
	if len(reg.Password) < MinPasswordLen {
		verr.Add("password", "must be at least 8 characters")
	}
	switch reg.Role {
	case user.RoleStudent:
		if strings.TrimSpace(reg.MessID) == "" {
			verr.Add("messId", "is required")
		}
	case user.RoleMessAdmin:
		if strings.TrimSpace(reg.FacilityName) == "" {
			verr.Add("facilityName", "is required")
		}
		if strings.TrimSpace(reg.MessName) == "" {
			verr.Add("messName", "is required")
		}
	default:
		verr.Add("role", "must be student or mess_admin")
	}
	return verr.OrNil()
}
