package user

import "time"

// Role determines which operations a user may perform.
type Role string

const (
	RoleStudent   Role = "student"
	RoleMessAdmin Role = "mess_admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleMessAdmin
}

// User is an account. Students and mess admins share one shape: both point at
// the facility and mess they belong to or manage.
type User struct {
	ID            string     `json:"id" bson:"_id"`
	Name          string     `json:"name" bson:"name"`
	Email         string     `json:"email" bson:"email"`
	PasswordHash  string     `json:"-" bson:"passwordHash"`
	Role          Role       `json:"role" bson:"role"`
	FacilityID    string     `json:"facilityId" bson:"facilityId"`
	MessID        string     `json:"messId" bson:"messId"`
	RollNumber    string     `json:"rollNumber,omitempty" bson:"rollNumber,omitempty"`
	IsActive      bool       `json:"isActive" bson:"isActive"`
	LoginAttempts int        `json:"-" bson:"loginAttempts"`
	LockUntil     *time.Time `json:"-" bson:"lockUntil,omitempty"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty" bson:"lastLoginAt,omitempty"`
	Version       int64      `json:"version" bson:"version"`
	CreatedAt     time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// Locked reports whether the account is inside a lockout window.
func (u User) Locked(now time.Time) bool {
	return u.LockUntil != nil && now.Before(*u.LockUntil)
}

// Principal returns the authenticated identity derived from the account.
func (u User) Principal() Principal {
	return Principal{ID: u.ID, Role: u.Role, FacilityID: u.FacilityID, MessID: u.MessID}
}

// Principal is the authenticated caller every protected operation receives.
type Principal struct {
	ID         string `json:"id"`
	Role       Role   `json:"role"`
	FacilityID string `json:"facilityId"`
	MessID     string `json:"messId"`
}

// IsAdmin reports whether the principal manages a mess.
func (p Principal) IsAdmin() bool { return p.Role == RoleMessAdmin }

// IsStudent reports whether the principal is a student.
func (p Principal) IsStudent() bool { return p.Role == RoleStudent }

// InTenant reports whether the principal belongs to the given tenant scope.
func (p Principal) InTenant(facilityID, messID string) bool {
	return p.FacilityID == facilityID && p.MessID == messID
}
