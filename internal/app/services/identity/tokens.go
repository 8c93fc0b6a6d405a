package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/campusmess/messhall/internal/app/core"
	"github.com/campusmess/messhall/internal/app/domain/user"
)

// Claims are the JWT claims carried by a session token.
type Claims struct {
	UserID     string `json:"user_id"`
	Role       string `json:"role"`
	FacilityID string `json:"facility_id"`
	MessID     string `json:"mess_id"`
	jwt.RegisteredClaims
}

// Tokens issues and validates HS256 session tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokens builds a token issuer. ttl defaults to 24h.
func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, issuer: "messhall", now: time.Now}, nil
}

// Issue signs a token for the principal.
func (t *Tokens) Issue(p user.Principal) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	claims := &Claims{
		UserID:     p.ID,
		Role:       string(p.Role),
		FacilityID: p.FacilityID,
		MessID:     p.MessID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse validates a token and returns the principal it carries.
func (t *Tokens) Parse(raw string) (user.Principal, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(t.issuer), jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return user.Principal{}, core.Unauthorized("token expired")
		}
		return user.Principal{}, core.Unauthorized("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return user.Principal{}, core.Unauthorized("invalid token")
	}
	role := user.Role(claims.Role)
	if !role.Valid() {
		return user.Principal{}, core.Unauthorized("invalid token role")
	}
	return user.Principal{ID: claims.UserID, Role: role, FacilityID: claims.FacilityID, MessID: claims.MessID}, nil
}
