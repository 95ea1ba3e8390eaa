// Package auth resolves request credentials into an Identity. Two kinds of
// bearer credential are accepted: the local service token used by the CLI,
// and HS256 JWTs issued by the identity provider whose subject maps to a
// users row.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/sswtrack/sswtrack/internal/storage"
)

var (
	ErrUnauthenticated = errors.New("invalid or missing credentials")
	ErrUnknownUser     = errors.New("no user is registered for this account")
	ErrInactive        = errors.New("user account is not active")
)

type Role string

const (
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

// ParseRole reports whether v names a known role.
func ParseRole(v string) (Role, bool) {
	switch r := Role(v); r {
	case RoleOwner, RoleAdmin, RoleStaff:
		return r, true
	}
	return "", false
}

// CanWrite reports whether the role may modify records. Staff are read-only.
func (r Role) CanWrite() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Label is the Japanese display name used in invitations.
func (r Role) Label() string {
	switch r {
	case RoleOwner:
		return "責任者"
	case RoleAdmin:
		return "担当者"
	case RoleStaff:
		return "確認者"
	}
	return string(r)
}

// CanInvite reports whether inviter may create a user with role invitee.
// Only owners may invite another owner.
func CanInvite(inviter, invitee Role) bool {
	if !inviter.CanWrite() {
		return false
	}
	return invitee != RoleOwner || inviter == RoleOwner
}

// Identity is the authenticated caller.
type Identity struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Role   Role   `json:"role"`
	System bool   `json:"system,omitempty"`
}

// SystemIdentity is used for requests made with the service token.
var SystemIdentity = Identity{UserID: "system", Name: "system", Role: RoleOwner, System: true}

// Verifier validates provider-issued HS256 tokens.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Subject validates token and returns its "sub" claim.
func (v *Verifier) Subject(token string) (string, error) {
	if len(v.secret) == 0 {
		return "", fmt.Errorf("%w: token verification is not configured", ErrUnauthenticated)
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return claims.Subject, nil
}

// Issue signs a token for subject. Used by tests and local tooling.
func (v *Verifier) Issue(subject string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// UserLookup is the storage subset the Authenticator needs.
type UserLookup interface {
	GetUserByAuthID(authID string) (storage.User, error)
}

type Authenticator struct {
	verifier     *Verifier
	users        UserLookup
	serviceToken string
}

func NewAuthenticator(v *Verifier, users UserLookup, serviceToken string) *Authenticator {
	return &Authenticator{verifier: v, users: users, serviceToken: serviceToken}
}

// Subject exposes token validation without the user lookup, for invite
// acceptance where the subject is not yet bound to a user.
func (a *Authenticator) Subject(token string) (string, error) {
	return a.verifier.Subject(token)
}

// Authenticate resolves a bearer credential.
func (a *Authenticator) Authenticate(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}
	if a.serviceToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(a.serviceToken)) == 1 {
		return SystemIdentity, nil
	}
	sub, err := a.verifier.Subject(token)
	if err != nil {
		return Identity{}, err
	}
	u, err := a.users.GetUserByAuthID(sub)
	if errors.Is(err, storage.ErrNotFound) {
		return Identity{}, ErrUnknownUser
	}
	if err != nil {
		return Identity{}, fmt.Errorf("looking up user: %w", err)
	}
	if u.Status != "active" {
		return Identity{}, ErrInactive
	}
	role, ok := ParseRole(u.Role)
	if !ok {
		return Identity{}, fmt.Errorf("user %s has unknown role %q", u.ID, u.Role)
	}
	return Identity{UserID: u.ID, Name: u.Name, Email: u.Email, Role: role}, nil
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
