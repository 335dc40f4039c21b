// Package auth verifies the signed identity token presented by every
// connection and by admin requests.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	HeaderToken = "x-token"

	// RoleGod marks an identity allowed to edit the world (tiles, parcels).
	RoleGod = "god"

	adminUser = "admin"
)

var (
	ErrAuthentication = errors.New("authentication failed")
	ErrMissingToken   = errors.New("missing token")
	errSigningMethod  = errors.New("unexpected signing method")
)

// Identity is what a verified token says about its bearer.
type Identity struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TeamID     string `json:"teamId,omitempty"`
	TeamName   string `json:"teamName,omitempty"`
	Privileged bool   `json:"-"`
}

type claims struct {
	AgentID  string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	TeamID   string `json:"teamId,omitempty"`
	TeamName string `json:"teamName,omitempty"`
	Role     string `json:"role,omitempty"`
	User     string `json:"user,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify checks signature and required claims. Every failure wraps
// ErrAuthentication.
func (v *Verifier) Verify(token string) (Identity, error) {
	c, err := parse(v.secret, token)
	if err != nil {
		return Identity{}, err
	}
	id := strings.TrimSpace(c.AgentID)
	if id == "" {
		id = strings.TrimSpace(c.Subject)
	}
	if id == "" {
		return Identity{}, fmt.Errorf("%w: missing id claim", ErrAuthentication)
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return Identity{}, fmt.Errorf("%w: missing name claim", ErrAuthentication)
	}
	teamID := strings.TrimSpace(c.TeamID)
	teamName := strings.TrimSpace(c.TeamName)
	if teamID == "" {
		teamName = ""
	} else if teamName == "" {
		teamName = teamID
	}
	return Identity{
		ID:         id,
		Name:       name,
		TeamID:     teamID,
		TeamName:   teamName,
		Privileged: c.Role == RoleGod,
	}, nil
}

// AdminVerifier accepts tokens signed with the admin secret that carry
// user=admin.
type AdminVerifier struct {
	secret []byte
}

func NewAdminVerifier(secret string) *AdminVerifier {
	return &AdminVerifier{secret: []byte(secret)}
}

func (v *AdminVerifier) Verify(token string) error {
	c, err := parse(v.secret, token)
	if err != nil {
		return err
	}
	if c.User != adminUser {
		return fmt.Errorf("%w: not an admin token", ErrAuthentication)
	}
	return nil
}

func parse(secret []byte, token string) (*claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, ErrMissingToken)
	}
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errSigningMethod
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid token", ErrAuthentication)
	}
	return c, nil
}

// Sign issues an identity token. Used by cmd/admin and tests.
func Sign(secret string, id Identity) (string, error) {
	c := claims{
		AgentID:  id.ID,
		Name:     id.Name,
		TeamID:   id.TeamID,
		TeamName: id.TeamName,
	}
	if id.Privileged {
		c.Role = RoleGod
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

func SignAdmin(secret string) (string, error) {
	c := claims{User: adminUser}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

// TokenFromRequest reads the token from the x-token header, a bearer
// Authorization header, or the token query parameter, in that order.
func TokenFromRequest(r *http.Request) string {
	if tok := strings.TrimSpace(r.Header.Get(HeaderToken)); tok != "" {
		return tok
	}
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
