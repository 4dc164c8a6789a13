package auth

import (
	"fmt"
	"slices"

	"github.com/Flarenzy/smart-ipam/internal/domain"
)

var ErrInvalidToken = fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)

type Config struct {
	Enabled  bool
	Issuer   string
	Audience string
	// JWKSURL defaults to the Keycloak certs endpoint below Issuer.
	JWKSURL string
}

type Principal struct {
	Issuer   string
	Subject  string
	Audience any
	Roles    []string
	Claims   map[string]any
}

func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}
