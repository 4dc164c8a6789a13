package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Flarenzy/smart-ipam/internal/domain"
	"github.com/MicahParks/jwkset"
	"github.com/golang-jwt/jwt/v5"
)

type staticKeyfunc struct {
	secret []byte
}

func (s staticKeyfunc) Keyfunc(_ *jwt.Token) (any, error) {
	return s.secret, nil
}

func (s staticKeyfunc) KeyfuncCtx(_ context.Context) jwt.Keyfunc {
	return s.Keyfunc
}

func (s staticKeyfunc) Storage() jwkset.Storage {
	return nil
}

func (s staticKeyfunc) VerificationKeySet(_ context.Context) (jwt.VerificationKeySet, error) {
	return jwt.VerificationKeySet{}, nil
}

const testIssuer = "http://keycloak.local/realms/ipam"

func newTestAuthenticator() *oidcAuthenticator {
	return &oidcAuthenticator{
		issuer:   testIssuer,
		audience: "ipam-api",
		jwks:     staticKeyfunc{secret: []byte("test-secret")},
	}
}

func signToken(t *testing.T, claims jwt.MapClaims, secret []byte) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	return signed
}

func makeClaims(issuer string, audience any) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": issuer,
		"sub": "user-1",
		"aud": audience,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
}

func TestAuthenticatorRejectsWrongAudience(t *testing.T) {
	token := signToken(t, makeClaims(testIssuer, []string{"other-api"}), []byte("test-secret"))
	_, err := newTestAuthenticator().Authenticate(context.Background(), token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected invalid token to be an unauthorized error, got %v", err)
	}
}

func TestAuthenticatorRejectsExpiredToken(t *testing.T) {
	claims := makeClaims(testIssuer, []string{"ipam-api"})
	claims["exp"] = time.Now().Add(-time.Hour).Unix()

	token := signToken(t, claims, []byte("test-secret"))
	if _, err := newTestAuthenticator().Authenticate(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAuthenticatorReturnsPrincipalWithRoles(t *testing.T) {
	claims := makeClaims(testIssuer, []string{"ipam-api"})
	claims["realm_access"] = map[string]any{"roles": []any{"offline_access"}}
	claims["resource_access"] = map[string]any{
		"ipam-api": map[string]any{"roles": []any{"ipam-writer"}},
		"other":    map[string]any{"roles": []any{"admin"}},
	}

	token := signToken(t, claims, []byte("test-secret"))
	principal, err := newTestAuthenticator().Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if principal.Issuer != testIssuer {
		t.Fatalf("unexpected issuer: %v", principal.Issuer)
	}
	if principal.Subject != "user-1" {
		t.Fatalf("unexpected subject: %v", principal.Subject)
	}
	if !principal.HasRole("ipam-writer") || !principal.HasRole("offline_access") {
		t.Fatalf("expected realm and client roles, got %v", principal.Roles)
	}
	if principal.HasRole("admin") {
		t.Fatalf("roles of other clients must not leak, got %v", principal.Roles)
	}
}

func TestNewOIDCAuthenticatorDisabledReturnsNil(t *testing.T) {
	authenticator, err := NewOIDCAuthenticator(context.Background(), Config{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if authenticator != nil {
		t.Fatal("expected nil authenticator when auth is disabled")
	}
}

func TestNewOIDCAuthenticatorFailsWhenJWKSUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/certs" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("no jwks"))
	}))
	defer server.Close()

	_, err := NewOIDCAuthenticator(context.Background(), Config{
		Enabled:  true,
		Issuer:   testIssuer,
		JWKSURL:  server.URL + "/certs",
		Audience: "ipam-api",
	})
	if err == nil {
		t.Fatal("expected error when jwks endpoint is unavailable")
	}
	if !strings.Contains(err.Error(), "jwks endpoint returned 502") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPrincipalContextRoundTrip(t *testing.T) {
	ctx := WithPrincipal(context.Background(), Principal{Subject: "user-1"})
	principal, ok := PrincipalFromContext(ctx)
	if !ok || principal.Subject != "user-1" {
		t.Fatalf("expected principal in context, got %+v, %v", principal, ok)
	}
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatal("expected no principal in empty context")
	}
}
