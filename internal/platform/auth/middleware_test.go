package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, authHeader string) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, mw(okHandler)(c)
}

func assertStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := runMiddleware(t, JWTMiddleware(newTestIssuer(t)), "")
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runMiddleware(t, JWTMiddleware(newTestIssuer(t)), tt.header)
			assertStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	ti := newTestIssuer(t)
	tok, _ := ti.Issue("physician-1", []string{RolePhysician}, time.Hour)

	c, err := runMiddleware(t, JWTMiddleware(ti), "Bearer "+tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := c.Request().Context()
	if got := UserIDFromContext(ctx); got != "physician-1" {
		t.Errorf("expected physician-1, got %s", got)
	}
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != RolePhysician {
		t.Errorf("expected physician role, got %v", roles)
	}
}

func TestJWTMiddleware_GarbageToken(t *testing.T) {
	_, err := runMiddleware(t, JWTMiddleware(newTestIssuer(t)), "Bearer not.a.jwt")
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestDevAuthMiddleware_NoToken(t *testing.T) {
	c, err := runMiddleware(t, DevAuthMiddleware(newTestIssuer(t)), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := c.Request().Context()
	if UserIDFromContext(ctx) != "dev-user" {
		t.Errorf("expected dev-user, got %s", UserIDFromContext(ctx))
	}
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != RoleAdmin {
		t.Errorf("expected admin role, got %v", roles)
	}
}

func TestDevAuthMiddleware_VerifiesPresentedToken(t *testing.T) {
	ti := newTestIssuer(t)

	_, err := runMiddleware(t, DevAuthMiddleware(ti), "Bearer forged")
	assertStatus(t, err, http.StatusUnauthorized)

	tok, _ := ti.Issue("registrar-2", []string{RoleRegistrar}, time.Hour)
	c, err := runMiddleware(t, DevAuthMiddleware(ti), "Bearer "+tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if UserIDFromContext(c.Request().Context()) != "registrar-2" {
		t.Error("expected identity from token, not the dev default")
	}
}

func TestDevAuthMiddleware_NilIssuer(t *testing.T) {
	c, err := runMiddleware(t, DevAuthMiddleware(nil), "Bearer anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if UserIDFromContext(c.Request().Context()) != "dev-user" {
		t.Error("expected dev identity when no issuer is configured")
	}
}

func TestFromContext_Empty(t *testing.T) {
	ctx := context.Background()
	if UserIDFromContext(ctx) != "" || RolesFromContext(ctx) != nil {
		t.Error("expected zero values for empty context")
	}
}
