package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
)

func JWTMiddleware(issuer *TokenIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			return authenticate(c, next, issuer, authHeader)
		}
	}
}

// DevAuthMiddleware treats unauthenticated requests as an admin named
// dev-user. Requests that do carry a token are still verified when issuer is
// non-nil.
func DevAuthMiddleware(issuer *TokenIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" || issuer == nil {
				setIdentity(c, "dev-user", []string{RoleAdmin})
				return next(c)
			}
			return authenticate(c, next, issuer, authHeader)
		}
	}
}

func authenticate(c echo.Context, next echo.HandlerFunc, issuer *TokenIssuer, authHeader string) error {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}

	claims, err := issuer.Verify(strings.TrimSpace(parts[1]))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	setIdentity(c, claims.Subject, claims.Roles)
	return next(c)
}

func setIdentity(c echo.Context, userID string, roles []string) {
	ctx := c.Request().Context()
	ctx = context.WithValue(ctx, UserIDKey, userID)
	ctx = context.WithValue(ctx, UserRolesKey, roles)
	c.SetRequest(c.Request().WithContext(ctx))
	c.Set("user_id", userID)
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}
