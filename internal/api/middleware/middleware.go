package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vaultsweep/vaultsweep/internal/auth"
	"github.com/vaultsweep/vaultsweep/internal/db"
)

const (
	ContextKeyUserID = "user_id"
)

func APIKeyAuth(db *db.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			apiKey, err := bearerToken(c)
			if err != nil {
				return err
			}

			prefix, err := auth.PrefixOf(apiKey)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid api key format")
			}

			keys, err := db.APIKeys.GetByPrefix(c.Request().Context(), prefix)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "database error")
			}

			var validKey *uuid.UUID
			var userID uuid.UUID
			for _, k := range keys {
				if auth.ValidateAPIKey(apiKey, k.KeyHash) {
					validKey = &k.ID
					userID = k.UserID
					break
				}
			}
			if validKey == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid api key")
			}

			// Update last used asynchronously
			go func(id uuid.UUID) {
				_ = db.APIKeys.UpdateLastUsed(context.Background(), id)
			}(*validKey)

			c.Set(ContextKeyUserID, userID)
			return next(c)
		}
	}
}

func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr, err := bearerToken(c)
			if err != nil {
				return err
			}

			claims, err := auth.VerifyJWT(secret, tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			userID, err := uuid.Parse(claims.UserID)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid user id in token")
			}

			c.Set(ContextKeyUserID, userID)
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return parts[1], nil
}
