package main

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const userIDContextKey = "user_id"

// JWTAuth validates the Bearer token issued by the booking backend and puts
// its subject on the context. An empty secret disables the check.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if secret == "" {
			return next
		}
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return NewAppError("UNAUTHORIZED", "missing bearer token", http.StatusUnauthorized)
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !tok.Valid {
				return NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized)
			}

			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return NewAppError("UNAUTHORIZED", "invalid claims", http.StatusUnauthorized)
			}
			// The booking backend issues numeric user ids.
			var sub string
			switch v := claims["sub"].(type) {
			case string:
				sub = v
			case float64:
				sub = strconv.FormatInt(int64(v), 10)
			}
			if sub == "" {
				return NewAppError("UNAUTHORIZED", "invalid claims", http.StatusUnauthorized)
			}

			c.Set(userIDContextKey, sub)
			return next(c)
		}
	}
}

// requestLogger logs each request through zerolog.
func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info().
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Msg("request")
			return nil
		}
	}
}
