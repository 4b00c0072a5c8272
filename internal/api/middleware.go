package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
)

const tokenTTL = 7 * 24 * time.Hour

func (s *Server) authMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get("Authorization")
		if auth == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(errorResponse{Error: "missing authorization header"})
		}

		if !s.validToken(strings.TrimPrefix(auth, "Bearer ")) {
			return c.Status(fiber.StatusUnauthorized).JSON(errorResponse{Error: "invalid token"})
		}

		return c.Next()
	}
}

// upgradeMiddleware only lets authenticated WebSocket upgrades through.
// Browsers cannot set headers on upgrades, so the token rides in ?token=.
func (s *Server) upgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if !s.validToken(c.Query("token")) {
			return c.Status(fiber.StatusUnauthorized).JSON(errorResponse{Error: "invalid token"})
		}
		return c.Next()
	}
}

func (s *Server) metricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		s.metrics.RecordRequest(status < fiber.StatusInternalServerError, time.Since(start))
		return err
	}
}

func (s *Server) issueToken(now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "patient",
		"iat": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
	})
	return token.SignedString([]byte(s.config.Security.JWTSecret))
}

func (s *Server) validToken(raw string) bool {
	if raw == "" {
		return false
	}
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.Security.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return err == nil && token.Valid
}
