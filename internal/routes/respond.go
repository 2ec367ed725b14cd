package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tradexcel/backend/internal/config"
	"github.com/tradexcel/backend/internal/middleware"
	"github.com/tradexcel/backend/internal/token"
)

// RefreshTokenCookie is the cookie carrying the refresh token.
const RefreshTokenCookie = "refreshToken"

// respond writes the uniform success envelope with the HTTP status mirrored
// in the body.
func respond(c *fiber.Ctx, status int, data any, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"status":  status,
		"data":    data,
		"message": message,
	})
}

func authCookie(cfg config.Config, name, value string, ttl time.Duration) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		HTTPOnly: true,
		Secure:   cfg.CookieSecure(),
		SameSite: cfg.CookieSameSite(),
	}
}

func setAuthCookies(c *fiber.Ctx, cfg config.Config, pair token.Pair) {
	c.Cookie(authCookie(cfg, middleware.AccessTokenCookie, pair.AccessToken, cfg.AccessTokenTTL))
	c.Cookie(authCookie(cfg, RefreshTokenCookie, pair.RefreshToken, cfg.RefreshTokenTTL))
}

func clearAuthCookies(c *fiber.Ctx, cfg config.Config) {
	c.Cookie(authCookie(cfg, middleware.AccessTokenCookie, "", -time.Hour))
	c.Cookie(authCookie(cfg, RefreshTokenCookie, "", -time.Hour))
}
