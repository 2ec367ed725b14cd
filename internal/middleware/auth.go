package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/tradexcel/backend/internal/account"
	"github.com/tradexcel/backend/internal/apperr"
	"github.com/tradexcel/backend/internal/token"
)

// AccessTokenCookie is the cookie carrying the access token. It takes
// precedence over the Authorization header.
const AccessTokenCookie = "accessToken"

const accountLocal = "account"

// AuthGuard validates the access token on protected routes and attaches the
// resolved account (credential fields stripped) to the request. The refresh
// token is never consulted here.
func AuthGuard(accessSecret string, accounts account.Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := c.Cookies(AccessTokenCookie)
		if tokenStr == "" {
			authz := c.Get(fiber.HeaderAuthorization)
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				tokenStr = strings.TrimSpace(authz[len("Bearer "):])
			}
		}
		if tokenStr == "" {
			return apperr.Unauthorized("missing access token")
		}

		sub, err := token.ParseAccess(accessSecret, tokenStr)
		if err != nil {
			return apperr.Unauthorized("invalid access token")
		}

		acct, err := accounts.FindByID(c.UserContext(), sub)
		if err != nil {
			// The account behind the token is gone; to the caller this is
			// indistinguishable from an invalid token.
			return apperr.Unauthorized("invalid access token")
		}

		c.Locals(accountLocal, acct.Sanitized())
		return c.Next()
	}
}

// AccountFromCtx returns the authenticated account attached by AuthGuard.
func AccountFromCtx(c *fiber.Ctx) (account.Account, bool) {
	acct, ok := c.Locals(accountLocal).(account.Account)
	return acct, ok
}
