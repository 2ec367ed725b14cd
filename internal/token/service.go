// Package token manages the access/refresh token lifecycle. An account owns
// at most one live refresh token; issuing a new pair supersedes the previous
// refresh token immediately.
package token

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tradexcel/backend/internal/account"
	"github.com/tradexcel/backend/internal/apperr"
	"github.com/tradexcel/backend/internal/config"
)

// Service issues, rotates and revokes token pairs.
type Service struct {
	cfg      config.Config
	accounts account.Repository
}

// NewService creates a token service.
func NewService(cfg config.Config, accounts account.Repository) *Service {
	return &Service{cfg: cfg, accounts: accounts}
}

// Pair is an issued access/refresh token pair.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// IssuePair signs a new access/refresh pair for the account and persists the
// refresh token on it, invalidating any previously issued refresh token.
func (s *Service) IssuePair(ctx context.Context, accountID string) (Pair, error) {
	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return Pair{}, err
	}

	now := time.Now()
	access, err := sign(AccessClaims{
		Username:         acct.Username,
		Email:            acct.Email,
		Name:             acct.Name,
		PhoneNumber:      acct.PhoneNumber,
		RegisteredClaims: registeredClaims(acct.ID, now, s.cfg.AccessTokenTTL),
	}, s.cfg.AccessTokenSecret)
	if err != nil {
		return Pair{}, apperr.Internal(err)
	}

	refresh, err := sign(registeredClaims(acct.ID, now, s.cfg.RefreshTokenTTL), s.cfg.RefreshTokenSecret)
	if err != nil {
		return Pair{}, apperr.Internal(err)
	}

	if err := s.accounts.SetRefreshToken(ctx, acct.ID, refresh); err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

// Rotate verifies the presented refresh token, rejects anything that is not
// the account's current stored value (superseded or revoked tokens included),
// and issues a fresh pair.
func (s *Service) Rotate(ctx context.Context, refreshToken string) (account.Account, Pair, error) {
	sub, err := parseRefresh(s.cfg.RefreshTokenSecret, refreshToken)
	if err != nil {
		return account.Account{}, Pair{}, apperr.Unauthorized("invalid refresh token")
	}

	acct, err := s.accounts.FindByID(ctx, sub)
	if err != nil {
		return account.Account{}, Pair{}, apperr.NotFound("invalid refresh token")
	}

	if acct.RefreshToken == "" || acct.RefreshToken != refreshToken {
		return account.Account{}, Pair{}, apperr.Unauthorized("refresh token is expired or used")
	}

	pair, err := s.IssuePair(ctx, acct.ID)
	if err != nil {
		return account.Account{}, Pair{}, err
	}
	return acct.Sanitized(), pair, nil
}

// Login resolves the account by username or email, verifies the password and
// then the PIN, and issues a token pair. The password is always checked
// first so a bad password reveals nothing about the PIN.
func (s *Service) Login(ctx context.Context, identifier, password, pin string) (account.Account, Pair, error) {
	if identifier == "" || password == "" || pin == "" {
		return account.Account{}, Pair{}, apperr.Validation("email or username, password, and PIN are required")
	}

	acct, err := s.accounts.FindByEmailOrUsername(ctx, identifier)
	if err != nil {
		return account.Account{}, Pair{}, err
	}

	if err := bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(password)); err != nil {
		return account.Account{}, Pair{}, apperr.Unauthorized("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(acct.PINHash, []byte(pin)); err != nil {
		return account.Account{}, Pair{}, apperr.Forbidden("invalid PIN")
	}

	pair, err := s.IssuePair(ctx, acct.ID)
	if err != nil {
		return account.Account{}, Pair{}, err
	}
	return acct.Sanitized(), pair, nil
}

// Logout clears the account's stored refresh token, making any previously
// issued refresh token permanently unusable for rotation.
func (s *Service) Logout(ctx context.Context, accountID string) error {
	return s.accounts.ClearRefreshToken(ctx, accountID)
}
