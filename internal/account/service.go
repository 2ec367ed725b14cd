package account

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/tradexcel/backend/internal/apperr"
)

// Service manages profile and credential updates on confirmed accounts.
type Service struct {
	repo Repository
}

// NewService creates a new account service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns the account without credential fields.
func (s *Service) Get(ctx context.Context, id string) (Account, error) {
	acct, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Account{}, err
	}
	return acct.Sanitized(), nil
}

// UpdateProfile applies a partial update and returns the updated account
// without credential fields.
func (s *Service) UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (Account, error) {
	if patch.Empty() {
		return Account{}, apperr.Validation("no fields provided for update")
	}
	acct, err := s.repo.UpdateProfile(ctx, id, patch)
	if err != nil {
		return Account{}, err
	}
	return acct.Sanitized(), nil
}

// ChangeCredentialsInput carries the optional password and PIN change pairs.
type ChangeCredentialsInput struct {
	OldPassword string
	NewPassword string
	OldPIN      string
	NewPIN      string
}

// ChangeCredentials updates the password and/or PIN. Each change requires
// both the old and the new value; the old value is verified before anything
// is written.
func (s *Service) ChangeCredentials(ctx context.Context, id string, in ChangeCredentialsInput) error {
	if in.OldPassword == "" && in.NewPassword == "" && in.OldPIN == "" && in.NewPIN == "" {
		return apperr.Validation("no fields provided for update")
	}

	acct, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	var passwordHash, pinHash []byte

	if in.OldPassword != "" || in.NewPassword != "" {
		if in.OldPassword == "" || in.NewPassword == "" {
			return apperr.Validation("both oldPassword and newPassword are required to update the password")
		}
		if err := bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(in.OldPassword)); err != nil {
			return apperr.Unauthorized("invalid old password")
		}
		passwordHash, err = bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			return apperr.Internal(err)
		}
	}

	if in.OldPIN != "" || in.NewPIN != "" {
		if in.OldPIN == "" || in.NewPIN == "" {
			return apperr.Validation("both oldPin and newPin are required to update the PIN")
		}
		if err := bcrypt.CompareHashAndPassword(acct.PINHash, []byte(in.OldPIN)); err != nil {
			return apperr.Unauthorized("invalid old PIN")
		}
		pinHash, err = bcrypt.GenerateFromPassword([]byte(in.NewPIN), bcrypt.DefaultCost)
		if err != nil {
			return apperr.Internal(err)
		}
	}

	return s.repo.UpdateCredentials(ctx, id, passwordHash, pinHash)
}
