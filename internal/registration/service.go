// Package registration implements the submit → OTP pending → verified flow
// that turns a registration request into a confirmed account.
package registration

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tradexcel/backend/internal/account"
	"github.com/tradexcel/backend/internal/apperr"
	"github.com/tradexcel/backend/internal/otp"
)

// Service drives the registration state machine.
type Service struct {
	accounts  account.Repository
	issuer    *otp.Issuer
	logger    *slog.Logger
	retention time.Duration
}

// NewService creates a registration service. Retention bounds how long an
// unverified pending registration outlives its OTP expiry before Sweep
// removes it.
func NewService(accounts account.Repository, issuer *otp.Issuer, logger *slog.Logger, retention time.Duration) *Service {
	return &Service{accounts: accounts, issuer: issuer, logger: logger, retention: retention}
}

// SubmitInput carries the fields of a registration request.
type SubmitInput struct {
	Name        string
	Username    string
	Email       string
	Password    string
	DOB         time.Time
	PhoneNumber string
	CountryCode string
	PIN         string
	OTPMethod   string
}

// Submit validates the request, checks uniqueness against confirmed
// accounts, dispatches an OTP and writes the pending registration. The OTP
// is dispatched before the pending row is written, so a delivery failure
// leaves no record behind.
func (s *Service) Submit(ctx context.Context, in SubmitInput) error {
	if err := validateSubmit(in); err != nil {
		return err
	}

	exists, err := s.accounts.ExistsConflicting(ctx, in.Email, in.PhoneNumber, in.CountryCode, in.Username)
	if err != nil {
		return apperr.Internal(err)
	}
	if exists {
		return apperr.Conflict("email, phone number, or username is already registered")
	}

	contact := in.Email
	if in.OTPMethod == otp.MethodPhone {
		contact = in.PhoneNumber
	}
	code, err := s.issuer.Issue(ctx, contact, in.OTPMethod, in.CountryCode)
	if err != nil {
		return err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Internal(err)
	}
	pinHash, err := bcrypt.GenerateFromPassword([]byte(in.PIN), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Internal(err)
	}

	pending := account.PendingRegistration{
		ID:           uuid.New().String(),
		Name:         in.Name,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: passwordHash,
		PINHash:      pinHash,
		DOB:          in.DOB,
		PhoneNumber:  in.PhoneNumber,
		CountryCode:  in.CountryCode,
		OTP:          code.Value,
		OTPExpiry:    code.Expiry,
		OTPMethod:    in.OTPMethod,
		OTPVerified:  false,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.accounts.CreatePending(ctx, pending); err != nil {
		return err
	}

	s.logger.Info("registration submitted",
		slog.String("pending_id", pending.ID),
		slog.String("username", pending.Username),
		slog.String("otp_method", pending.OTPMethod),
	)
	return nil
}

// VerifyInput identifies a pending registration and the code to check
// against it.
type VerifyInput struct {
	Email       string
	PhoneNumber string
	OTPMethod   string
	OTP         string
}

// Verify checks the submitted code against the pending registration and, on
// success, promotes it to a confirmed account. The pending fields are copied
// onto the account verbatim; promotion and pending deletion happen in one
// repository transaction.
func (s *Service) Verify(ctx context.Context, in VerifyInput) (account.Account, error) {
	if in.OTPMethod == "" || in.OTP == "" {
		return account.Account{}, apperr.Validation("OTP method and OTP are required")
	}

	var (
		pending account.PendingRegistration
		err     error
	)
	switch in.OTPMethod {
	case otp.MethodEmail:
		if in.Email == "" {
			return account.Account{}, apperr.Validation("email is required for email OTP method")
		}
		pending, err = s.accounts.FindPendingByEmail(ctx, in.Email)
	case otp.MethodPhone:
		if in.PhoneNumber == "" {
			return account.Account{}, apperr.Validation("phone number is required for phone OTP method")
		}
		pending, err = s.accounts.FindPendingByPhone(ctx, in.PhoneNumber)
	default:
		return account.Account{}, apperr.Validation("unsupported OTP method")
	}
	if err != nil {
		return account.Account{}, err
	}

	// Exact string match, no normalization. The mismatch check runs before
	// the expiry check, matching the client-visible error ordering.
	if pending.OTP != in.OTP {
		return account.Account{}, apperr.Validation("invalid OTP")
	}
	if time.Now().After(pending.OTPExpiry) {
		return account.Account{}, apperr.Expired("OTP has expired")
	}

	if err := s.accounts.MarkPendingVerified(ctx, pending.ID); err != nil {
		return account.Account{}, err
	}

	now := time.Now().UTC()
	acct := account.Account{
		ID:           uuid.New().String(),
		Name:         pending.Name,
		Username:     pending.Username,
		Email:        pending.Email,
		PasswordHash: pending.PasswordHash,
		PINHash:      pending.PINHash,
		DOB:          pending.DOB,
		PhoneNumber:  pending.PhoneNumber,
		CountryCode:  pending.CountryCode,
		OTP:          pending.OTP,
		OTPVerified:  true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.accounts.PromotePending(ctx, pending.ID, acct); err != nil {
		return account.Account{}, err
	}

	s.logger.Info("registration verified",
		slog.String("account_id", acct.ID),
		slog.String("username", acct.Username),
	)
	return acct.Sanitized(), nil
}

// Sweep removes unverified pending registrations whose OTP expired longer
// than the retention period ago.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	return s.accounts.DeleteExpiredPending(ctx, time.Now().Add(-s.retention))
}

// RunSweeper drives Sweep on the given interval until the context is
// cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Warn("pending sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				s.logger.Info("pending sweep completed", slog.Int64("removed", removed))
			}
		}
	}
}

func validateSubmit(in SubmitInput) error {
	missing := make([]string, 0, 9)
	require := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}
	require("name", in.Name)
	require("username", in.Username)
	require("email", in.Email)
	require("password", in.Password)
	require("phoneNumber", in.PhoneNumber)
	require("countryCode", in.CountryCode)
	require("pin", in.PIN)
	require("otpMethod", in.OTPMethod)
	if in.DOB.IsZero() {
		missing = append(missing, "dob")
	}
	if len(missing) > 0 {
		return apperr.Validation("all fields are required").WithDetails(missing...)
	}

	if in.OTPMethod != otp.MethodEmail && in.OTPMethod != otp.MethodPhone {
		return apperr.Validation("invalid OTP method")
	}
	return nil
}
