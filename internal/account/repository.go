package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradexcel/backend/internal/apperr"
)

// Repository persists confirmed accounts and pending registrations.
type Repository interface {
	CreatePending(ctx context.Context, p PendingRegistration) error
	FindPendingByEmail(ctx context.Context, email string) (PendingRegistration, error)
	FindPendingByPhone(ctx context.Context, phoneNumber string) (PendingRegistration, error)
	MarkPendingVerified(ctx context.Context, id string) error
	// PromotePending atomically inserts the confirmed account and deletes the
	// pending row it came from.
	PromotePending(ctx context.Context, pendingID string, acct Account) error
	DeleteExpiredPending(ctx context.Context, expiredBefore time.Time) (int64, error)

	ExistsConflicting(ctx context.Context, email, phoneNumber, countryCode, username string) (bool, error)
	FindByID(ctx context.Context, id string) (Account, error)
	FindByEmailOrUsername(ctx context.Context, identifier string) (Account, error)
	UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (Account, error)
	UpdateCredentials(ctx context.Context, id string, passwordHash, pinHash []byte) error
	SetRefreshToken(ctx context.Context, id, token string) error
	ClearRefreshToken(ctx context.Context, id string) error
}

const accountColumns = `id, name, username, email, phone_number, country_code, password_hash, pin_hash, dob, otp, otp_verified, refresh_token, created_at, updated_at`

const pendingColumns = `id, name, username, email, password_hash, pin_hash, dob, phone_number, country_code, otp, otp_expiry, otp_method, otp_verified, created_at`

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed account repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreatePending inserts a pending registration row.
func (r *PostgresRepository) CreatePending(ctx context.Context, p PendingRegistration) error {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO pending_registrations (`+pendingColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		id, p.Name, p.Username, p.Email, p.PasswordHash, p.PINHash, p.DOB,
		p.PhoneNumber, p.CountryCode, p.OTP, p.OTPExpiry.UTC(), p.OTPMethod, p.OTPVerified, p.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return apperr.Conflict("a registration for this email or phone number is already pending")
	}
	return err
}

// FindPendingByEmail fetches a pending registration by email address.
func (r *PostgresRepository) FindPendingByEmail(ctx context.Context, email string) (PendingRegistration, error) {
	row := r.db.QueryRow(ctx, `SELECT `+pendingColumns+` FROM pending_registrations WHERE email = $1`, email)
	return scanPending(row)
}

// FindPendingByPhone fetches a pending registration by phone number.
func (r *PostgresRepository) FindPendingByPhone(ctx context.Context, phoneNumber string) (PendingRegistration, error) {
	row := r.db.QueryRow(ctx, `SELECT `+pendingColumns+` FROM pending_registrations WHERE phone_number = $1`, phoneNumber)
	return scanPending(row)
}

// MarkPendingVerified flips the otp_verified flag on a pending registration.
func (r *PostgresRepository) MarkPendingVerified(ctx context.Context, id string) error {
	pendingID, err := uuid.Parse(id)
	if err != nil {
		return err
	}
	cmd, err := r.db.Exec(ctx, `UPDATE pending_registrations SET otp_verified = TRUE WHERE id = $1`, pendingID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperr.NotFound("no pending registration found")
	}
	return nil
}

// PromotePending inserts the confirmed account and removes the pending row in
// a single transaction, so a crash between the writes cannot leave both
// records behind.
func (r *PostgresRepository) PromotePending(ctx context.Context, pendingID string, acct Account) error {
	pid, err := uuid.Parse(pendingID)
	if err != nil {
		return err
	}
	aid, err := uuid.Parse(acct.ID)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin promote: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO accounts (`+accountColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), $13, $14)`,
		aid, acct.Name, acct.Username, acct.Email, acct.PhoneNumber, acct.CountryCode,
		acct.PasswordHash, acct.PINHash, acct.DOB, acct.OTP, acct.OTPVerified,
		acct.RefreshToken, acct.CreatedAt.UTC(), acct.UpdatedAt.UTC())
	if isUniqueViolation(err) {
		return apperr.Conflict("email, phone number, or username is already registered")
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM pending_registrations WHERE id = $1`, pid); err != nil {
		return fmt.Errorf("delete pending: %w", err)
	}

	return tx.Commit(ctx)
}

// DeleteExpiredPending removes unverified registrations whose OTP expired
// before the cutoff. Returns the number of rows removed.
func (r *PostgresRepository) DeleteExpiredPending(ctx context.Context, expiredBefore time.Time) (int64, error) {
	cmd, err := r.db.Exec(ctx,
		`DELETE FROM pending_registrations WHERE otp_verified = FALSE AND otp_expiry < $1`,
		expiredBefore.UTC())
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// ExistsConflicting reports whether a confirmed account already claims the
// email, the phone number within the country code, or the username.
func (r *PostgresRepository) ExistsConflicting(ctx context.Context, email, phoneNumber, countryCode, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (
        SELECT 1 FROM accounts
        WHERE email = $1 OR (phone_number = $2 AND country_code = $3) OR username = $4
    )`, email, phoneNumber, countryCode, username).Scan(&exists)
	return exists, err
}

// FindByID fetches an account by its identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, apperr.NotFound("user not found")
	}
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID)
	return scanAccount(row)
}

// FindByEmailOrUsername resolves an account by either identifier.
func (r *PostgresRepository) FindByEmailOrUsername(ctx context.Context, identifier string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1 OR username = $1`, identifier)
	return scanAccount(row)
}

// UpdateProfile applies the present fields of the patch and returns the
// updated account.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, apperr.NotFound("user not found")
	}

	set := make([]string, 0, 6)
	args := make([]any, 0, 7)
	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Username != nil {
		add("username", *patch.Username)
	}
	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.PhoneNumber != nil {
		add("phone_number", *patch.PhoneNumber)
	}
	if patch.DOB != nil {
		add("dob", *patch.DOB)
	}
	add("updated_at", time.Now().UTC())
	args = append(args, accountID)

	query := fmt.Sprintf(`UPDATE accounts SET %s WHERE id = $%d RETURNING `+accountColumns,
		strings.Join(set, ", "), len(args))
	row := r.db.QueryRow(ctx, query, args...)
	acct, err := scanAccount(row)
	if isUniqueViolation(err) {
		return Account{}, apperr.Conflict("email, phone number, or username is already registered")
	}
	return acct, err
}

// UpdateCredentials replaces the stored password and/or PIN hashes. Nil
// leaves the corresponding hash unchanged.
func (r *PostgresRepository) UpdateCredentials(ctx context.Context, id string, passwordHash, pinHash []byte) error {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return apperr.NotFound("user not found")
	}
	cmd, err := r.db.Exec(ctx, `UPDATE accounts
        SET password_hash = COALESCE($1, password_hash),
            pin_hash = COALESCE($2, pin_hash),
            updated_at = $3
        WHERE id = $4`, passwordHash, pinHash, time.Now().UTC(), accountID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

// SetRefreshToken overwrites the account's live refresh token.
func (r *PostgresRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	return r.setRefreshToken(ctx, id, &token)
}

// ClearRefreshToken removes the account's live refresh token.
func (r *PostgresRepository) ClearRefreshToken(ctx context.Context, id string) error {
	return r.setRefreshToken(ctx, id, nil)
}

func (r *PostgresRepository) setRefreshToken(ctx context.Context, id string, token *string) error {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return apperr.NotFound("user not found")
	}
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET refresh_token = $1, updated_at = $2 WHERE id = $3`,
		token, time.Now().UTC(), accountID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		id      uuid.UUID
		refresh *string
		acct    Account
	)
	err := row.Scan(&id, &acct.Name, &acct.Username, &acct.Email, &acct.PhoneNumber, &acct.CountryCode,
		&acct.PasswordHash, &acct.PINHash, &acct.DOB, &acct.OTP, &acct.OTPVerified, &refresh,
		&acct.CreatedAt, &acct.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return Account{}, err
	}
	acct.ID = id.String()
	if refresh != nil {
		acct.RefreshToken = *refresh
	}
	return acct, nil
}

func scanPending(row pgx.Row) (PendingRegistration, error) {
	var (
		id      uuid.UUID
		pending PendingRegistration
	)
	err := row.Scan(&id, &pending.Name, &pending.Username, &pending.Email, &pending.PasswordHash,
		&pending.PINHash, &pending.DOB, &pending.PhoneNumber, &pending.CountryCode, &pending.OTP,
		&pending.OTPExpiry, &pending.OTPMethod, &pending.OTPVerified, &pending.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PendingRegistration{}, apperr.NotFound("no pending registration found")
	}
	if err != nil {
		return PendingRegistration{}, err
	}
	pending.ID = id.String()
	return pending, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
