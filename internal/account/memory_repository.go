package account

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tradexcel/backend/internal/apperr"
)

type memoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account             // keyed by account ID
	pending  map[string]PendingRegistration // keyed by pending ID
}

// NewMemoryRepository builds an in-memory store for testing and local
// development without Postgres.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		accounts: make(map[string]Account),
		pending:  make(map[string]PendingRegistration),
	}
}

func (r *memoryRepository) CreatePending(_ context.Context, p PendingRegistration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.pending {
		if existing.Email == p.Email || existing.PhoneNumber == p.PhoneNumber {
			return apperr.Conflict("a registration for this email or phone number is already pending")
		}
	}
	r.pending[p.ID] = p
	return nil
}

func (r *memoryRepository) FindPendingByEmail(_ context.Context, email string) (PendingRegistration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.pending {
		if p.Email == email {
			return p, nil
		}
	}
	return PendingRegistration{}, apperr.NotFound("no pending registration found")
}

func (r *memoryRepository) FindPendingByPhone(_ context.Context, phoneNumber string) (PendingRegistration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.pending {
		if p.PhoneNumber == phoneNumber {
			return p, nil
		}
	}
	return PendingRegistration{}, apperr.NotFound("no pending registration found")
}

func (r *memoryRepository) MarkPendingVerified(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	if !ok {
		return apperr.NotFound("no pending registration found")
	}
	p.OTPVerified = true
	r.pending[id] = p
	return nil
}

func (r *memoryRepository) PromotePending(_ context.Context, pendingID string, acct Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[pendingID]; !ok {
		return apperr.NotFound("no pending registration found")
	}
	for _, existing := range r.accounts {
		if existing.Email == acct.Email || existing.Username == acct.Username ||
			(existing.PhoneNumber == acct.PhoneNumber && existing.CountryCode == acct.CountryCode) {
			return apperr.Conflict("email, phone number, or username is already registered")
		}
	}
	r.accounts[acct.ID] = acct
	delete(r.pending, pendingID)
	return nil
}

func (r *memoryRepository) DeleteExpiredPending(_ context.Context, expiredBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, p := range r.pending {
		if !p.OTPVerified && p.OTPExpiry.Before(expiredBefore) {
			delete(r.pending, id)
			removed++
		}
	}
	return removed, nil
}

func (r *memoryRepository) ExistsConflicting(_ context.Context, email, phoneNumber, countryCode, username string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.Email == email || a.Username == username ||
			(a.PhoneNumber == phoneNumber && a.CountryCode == countryCode) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, apperr.NotFound("user not found")
	}
	return a, nil
}

func (r *memoryRepository) FindByEmailOrUsername(_ context.Context, identifier string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if strings.EqualFold(a.Email, identifier) || a.Username == identifier {
			return a, nil
		}
	}
	return Account{}, apperr.NotFound("user not found")
}

func (r *memoryRepository) UpdateProfile(_ context.Context, id string, patch ProfilePatch) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, apperr.NotFound("user not found")
	}
	if patch.Name != nil {
		a.Name = *patch.Name
	}
	if patch.Username != nil {
		a.Username = *patch.Username
	}
	if patch.Email != nil {
		a.Email = *patch.Email
	}
	if patch.PhoneNumber != nil {
		a.PhoneNumber = *patch.PhoneNumber
	}
	if patch.DOB != nil {
		a.DOB = *patch.DOB
	}
	a.UpdatedAt = time.Now().UTC()
	r.accounts[id] = a
	return a, nil
}

func (r *memoryRepository) UpdateCredentials(_ context.Context, id string, passwordHash, pinHash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return apperr.NotFound("user not found")
	}
	if passwordHash != nil {
		a.PasswordHash = passwordHash
	}
	if pinHash != nil {
		a.PINHash = pinHash
	}
	a.UpdatedAt = time.Now().UTC()
	r.accounts[id] = a
	return nil
}

func (r *memoryRepository) SetRefreshToken(_ context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return apperr.NotFound("user not found")
	}
	a.RefreshToken = token
	a.UpdatedAt = time.Now().UTC()
	r.accounts[id] = a
	return nil
}

func (r *memoryRepository) ClearRefreshToken(_ context.Context, id string) error {
	return r.SetRefreshToken(context.Background(), id, "")
}
