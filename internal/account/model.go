package account

import "time"

// Account represents a confirmed, OTP-verified user.
type Account struct {
	ID           string
	Name         string
	Username     string
	Email        string
	PhoneNumber  string
	CountryCode  string
	PasswordHash []byte
	PINHash      []byte
	DOB          time.Time
	OTP          string
	OTPVerified  bool
	RefreshToken string // empty when no live refresh token
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Sanitized returns a copy with credential fields stripped, safe to attach to
// a request context or serialize into a response.
func (a Account) Sanitized() Account {
	a.PasswordHash = nil
	a.PINHash = nil
	a.RefreshToken = ""
	return a
}

// PendingRegistration is a registration awaiting OTP confirmation.
type PendingRegistration struct {
	ID           string
	Name         string
	Username     string
	Email        string
	PasswordHash []byte
	PINHash      []byte
	DOB          time.Time
	PhoneNumber  string
	CountryCode  string
	OTP          string
	OTPExpiry    time.Time
	OTPMethod    string
	OTPVerified  bool
	CreatedAt    time.Time
}

// ProfilePatch carries the optional fields of a partial profile update. Nil
// means "leave unchanged".
type ProfilePatch struct {
	Name        *string
	Username    *string
	Email       *string
	PhoneNumber *string
	DOB         *time.Time
}

// Empty reports whether no field of the patch is set.
func (p ProfilePatch) Empty() bool {
	return p.Name == nil && p.Username == nil && p.Email == nil && p.PhoneNumber == nil && p.DOB == nil
}
