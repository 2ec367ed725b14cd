// Package otp generates and dispatches one-time registration codes.
package otp

import (
	"context"
	"crypto/rand"
	"math/big"
	"strconv"
	"time"

	"github.com/tradexcel/backend/internal/apperr"
)

const (
	// MethodEmail delivers codes over SMTP.
	MethodEmail = "email"
	// MethodPhone delivers codes over SMS.
	MethodPhone = "phone"
)

// Code is an issued one-time code with its expiry.
type Code struct {
	Value  string
	Expiry time.Time
}

// Issuer generates 6-digit codes and dispatches them through exactly one
// channel per call. Delivery failures surface synchronously; there are no
// retries.
type Issuer struct {
	mail Sender
	sms  Sender
	ttl  time.Duration
}

// NewIssuer builds an issuer with the given channel senders and code TTL.
func NewIssuer(mail, sms Sender, ttl time.Duration) *Issuer {
	return &Issuer{mail: mail, sms: sms, ttl: ttl}
}

// Issue generates a code, dispatches it to the contact via the requested
// method, and returns the code with its expiry. For MethodEmail the contact
// is an email address; for MethodPhone it is a bare phone number and
// countryCode must be set.
func (i *Issuer) Issue(ctx context.Context, contact, method, countryCode string) (Code, error) {
	value, err := generateCode()
	if err != nil {
		return Code{}, apperr.Internal(err)
	}
	code := Code{Value: value, Expiry: time.Now().Add(i.ttl)}

	switch method {
	case MethodEmail:
		if contact == "" {
			return Code{}, apperr.Validation("email is required for OTP method 'email'")
		}
		if err := i.mail.Send(ctx, contact, code.Value); err != nil {
			return Code{}, apperr.Delivery("error sending OTP via email", err)
		}
	case MethodPhone:
		if contact == "" || countryCode == "" {
			return Code{}, apperr.Validation("phone number and country code are required for OTP method 'phone'")
		}
		if err := i.sms.Send(ctx, countryCode+contact, code.Value); err != nil {
			return Code{}, apperr.Delivery("error sending OTP via SMS", err)
		}
	default:
		return Code{}, apperr.Validation("unsupported OTP method")
	}

	return code, nil
}

// generateCode draws a uniformly random 6-digit code in [100000, 999999].
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}
