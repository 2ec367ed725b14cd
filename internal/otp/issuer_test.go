package otp

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/tradexcel/backend/internal/apperr"
)

type captureSender struct {
	mu       sync.Mutex
	lastTo   string
	lastCode string
	calls    int
	fail     bool
}

func (s *captureSender) Send(_ context.Context, to, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("provider down")
	}
	s.lastTo = to
	s.lastCode = code
	s.calls++
	return nil
}

func TestIssueEmail(t *testing.T) {
	mail := &captureSender{}
	sms := &captureSender{}
	issuer := NewIssuer(mail, sms, 10*time.Minute)

	before := time.Now()
	code, err := issuer.Issue(context.Background(), "alice@x.com", MethodEmail, "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if mail.calls != 1 || sms.calls != 0 {
		t.Fatalf("expected exactly one email dispatch, got mail=%d sms=%d", mail.calls, sms.calls)
	}
	if mail.lastTo != "alice@x.com" || mail.lastCode != code.Value {
		t.Fatalf("dispatched %q to %q, want %q to alice@x.com", mail.lastCode, mail.lastTo, code.Value)
	}
	if got, want := code.Expiry.Sub(before), 10*time.Minute; got < want-time.Second || got > want+time.Second {
		t.Fatalf("expiry offset %v, want ~%v", got, want)
	}
}

func TestIssuePhonePrefixesCountryCode(t *testing.T) {
	mail := &captureSender{}
	sms := &captureSender{}
	issuer := NewIssuer(mail, sms, 10*time.Minute)

	code, err := issuer.Issue(context.Background(), "5551234567", MethodPhone, "+1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if sms.lastTo != "+15551234567" {
		t.Fatalf("sms recipient %q, want +15551234567", sms.lastTo)
	}
	if sms.lastCode != code.Value {
		t.Fatalf("sms code %q, want %q", sms.lastCode, code.Value)
	}
}

func TestIssueValidation(t *testing.T) {
	issuer := NewIssuer(&captureSender{}, &captureSender{}, 10*time.Minute)
	ctx := context.Background()

	cases := []struct {
		name        string
		contact     string
		method      string
		countryCode string
	}{
		{"missing email", "", MethodEmail, ""},
		{"missing phone", "", MethodPhone, "+1"},
		{"missing country code", "5551234567", MethodPhone, ""},
		{"unsupported method", "alice@x.com", "carrier-pigeon", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := issuer.Issue(ctx, tc.contact, tc.method, tc.countryCode); !apperr.HasCode(err, apperr.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestIssueDeliveryFailure(t *testing.T) {
	issuer := NewIssuer(&captureSender{fail: true}, &captureSender{}, 10*time.Minute)

	if _, err := issuer.Issue(context.Background(), "alice@x.com", MethodEmail, ""); !apperr.HasCode(err, apperr.CodeDelivery) {
		t.Fatalf("expected delivery error, got %v", err)
	}
}

func TestGenerateCodeRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := generateCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		n, err := strconv.Atoi(code)
		if err != nil {
			t.Fatalf("code %q not numeric: %v", code, err)
		}
		if n < 100000 || n > 999999 {
			t.Fatalf("code %d out of range", n)
		}
	}
}
