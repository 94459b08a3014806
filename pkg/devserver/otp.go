package devserver

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// OTPLength is the number of digits of a one-time password.
const OTPLength = 6

// MaxOTPFailures is the number of wrong guesses after which a code is
// invalidated and a new one must be requested.
const MaxOTPFailures = 5

var ErrInvalidOTP = errors.New("invalid or expired otp")

// OTPSender delivers a one-time password to the user.
type OTPSender interface {
	SendOTP(ctx context.Context, email, code string) error
}

// LogSender writes OTPs to the log instead of sending mail. Development only.
type LogSender struct {
	Log *logrus.Entry
}

func (s LogSender) SendOTP(ctx context.Context, email, code string) error {
	s.Log.WithFields(logrus.Fields{"email": email, "otp": code}).Warn("OTP issued (development sender)")
	return nil
}

type otpEntry struct {
	code     string
	expires  time.Time
	verified bool
	failures int
}

// OTPs tracks one outstanding code per email. A new code replaces the old one.
type OTPs struct {
	mu      sync.Mutex
	entries map[string]*otpEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewOTPs(ttl time.Duration) *OTPs {
	return &OTPs{entries: make(map[string]*otpEntry), ttl: ttl, now: time.Now}
}

func generateCode() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", OTPLength, n.Int64()), nil
}

// Issue creates a new code for email.
func (o *OTPs) Issue(email string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries[normalizeEmail(email)] = &otpEntry{code: code, expires: o.now().Add(o.ttl)}
	return code, nil
}

func (o *OTPs) lookupLocked(email, code string) (*otpEntry, error) {
	key := normalizeEmail(email)
	e, ok := o.entries[key]
	if !ok {
		return nil, ErrInvalidOTP
	}
	if o.now().After(e.expires) {
		delete(o.entries, key)
		return nil, ErrInvalidOTP
	}
	if subtle.ConstantTimeCompare([]byte(e.code), []byte(code)) != 1 {
		e.failures++
		if e.failures >= MaxOTPFailures {
			delete(o.entries, key)
		}
		return nil, ErrInvalidOTP
	}
	return e, nil
}

// Verify checks code and marks it verified. The code stays valid for the
// password change that follows.
func (o *OTPs) Verify(email, code string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, err := o.lookupLocked(email, code)
	if err != nil {
		return err
	}
	e.verified = true
	return nil
}

// Consume accepts a verified code once and removes it.
func (o *OTPs) Consume(email, code string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, err := o.lookupLocked(email, code)
	if err != nil {
		return err
	}
	if !e.verified {
		return ErrInvalidOTP
	}
	delete(o.entries, normalizeEmail(email))
	return nil
}
