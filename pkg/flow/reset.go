package flow

import (
	"context"
	"strings"
	"time"
)

// ResetState is the step of the password reset.
type ResetState int

const (
	AwaitingEmail ResetState = iota
	AwaitingOtp
	AwaitingNewPassword
	Completed
)

func (s ResetState) String() string {
	switch s {
	case AwaitingOtp:
		return "awaiting_otp"
	case AwaitingNewPassword:
		return "awaiting_new_password"
	case Completed:
		return "completed"
	default:
		return "awaiting_email"
	}
}

// Reset is the OTP password reset. Steps only move forward; a failed step
// keeps the flow where it is with everything entered so far.
type Reset struct {
	base

	api      AuthAPI
	state    ResetState
	email    string
	otp      string
	redirect *time.Timer
}

// NewReset creates a reset flow in AwaitingEmail.
func NewReset(d Deps) *Reset {
	r := &Reset{api: d.API}
	r.init("reset", d)
	return r
}

// State returns the current step.
func (r *Reset) State() ResetState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Email returns the email the reset is for.
func (r *Reset) Email() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.email
}

// RequestOTP asks the server to send an OTP to email.
func (r *Reset) RequestOTP(ctx context.Context, email string) error {
	opCtx, done, err := r.begin(ctx, func() bool { return r.state == AwaitingEmail })
	if err != nil {
		return err
	}
	defer done()

	email = strings.TrimSpace(email)
	if email == "" {
		return r.fail(validationError("Please enter your email."))
	}
	r.mu.Lock()
	r.email = email
	r.mu.Unlock()

	if err := r.api.SendOTP(opCtx, email); err != nil {
		return r.fail(serverError(err, "Failed to send OTP."))
	}
	return r.advance(AwaitingOtp, "OTP sent to your email!", nil)
}

// VerifyOTP checks the OTP for the email of the first step.
func (r *Reset) VerifyOTP(ctx context.Context, otp string) error {
	opCtx, done, err := r.begin(ctx, func() bool { return r.state == AwaitingOtp })
	if err != nil {
		return err
	}
	defer done()

	otp = strings.TrimSpace(otp)
	if otp == "" {
		return r.fail(validationError("Please enter the OTP."))
	}
	email := r.Email()

	if err := r.api.VerifyOTP(opCtx, email, otp); err != nil {
		return r.fail(serverError(err, "Invalid OTP."))
	}
	return r.advance(AwaitingNewPassword, "OTP verified! Set your new password.", func() { r.otp = otp })
}

// SetNewPassword sets the new password. The verified OTP is sent again as
// proof. On success the email and OTP are discarded and the user is sent to
// sign-in after the redirect delay. The login session store is not touched.
func (r *Reset) SetNewPassword(ctx context.Context, newPassword string) error {
	opCtx, done, err := r.begin(ctx, func() bool { return r.state == AwaitingNewPassword })
	if err != nil {
		return err
	}
	defer done()

	if newPassword == "" {
		return r.fail(validationError("Please enter a new password."))
	}
	r.mu.Lock()
	email, otp := r.email, r.otp
	r.mu.Unlock()

	if err := r.api.ResetPassword(opCtx, email, otp, newPassword); err != nil {
		return r.fail(serverError(err, "Failed to reset password."))
	}

	if err := r.advance(Completed, "Password changed successfully!", func() {
		r.email = ""
		r.otp = ""
	}); err != nil {
		return err
	}
	r.scheduleRedirect()
	return nil
}

// advance moves to the next step unless the flow was closed meanwhile.
// apply, when set, runs under the lock.
func (r *Reset) advance(next ResetState, notice string, apply func()) error {
	r.mu.Lock()
	if r.closed {
		err := r.failLocked(wrongStep(ErrClosed))
		r.mu.Unlock()
		return err
	}
	if apply != nil {
		apply()
	}
	r.state = next
	r.status = notice
	r.mu.Unlock()

	r.log.WithField("step", next.String()).Info("Password reset step completed")
	r.notify.Notify(notice)
	return nil
}

func (r *Reset) scheduleRedirect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	route := r.routes.SigninRoute
	r.redirect = time.AfterFunc(r.routes.RedirectDelay, func() {
		r.mu.Lock()
		closed := r.closed
		r.mu.Unlock()
		if !closed {
			r.nav.Navigate(route)
		}
	})
}

// Close ends the flow and cancels a pending redirect. It is safe to call more than once.
func (r *Reset) Close() {
	if !r.closeBase() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.redirect != nil {
		r.redirect.Stop()
	}
}
