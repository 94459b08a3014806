package flow

import (
	"context"
	"strings"

	"github.com/MrCodeEU/faceauth/pkg/authapi"
	"github.com/MrCodeEU/faceauth/pkg/capture"
	"github.com/MrCodeEU/faceauth/pkg/recognition"
	"github.com/MrCodeEU/faceauth/pkg/session"
)

// LoginMode selects how the user authenticates.
type LoginMode int

const (
	CredentialMode LoginMode = iota
	FaceMode
)

func (m LoginMode) String() string {
	if m == FaceMode {
		return "face"
	}
	return "credentials"
}

const loginFailed = "Login failed!!"

// Login authenticates with email and password or with a face capture.
// Either mode can be entered from the other at any time.
type Login struct {
	faceFlow

	api   AuthAPI
	store session.Store
	mode  LoginMode
}

// NewLogin creates a login flow in CredentialMode.
func NewLogin(d Deps) *Login {
	l := &Login{api: d.API, store: d.Session}
	l.initFace("login", d, func() bool { return l.mode == FaceMode })
	return l
}

// Mode returns the current mode.
func (l *Login) Mode() LoginMode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// SwitchToFace enters FaceMode and starts the camera. Entering FaceMode
// while a stream is already live is a no-op.
func (l *Login) SwitchToFace(ctx context.Context) error {
	opCtx, done, err := l.begin(ctx, func() bool { return true })
	if err != nil {
		return err
	}
	defer done()

	l.mu.Lock()
	if l.mode == FaceMode && l.stream != nil {
		l.mu.Unlock()
		return nil
	}
	l.mode = FaceMode
	l.mu.Unlock()
	l.log.WithField("mode", FaceMode.String()).Debug("Login mode changed")

	if fe := l.startCamera(opCtx); fe != nil {
		return l.fail(fe)
	}
	return nil
}

// SwitchToCredentials leaves FaceMode. Any held stream is released before
// the mode changes, and an outstanding face capture is cancelled. This is
// allowed while an operation is outstanding.
func (l *Login) SwitchToCredentials() error {
	l.mu.Lock()
	if l.closed {
		err := l.failLocked(wrongStep(ErrClosed))
		l.mu.Unlock()
		return err
	}
	var cancel context.CancelFunc
	if l.mode == FaceMode {
		cancel = l.opCancel
	}
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	l.releaseStream()

	l.mu.Lock()
	l.mode = CredentialMode
	l.status = ""
	l.mu.Unlock()
	l.log.WithField("mode", CredentialMode.String()).Debug("Login mode changed")
	return nil
}

// SubmitCredentials logs in with email and password.
func (l *Login) SubmitCredentials(ctx context.Context, email, password string) error {
	opCtx, done, err := l.begin(ctx, func() bool { return l.mode == CredentialMode })
	if err != nil {
		return err
	}
	defer done()

	if strings.TrimSpace(email) == "" || password == "" {
		return l.fail(validationError("Please enter email and password."))
	}

	resp, err := l.api.Login(opCtx, authapi.Credentials{Email: email, Password: password})
	if err != nil {
		return l.fail(serverError(err, loginFailed))
	}
	return l.complete(CredentialMode, resp)
}

// CaptureAndLogin runs one capture and submits the descriptor to face login.
// The stream is released after the attempt whatever its outcome, so a later
// call starts the camera again. There is no retry loop.
func (l *Login) CaptureAndLogin(ctx context.Context) error {
	opCtx, done, err := l.begin(ctx, func() bool { return l.mode == FaceMode })
	if err != nil {
		return err
	}
	defer done()

	if !l.Live() {
		if fe := l.startCamera(opCtx); fe != nil {
			return l.fail(fe)
		}
	}

	result, fe := l.attempt(opCtx)
	l.releaseStream()
	if fe != nil {
		return l.fail(fe)
	}

	switch r := result.(type) {
	case capture.Detected:
		l.mu.Lock()
		if l.closed || l.mode != FaceMode {
			l.mu.Unlock()
			return l.fail(wrongStep(nil))
		}
		l.status = StatusAuthenticating
		l.mu.Unlock()

		resp, err := l.api.FaceLogin(opCtx, recognition.Floats(r.Descriptor))
		if err != nil {
			return l.fail(serverError(err, loginFailed))
		}
		return l.complete(FaceMode, resp)
	case capture.NotDetected:
		fe := NewFlowError(ErrCodeNoFace, nil)
		fe.Message = StatusNoFace
		return l.fail(fe)
	default:
		return l.fail(wrongStep(nil))
	}
}

// complete persists the session and hands off to navigation.
func (l *Login) complete(mode LoginMode, resp *authapi.LoginResponse) error {
	if err := l.store.Set(session.Record{Email: resp.Email, Token: resp.Token}); err != nil {
		return l.fail(&FlowError{Code: ErrCodeServer, Message: "Failed to save session.", Err: err})
	}
	l.log.WithField("mode", mode.String()).Info("Login succeeded")
	l.succeed("Login successful!", l.routes.LoginRoute)
	return nil
}

// Close releases the camera and ends the flow. It is safe to call more than once.
func (l *Login) Close() {
	l.closeFace()
}
