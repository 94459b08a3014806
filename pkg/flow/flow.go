// Package flow implements the user-facing authentication flows as explicit
// state machines: enrollment (sign-up with a face capture), login by
// password or by face, and OTP-based password reset.
//
// Every operation returns nil or a *FlowError and records the outcome as the
// flow's status text. Flows never panic and never retry on their own.
// A flow that holds a camera stream releases it on every exit path,
// including Close.
package flow

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/MrCodeEU/faceauth/pkg/authapi"
	"github.com/MrCodeEU/faceauth/pkg/camera"
	"github.com/MrCodeEU/faceauth/pkg/capture"
	"github.com/MrCodeEU/faceauth/pkg/config"
	"github.com/MrCodeEU/faceauth/pkg/logging"
	"github.com/MrCodeEU/faceauth/pkg/session"
)

// AuthAPI is the auth server as seen by the flows.
type AuthAPI interface {
	Login(ctx context.Context, creds authapi.Credentials) (*authapi.LoginResponse, error)
	FaceLogin(ctx context.Context, descriptor []float64) (*authapi.LoginResponse, error)
	Register(ctx context.Context, reg authapi.Registration) error
	SendOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, otp string) error
	ResetPassword(ctx context.Context, email, otp, newPassword string) error
}

// Navigator moves the user to another route.
type Navigator interface {
	Navigate(route string)
}

// Notifier shows success notices.
type Notifier interface {
	Notify(message string)
}

// Media acquires and releases camera streams for one capture surface.
type Media interface {
	Acquire(ctx context.Context) (*camera.Stream, error)
	Release(s *camera.Stream)
}

// Gate loads the detector models.
type Gate interface {
	LoadAll(ctx context.Context) error
	IsReady() bool
}

// Capturer runs one capture attempt.
type Capturer interface {
	Attempt(ctx context.Context, src capture.FrameSource) (capture.Attempt, error)
}

// Deps are the collaborators of a flow. Reset only uses API, Navigator,
// Notifier and Config.
type Deps struct {
	API       AuthAPI
	Session   session.Store
	Navigator Navigator
	Notifier  Notifier
	Media     Media
	Gate      Gate
	Capturer  Capturer
	Config    config.FlowConfig
}

type nopNavigator struct{}

func (nopNavigator) Navigate(string) {}

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}

// base carries what every flow shares: the lock, the busy flag that keeps a
// flow to one outstanding operation, status text and the flow lifetime.
type base struct {
	mu       sync.Mutex
	busy     bool
	closed   bool
	status   string
	err      *FlowError
	opCancel context.CancelFunc

	life   context.Context
	cancel context.CancelFunc
	log    *logrus.Entry
	nav    Navigator
	notify Notifier
	routes config.FlowConfig
}

func (b *base) init(name string, d Deps) {
	b.life, b.cancel = context.WithCancel(context.Background())
	b.log = logging.Component("flow").WithField("flow", name)
	b.nav = d.Navigator
	if b.nav == nil {
		b.nav = nopNavigator{}
	}
	b.notify = d.Notifier
	if b.notify == nil {
		b.notify = nopNotifier{}
	}
	b.routes = d.Config
	if b.routes.LoginRoute == "" {
		b.routes.LoginRoute = "/dashboard"
	}
	if b.routes.SigninRoute == "" {
		b.routes.SigninRoute = "/"
	}
}

// Status returns the current status text.
func (b *base) Status() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Err returns the error of the last failed operation, or nil once an
// operation has started since.
func (b *base) Err() *FlowError {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Busy reports whether an operation is outstanding.
func (b *base) Busy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.busy
}

// begin starts an operation. allowed runs under the lock and decides
// whether the operation is legal in the current state. The returned
// context is cancelled when the flow closes; done must be called when the
// operation ends.
func (b *base) begin(ctx context.Context, allowed func() bool) (context.Context, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.closed:
		return nil, nil, b.failLocked(wrongStep(ErrClosed))
	case b.busy:
		return nil, nil, b.failLocked(NewFlowError(ErrCodeBusy, nil))
	case !allowed():
		return nil, nil, b.failLocked(wrongStep(nil))
	}

	b.busy = true
	b.err = nil
	opCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(b.life, cancel)
	b.opCancel = cancel

	return opCtx, func() {
		stop()
		cancel()
		b.mu.Lock()
		b.busy = false
		b.opCancel = nil
		b.mu.Unlock()
	}, nil
}

func (b *base) failLocked(fe *FlowError) error {
	b.err = fe
	b.status = fe.Message
	entry := b.log.WithField("code", fe.Code)
	if fe.Err != nil {
		entry = entry.WithError(fe.Err)
	}
	entry.Info("Flow operation failed")
	return fe
}

func (b *base) fail(fe *FlowError) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failLocked(fe)
}

func (b *base) setStatus(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = s
}

// closeBase marks the flow closed and cancels its outstanding operation.
// It reports false when the flow was already closed.
func (b *base) closeBase() bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	return true
}

// succeed records a success notice, then notifies and navigates outside the lock.
func (b *base) succeed(notice, route string) {
	b.setStatus(notice)
	b.notify.Notify(notice)
	if route != "" {
		b.nav.Navigate(route)
	}
}
