package flow

import (
	"context"
	"strings"

	"github.com/MrCodeEU/faceauth/pkg/authapi"
	"github.com/MrCodeEU/faceauth/pkg/capture"
	"github.com/MrCodeEU/faceauth/pkg/recognition"
)

// EnrollmentState is the step of the sign-up wizard.
type EnrollmentState int

const (
	AccountInfo EnrollmentState = iota
	FaceCapture
	Submitted
)

func (s EnrollmentState) String() string {
	switch s {
	case FaceCapture:
		return "face_capture"
	case Submitted:
		return "submitted"
	default:
		return "account_info"
	}
}

// Account holds the account fields of a registration.
type Account struct {
	Name     string
	Email    string
	Password string
}

func (a Account) complete() bool {
	return strings.TrimSpace(a.Name) != "" && strings.TrimSpace(a.Email) != "" && a.Password != ""
}

// Enrollment is the two-step sign-up: account fields, then a face capture.
// It keeps exactly one descriptor, the latest capture.
type Enrollment struct {
	faceFlow

	api         AuthAPI
	state       EnrollmentState
	account     Account
	descriptors []recognition.Descriptor
	preview     []byte
}

// NewEnrollment creates an enrollment flow in AccountInfo.
func NewEnrollment(d Deps) *Enrollment {
	e := &Enrollment{api: d.API}
	e.initFace("enrollment", d, func() bool { return e.state == FaceCapture })
	return e
}

// State returns the current step.
func (e *Enrollment) State() EnrollmentState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Account returns the account draft.
func (e *Enrollment) Account() Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.account
}

// Descriptors returns a copy of the captured descriptors.
func (e *Enrollment) Descriptors() []recognition.Descriptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]recognition.Descriptor(nil), e.descriptors...)
}

// Preview returns the still image of the last capture, or nil.
func (e *Enrollment) Preview() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.preview
}

// SetAccount replaces the account draft. Only legal in AccountInfo.
func (e *Enrollment) SetAccount(a Account) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return e.failLocked(wrongStep(ErrClosed))
	}
	if e.state != AccountInfo {
		return e.failLocked(wrongStep(nil))
	}
	e.account = a
	return nil
}

// Next moves from AccountInfo to FaceCapture once all account fields are
// set, then loads the models and starts the camera.
func (e *Enrollment) Next(ctx context.Context) error {
	opCtx, done, err := e.begin(ctx, func() bool { return e.state == AccountInfo })
	if err != nil {
		return err
	}
	defer done()

	e.mu.Lock()
	if !e.account.complete() {
		err := e.failLocked(validationError("Please enter name, email and password."))
		e.mu.Unlock()
		return err
	}
	e.state = FaceCapture
	e.mu.Unlock()

	e.log.WithField("step", FaceCapture.String()).Debug("Enrollment step changed")
	if fe := e.startCamera(opCtx); fe != nil {
		return e.failInStep(fe)
	}
	return nil
}

// StartCamera starts the camera in FaceCapture when no stream is live and
// nothing has been captured.
func (e *Enrollment) StartCamera(ctx context.Context) error {
	opCtx, done, err := e.begin(ctx, func() bool {
		return e.state == FaceCapture && e.stream == nil && len(e.descriptors) == 0
	})
	if err != nil {
		return err
	}
	defer done()

	if fe := e.startCamera(opCtx); fe != nil {
		return e.failInStep(fe)
	}
	return nil
}

// Capture runs one capture attempt on the live stream. A detected face
// replaces any earlier capture and releases the stream; when no face is
// found the stream stays live for another attempt.
func (e *Enrollment) Capture(ctx context.Context) error {
	opCtx, done, err := e.begin(ctx, func() bool { return e.state == FaceCapture && e.stream != nil })
	if err != nil {
		return err
	}
	defer done()

	result, fe := e.attempt(opCtx)
	if fe != nil {
		return e.failInStep(fe)
	}

	switch r := result.(type) {
	case capture.Detected:
		e.mu.Lock()
		if e.closed || e.state != FaceCapture {
			e.mu.Unlock()
			e.releaseStream()
			return wrongStep(ErrClosed)
		}
		e.descriptors = []recognition.Descriptor{r.Descriptor}
		e.preview = r.Preview
		e.status = StatusFaceCaptured
		e.mu.Unlock()

		e.releaseStream()
		return nil
	case capture.NotDetected:
		fe := NewFlowError(ErrCodeNoFace, nil)
		fe.Message = StatusNoFace
		return e.failInStep(fe)
	default:
		return e.fail(wrongStep(nil))
	}
}

// Retake discards the capture and starts the camera again.
func (e *Enrollment) Retake(ctx context.Context) error {
	opCtx, done, err := e.begin(ctx, func() bool { return e.state == FaceCapture })
	if err != nil {
		return err
	}
	defer done()

	e.mu.Lock()
	e.descriptors = nil
	e.preview = nil
	e.mu.Unlock()

	if e.Live() {
		e.setStatus(StatusCameraStarted)
		return nil
	}
	if fe := e.startCamera(opCtx); fe != nil {
		return e.failInStep(fe)
	}
	return nil
}

// Back returns to AccountInfo. Account fields are kept; the capture is
// discarded and the stream released. Back is allowed while an operation is
// outstanding and cancels it.
func (e *Enrollment) Back() error {
	e.mu.Lock()
	if e.closed {
		err := e.failLocked(wrongStep(ErrClosed))
		e.mu.Unlock()
		return err
	}
	if e.state != FaceCapture {
		err := e.failLocked(wrongStep(nil))
		e.mu.Unlock()
		return err
	}
	e.state = AccountInfo
	e.descriptors = nil
	e.preview = nil
	e.status = ""
	e.err = nil
	cancel := e.opCancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.releaseStream()
	e.log.WithField("step", AccountInfo.String()).Debug("Enrollment step changed")
	return nil
}

// failInStep records fe unless the user left FaceCapture while the
// operation ran, in which case fe is only returned.
func (e *Enrollment) failInStep(fe *FlowError) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.state != FaceCapture {
		return fe
	}
	return e.failLocked(fe)
}

// Submit registers the account with the captured descriptors. An empty
// descriptor set is rejected without contacting the server. On failure the
// flow stays in FaceCapture with the draft intact.
func (e *Enrollment) Submit(ctx context.Context) error {
	opCtx, done, err := e.begin(ctx, func() bool { return e.state == FaceCapture })
	if err != nil {
		return err
	}
	defer done()

	e.mu.Lock()
	if len(e.descriptors) == 0 {
		err := e.failLocked(validationError("Please capture at least one face."))
		e.mu.Unlock()
		return err
	}
	reg := authapi.Registration{
		Name:     e.account.Name,
		Email:    e.account.Email,
		Password: e.account.Password,
	}
	for _, d := range e.descriptors {
		reg.Descriptors = append(reg.Descriptors, recognition.Floats(d))
	}
	e.mu.Unlock()

	if err := e.api.Register(opCtx, reg); err != nil {
		return e.failInStep(serverError(err, "Signup failed. Try another email."))
	}

	e.releaseStream()
	e.mu.Lock()
	if e.closed || e.state != FaceCapture {
		e.mu.Unlock()
		e.log.Warn("Registration accepted after leaving the face capture step")
		return wrongStep(ErrClosed)
	}
	e.state = Submitted
	e.descriptors = nil
	e.preview = nil
	e.account.Password = ""
	e.mu.Unlock()

	e.log.WithField("step", Submitted.String()).Info("Registration submitted")
	e.succeed("SignUp successful!", e.routes.SigninRoute)
	return nil
}

// Close releases the camera and ends the flow. It is safe to call more than once.
func (e *Enrollment) Close() {
	e.closeFace()
}
