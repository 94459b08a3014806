package flow

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/MrCodeEU/faceauth/pkg/authapi"
	"github.com/MrCodeEU/faceauth/pkg/camera"
	"github.com/MrCodeEU/faceauth/pkg/capture"
	"github.com/MrCodeEU/faceauth/pkg/config"
	"github.com/MrCodeEU/faceauth/pkg/logging"
	"github.com/MrCodeEU/faceauth/pkg/session"
)

func init() {
	logging.Discard()
}

type harness struct {
	api      *MockAuthAPI
	nav      *MockNavigator
	notifier *MockNotifier
	device   *MockDevice
	media    *camera.Manager
	gate     *MockGate
	capturer *MockCapturer
	store    *session.MemoryStore
}

func newHarness() *harness {
	device := &MockDevice{}
	return &harness{
		api:      &MockAuthAPI{},
		nav:      newMockNavigator(),
		notifier: &MockNotifier{},
		device:   device,
		media:    camera.NewManager(device),
		gate:     &MockGate{},
		capturer: &MockCapturer{},
		store:    session.NewMemoryStore(),
	}
}

func (h *harness) deps() Deps {
	return Deps{
		API:       h.api,
		Session:   h.store,
		Navigator: h.nav,
		Notifier:  h.notifier,
		Media:     h.media,
		Gate:      h.gate,
		Capturer:  h.capturer,
		Config: config.FlowConfig{
			RedirectDelay: 20 * time.Millisecond,
			LoginRoute:    "/dashboard",
			SigninRoute:   "/",
		},
	}
}

var testAccount = Account{Name: "Ada", Email: "a@b.com", Password: "secret1"}

func enterFaceCapture(t *testing.T, e *Enrollment) {
	t.Helper()
	if err := e.SetAccount(testAccount); err != nil {
		t.Fatalf("SetAccount failed: %v", err)
	}
	if err := e.Next(context.Background()); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
}

// Scenario A
func TestEnrollment_RegisterWithOneCapture(t *testing.T) {
	h := newHarness()
	var got authapi.Registration
	h.api.RegisterFunc = func(ctx context.Context, reg authapi.Registration) error {
		got = reg
		return nil
	}
	e := NewEnrollment(h.deps())
	defer e.Close()

	enterFaceCapture(t, e)
	if e.State() != FaceCapture {
		t.Fatalf("expected FaceCapture, got %s", e.State())
	}
	if !e.Live() || h.media.Live() != 1 {
		t.Fatal("camera should be live on FaceCapture entry")
	}
	if e.Status() != StatusCameraStarted {
		t.Errorf("unexpected status %q", e.Status())
	}

	if err := e.Capture(context.Background()); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if h.media.Live() != 0 {
		t.Error("stream should be released after a successful capture")
	}
	if string(e.Preview()) != "preview" {
		t.Errorf("expected preview to be kept, got %q", e.Preview())
	}
	if e.Status() != StatusFaceCaptured {
		t.Errorf("unexpected status %q", e.Status())
	}

	if err := e.Submit(context.Background()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if h.api.Count(authapi.EndpointRegister) != 1 {
		t.Errorf("expected register called once, got %d", h.api.Count(authapi.EndpointRegister))
	}
	if got.Email != "a@b.com" || got.Password != "secret1" || got.Name != "Ada" {
		t.Errorf("unexpected registration: %+v", got)
	}
	if len(got.Descriptors) != 1 || len(got.Descriptors[0]) != 128 || got.Descriptors[0][0] != 0.5 {
		t.Errorf("expected exactly one 128-value descriptor, got %d", len(got.Descriptors))
	}
	if e.State() != Submitted {
		t.Errorf("expected Submitted, got %s", e.State())
	}
	if routes := h.nav.Routes(); len(routes) != 1 || routes[0] != "/" {
		t.Errorf("expected navigation to /, got %v", routes)
	}
	if msgs := h.notifier.Messages(); len(msgs) != 1 || msgs[0] != "SignUp successful!" {
		t.Errorf("unexpected notices: %v", msgs)
	}
}

// Scenario B
func TestEnrollment_PermissionDenied(t *testing.T) {
	h := newHarness()
	h.device.OpenErr = camera.ErrPermissionDenied
	e := NewEnrollment(h.deps())
	defer e.Close()

	_ = e.SetAccount(testAccount)
	err := e.Next(context.Background())
	if CodeOf(err) != ErrCodePermissionDenied {
		t.Fatalf("expected PERMISSION_DENIED, got %v", err)
	}
	if e.Err() == nil || e.Err().Code != ErrCodePermissionDenied {
		t.Errorf("flow error not recorded: %v", e.Err())
	}
	if e.Status() != "Camera error: "+GetErrorMessage(ErrCodePermissionDenied) {
		t.Errorf("unexpected status %q", e.Status())
	}

	if err := e.Capture(context.Background()); CodeOf(err) != ErrCodeWrongStep {
		t.Errorf("capture without a stream should be rejected, got %v", err)
	}
	if err := e.Submit(context.Background()); CodeOf(err) != ErrCodeValidation {
		t.Errorf("expected VALIDATION on submit, got %v", err)
	}

	if h.capturer.Attempts() != 0 {
		t.Error("no capture attempt should run")
	}
	if h.api.Count(authapi.EndpointRegister) != 0 {
		t.Error("register must never be called")
	}
	if e.Account() != testAccount {
		t.Error("account fields must be kept")
	}
}

func TestEnrollment_NextValidation(t *testing.T) {
	tests := []struct {
		name    string
		account Account
	}{
		{"no name", Account{Email: "a@b.com", Password: "x"}},
		{"no email", Account{Name: "A", Password: "x"}},
		{"no password", Account{Name: "A", Email: "a@b.com"}},
		{"blank name", Account{Name: "  ", Email: "a@b.com", Password: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			e := NewEnrollment(h.deps())
			defer e.Close()

			_ = e.SetAccount(tt.account)
			err := e.Next(context.Background())
			if CodeOf(err) != ErrCodeValidation {
				t.Fatalf("expected VALIDATION, got %v", err)
			}
			if e.State() != AccountInfo {
				t.Errorf("expected to stay in AccountInfo, got %s", e.State())
			}
			if e.Account() != tt.account {
				t.Error("account draft must not be cleared")
			}
			if h.device.Opened() != 0 {
				t.Error("camera must not start")
			}
		})
	}
}

func TestEnrollment_ModelsLoadBeforeCamera(t *testing.T) {
	h := newHarness()
	h.gate.LoadAllFunc = func(ctx context.Context) error {
		if h.device.Opened() != 0 {
			t.Error("camera opened before models were loaded")
		}
		return nil
	}
	e := NewEnrollment(h.deps())
	defer e.Close()

	enterFaceCapture(t, e)
	if h.device.Opened() != 1 {
		t.Errorf("expected camera opened once, got %d", h.device.Opened())
	}
}

func TestEnrollment_ModelLoadFailure(t *testing.T) {
	h := newHarness()
	h.gate.LoadAllFunc = func(ctx context.Context) error {
		return errors.New("missing landmark model")
	}
	e := NewEnrollment(h.deps())
	defer e.Close()

	_ = e.SetAccount(testAccount)
	err := e.Next(context.Background())
	if CodeOf(err) != ErrCodeModelLoad {
		t.Fatalf("expected MODEL_LOAD_FAILED, got %v", err)
	}
	if h.device.Opened() != 0 || h.media.Live() != 0 {
		t.Error("a model failure must leave no stream")
	}
	if e.State() != FaceCapture {
		t.Errorf("expected FaceCapture, got %s", e.State())
	}
}

func TestEnrollment_NoFaceKeepsStream(t *testing.T) {
	h := newHarness()
	h.capturer.AttemptFunc = func(ctx context.Context, src capture.FrameSource) (capture.Attempt, error) {
		return capture.NotDetected{Reason: "no face"}, nil
	}
	e := NewEnrollment(h.deps())
	defer e.Close()

	enterFaceCapture(t, e)
	err := e.Capture(context.Background())
	if CodeOf(err) != ErrCodeNoFace {
		t.Fatalf("expected NO_FACE, got %v", err)
	}
	if e.Status() != StatusNoFace {
		t.Errorf("unexpected status %q", e.Status())
	}
	if !e.Live() {
		t.Error("stream should stay live for another attempt")
	}
	if len(e.Descriptors()) != 0 {
		t.Error("no descriptor should be stored")
	}
	if e.Account() != testAccount {
		t.Error("account fields must be kept")
	}

	// A second attempt against the same stream may succeed.
	h.capturer.AttemptFunc = nil
	if err := e.Capture(context.Background()); err != nil {
		t.Fatalf("second Capture failed: %v", err)
	}
	if h.device.Opened() != 1 {
		t.Errorf("expected the same stream to be reused, opened %d", h.device.Opened())
	}
}

func TestEnrollment_RetakeReplacesCapture(t *testing.T) {
	h := newHarness()
	marker := float32(0.1)
	h.capturer.AttemptFunc = func(ctx context.Context, src capture.FrameSource) (capture.Attempt, error) {
		return detected(marker), nil
	}
	e := NewEnrollment(h.deps())
	defer e.Close()

	enterFaceCapture(t, e)
	if err := e.Capture(context.Background()); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	if err := e.Retake(context.Background()); err != nil {
		t.Fatalf("Retake failed: %v", err)
	}
	if len(e.Descriptors()) != 0 || e.Preview() != nil {
		t.Error("retake must discard the capture and preview")
	}
	if !e.Live() || h.media.Live() != 1 {
		t.Error("retake must acquire the camera again")
	}

	marker = 0.9
	if err := e.Capture(context.Background()); err != nil {
		t.Fatalf("second Capture failed: %v", err)
	}
	ds := e.Descriptors()
	if len(ds) != 1 || ds[0][0] != 0.9 {
		t.Errorf("expected exactly the latest capture, got %d descriptors", len(ds))
	}
}

func TestEnrollment_BackDiscardsCapture(t *testing.T) {
	h := newHarness()
	e := NewEnrollment(h.deps())
	defer e.Close()

	enterFaceCapture(t, e)
	if err := e.Capture(context.Background()); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if err := e.Back(); err != nil {
		t.Fatalf("Back failed: %v", err)
	}
	if e.State() != AccountInfo {
		t.Errorf("expected AccountInfo, got %s", e.State())
	}
	if h.media.Live() != 0 {
		t.Error("Back must release the stream")
	}
	if e.Account() != testAccount {
		t.Error("Back must keep account fields")
	}
	if len(e.Descriptors()) != 0 || e.Preview() != nil {
		t.Error("Back must discard the capture")
	}

	// The old face must not be registered under corrected account fields.
	fixed := testAccount
	fixed.Email = "other@b.com"
	if err := e.SetAccount(fixed); err != nil {
		t.Fatalf("SetAccount failed: %v", err)
	}
	if err := e.Next(context.Background()); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if h.media.Live() != 1 {
		t.Errorf("Next must start the camera again, live streams = %d", h.media.Live())
	}
	err := e.Submit(context.Background())
	if CodeOf(err) != ErrCodeValidation {
		t.Errorf("expected VALIDATION, got %v", err)
	}
	if h.api.Count(authapi.EndpointRegister) != 0 {
		t.Error("register must not be called without a new capture")
	}
}

func TestEnrollment_BackDuringOperation(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness, entered chan<- struct{})
		run   func(e *Enrollment) error
		ready bool // enter FaceCapture before running
	}{
		{
			name: "model load",
			setup: func(h *harness, entered chan<- struct{}) {
				h.gate.LoadAllFunc = func(ctx context.Context) error {
					close(entered)
					<-ctx.Done()
					return ctx.Err()
				}
			},
			run: func(e *Enrollment) error {
				if err := e.SetAccount(testAccount); err != nil {
					return err
				}
				return e.Next(context.Background())
			},
		},
		{
			name: "capture",
			setup: func(h *harness, entered chan<- struct{}) {
				h.capturer.AttemptFunc = func(ctx context.Context, src capture.FrameSource) (capture.Attempt, error) {
					close(entered)
					<-ctx.Done()
					// a result that arrives after leaving the step is dropped
					return detected(0.5), nil
				}
			},
			run:   func(e *Enrollment) error { return e.Capture(context.Background()) },
			ready: true,
		},
		{
			name: "submit",
			setup: func(h *harness, entered chan<- struct{}) {
				h.api.RegisterFunc = func(ctx context.Context, reg authapi.Registration) error {
					close(entered)
					<-ctx.Done()
					return ctx.Err()
				}
			},
			run: func(e *Enrollment) error {
				if err := e.Capture(context.Background()); err != nil {
					return err
				}
				return e.Submit(context.Background())
			},
			ready: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			e := NewEnrollment(h.deps())
			defer e.Close()
			if tt.ready {
				enterFaceCapture(t, e)
			}

			entered := make(chan struct{})
			tt.setup(h, entered)

			result := make(chan error, 1)
			go func() { result <- tt.run(e) }()

			select {
			case <-entered:
			case <-time.After(2 * time.Second):
				t.Fatal("operation did not start")
			}

			if err := e.Back(); err != nil {
				t.Fatalf("Back during %s failed: %v", tt.name, err)
			}
			if e.State() != AccountInfo {
				t.Errorf("expected AccountInfo, got %s", e.State())
			}
			if h.media.Live() != 0 {
				t.Errorf("expected no live stream, got %d", h.media.Live())
			}

			select {
			case err := <-result:
				if err == nil {
					t.Error("cancelled operation should report an error")
				}
			case <-time.After(2 * time.Second):
				t.Fatal("operation was not cancelled")
			}

			if e.State() != AccountInfo {
				t.Errorf("state changed after cancellation: %s", e.State())
			}
			if len(e.Descriptors()) != 0 {
				t.Error("no capture should be kept after Back")
			}
			if h.media.Live() != 0 {
				t.Errorf("stream leaked after cancellation: %d live", h.media.Live())
			}
			if e.Err() != nil {
				t.Errorf("cancelled operation should not leave an error, got %v", e.Err())
			}
			if len(h.nav.Routes()) != 0 {
				t.Errorf("unexpected navigation: %v", h.nav.Routes())
			}
		})
	}
}

func TestEnrollment_SubmitValidationBeforeNetwork(t *testing.T) {
	h := newHarness()
	e := NewEnrollment(h.deps())
	defer e.Close()

	enterFaceCapture(t, e)
	err := e.Submit(context.Background())
	if CodeOf(err) != ErrCodeValidation {
		t.Fatalf("expected VALIDATION, got %v", err)
	}
	if err.Error() != "Please capture at least one face." {
		t.Errorf("unexpected message %q", err.Error())
	}
	if len(h.api.Calls()) != 0 {
		t.Errorf("no network call expected, got %v", h.api.Calls())
	}
}

func TestEnrollment_SubmitFailureKeepsDraft(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"server message", apiError(authapi.EndpointRegister, http.StatusConflict, "Email already registered"), "Email already registered"},
		{"fallback", errServer, "Signup failed. Try another email."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.api.RegisterFunc = func(ctx context.Context, reg authapi.Registration) error { return tt.err }
			e := NewEnrollment(h.deps())
			defer e.Close()

			enterFaceCapture(t, e)
			_ = e.Capture(context.Background())

			err := e.Submit(context.Background())
			if CodeOf(err) != ErrCodeServer {
				t.Fatalf("expected SERVER_ERROR, got %v", err)
			}
			if e.Status() != tt.message {
				t.Errorf("expected status %q, got %q", tt.message, e.Status())
			}
			if e.State() != FaceCapture {
				t.Errorf("expected FaceCapture, got %s", e.State())
			}
			if len(e.Descriptors()) != 1 || e.Account() != testAccount {
				t.Error("draft must be retained")
			}
			if len(h.nav.Routes()) != 0 {
				t.Error("no navigation on failure")
			}
		})
	}
}

func TestEnrollment_SubmitBusy(t *testing.T) {
	h := newHarness()
	started := make(chan struct{})
	release := make(chan struct{})
	h.api.RegisterFunc = func(ctx context.Context, reg authapi.Registration) error {
		close(started)
		<-release
		return nil
	}
	e := NewEnrollment(h.deps())
	defer e.Close()

	enterFaceCapture(t, e)
	_ = e.Capture(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- e.Submit(context.Background()) }()
	<-started

	if !e.Busy() {
		t.Error("flow should report busy")
	}
	if err := e.Submit(context.Background()); CodeOf(err) != ErrCodeBusy {
		t.Errorf("expected BUSY, got %v", err)
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Errorf("first Submit failed: %v", err)
	}
	if h.api.Count(authapi.EndpointRegister) != 1 {
		t.Errorf("expected one register call, got %d", h.api.Count(authapi.EndpointRegister))
	}
}

func TestEnrollment_CloseReleasesStream(t *testing.T) {
	h := newHarness()
	e := NewEnrollment(h.deps())

	enterFaceCapture(t, e)
	e.Close()
	e.Close()

	if h.media.Live() != 0 {
		t.Error("Close must release the stream")
	}
	if err := e.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	acquired, released := h.media.Counts()
	if acquired != released {
		t.Errorf("leaked stream: acquired=%d released=%d", acquired, released)
	}
}

func TestEnrollment_WrongStep(t *testing.T) {
	h := newHarness()
	e := NewEnrollment(h.deps())
	defer e.Close()

	if err := e.Capture(context.Background()); CodeOf(err) != ErrCodeWrongStep {
		t.Errorf("Capture in AccountInfo: expected WRONG_STEP, got %v", err)
	}
	if err := e.Submit(context.Background()); CodeOf(err) != ErrCodeWrongStep {
		t.Errorf("Submit in AccountInfo: expected WRONG_STEP, got %v", err)
	}
	if err := e.Back(); CodeOf(err) != ErrCodeWrongStep {
		t.Errorf("Back in AccountInfo: expected WRONG_STEP, got %v", err)
	}

	enterFaceCapture(t, e)
	if err := e.SetAccount(Account{}); CodeOf(err) != ErrCodeWrongStep {
		t.Errorf("SetAccount in FaceCapture: expected WRONG_STEP, got %v", err)
	}
	if err := e.StartCamera(context.Background()); CodeOf(err) != ErrCodeWrongStep {
		t.Errorf("StartCamera with a live stream: expected WRONG_STEP, got %v", err)
	}
}

func TestEnrollment_StartCameraAfterFailure(t *testing.T) {
	h := newHarness()
	h.device.OpenErr = camera.ErrDeviceUnavailable
	e := NewEnrollment(h.deps())
	defer e.Close()

	_ = e.SetAccount(testAccount)
	if err := e.Next(context.Background()); CodeOf(err) != ErrCodeDeviceUnavailable {
		t.Fatalf("expected DEVICE_UNAVAILABLE, got %v", err)
	}

	h.device.OpenErr = nil
	if err := e.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera failed: %v", err)
	}
	if !e.Live() {
		t.Error("camera should be live")
	}
	if e.Err() != nil {
		t.Error("a successful operation clears the last error")
	}
}
