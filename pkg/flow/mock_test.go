package flow

import (
	"context"
	"errors"
	"sync"

	"github.com/MrCodeEU/faceauth/pkg/authapi"
	"github.com/MrCodeEU/faceauth/pkg/camera"
	"github.com/MrCodeEU/faceauth/pkg/capture"
	"github.com/MrCodeEU/faceauth/pkg/recognition"
)

type MockAuthAPI struct {
	LoginFunc         func(ctx context.Context, creds authapi.Credentials) (*authapi.LoginResponse, error)
	FaceLoginFunc     func(ctx context.Context, descriptor []float64) (*authapi.LoginResponse, error)
	RegisterFunc      func(ctx context.Context, reg authapi.Registration) error
	SendOTPFunc       func(ctx context.Context, email string) error
	VerifyOTPFunc     func(ctx context.Context, email, otp string) error
	ResetPasswordFunc func(ctx context.Context, email, otp, newPassword string) error

	mu    sync.Mutex
	calls []string
}

func (m *MockAuthAPI) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

func (m *MockAuthAPI) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockAuthAPI) Count(name string) int {
	n := 0
	for _, c := range m.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

func (m *MockAuthAPI) Login(ctx context.Context, creds authapi.Credentials) (*authapi.LoginResponse, error) {
	m.record(authapi.EndpointLogin)
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, creds)
	}
	return &authapi.LoginResponse{Email: creds.Email, Token: "token"}, nil
}

func (m *MockAuthAPI) FaceLogin(ctx context.Context, descriptor []float64) (*authapi.LoginResponse, error) {
	m.record(authapi.EndpointFaceLogin)
	if m.FaceLoginFunc != nil {
		return m.FaceLoginFunc(ctx, descriptor)
	}
	return &authapi.LoginResponse{Email: "face@b.com", Token: "face-token"}, nil
}

func (m *MockAuthAPI) Register(ctx context.Context, reg authapi.Registration) error {
	m.record(authapi.EndpointRegister)
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, reg)
	}
	return nil
}

func (m *MockAuthAPI) SendOTP(ctx context.Context, email string) error {
	m.record(authapi.EndpointSendOTP)
	if m.SendOTPFunc != nil {
		return m.SendOTPFunc(ctx, email)
	}
	return nil
}

func (m *MockAuthAPI) VerifyOTP(ctx context.Context, email, otp string) error {
	m.record(authapi.EndpointVerifyOTP)
	if m.VerifyOTPFunc != nil {
		return m.VerifyOTPFunc(ctx, email, otp)
	}
	return nil
}

func (m *MockAuthAPI) ResetPassword(ctx context.Context, email, otp, newPassword string) error {
	m.record(authapi.EndpointResetPassword)
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, email, otp, newPassword)
	}
	return nil
}

type MockNavigator struct {
	mu     sync.Mutex
	routes []string
	ch     chan string
}

func newMockNavigator() *MockNavigator {
	return &MockNavigator{ch: make(chan string, 8)}
}

func (m *MockNavigator) Navigate(route string) {
	m.mu.Lock()
	m.routes = append(m.routes, route)
	m.mu.Unlock()
	m.ch <- route
}

func (m *MockNavigator) Routes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.routes...)
}

type MockNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (m *MockNotifier) Notify(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
}

func (m *MockNotifier) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

type MockGate struct {
	LoadAllFunc func(ctx context.Context) error

	mu    sync.Mutex
	ready bool
	loads int
}

func (m *MockGate) LoadAll(ctx context.Context) error {
	m.mu.Lock()
	m.loads++
	m.mu.Unlock()
	if m.LoadAllFunc != nil {
		if err := m.LoadAllFunc(ctx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.ready = true
	m.mu.Unlock()
	return nil
}

func (m *MockGate) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

type MockCapturer struct {
	AttemptFunc func(ctx context.Context, src capture.FrameSource) (capture.Attempt, error)

	mu       sync.Mutex
	attempts int
}

func (m *MockCapturer) Attempt(ctx context.Context, src capture.FrameSource) (capture.Attempt, error) {
	m.mu.Lock()
	m.attempts++
	m.mu.Unlock()
	if _, err := src.Frame(ctx); err != nil {
		return nil, err
	}
	if m.AttemptFunc != nil {
		return m.AttemptFunc(ctx, src)
	}
	return detected(0.5), nil
}

func (m *MockCapturer) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func detected(marker float32) capture.Detected {
	var d recognition.Descriptor
	d[0] = marker
	return capture.Detected{Descriptor: d, Preview: []byte("preview")}
}

// MockTrack and MockDevice back a real camera.Manager in flow tests.
type MockTrack struct {
	OnStop func()

	mu    sync.Mutex
	stops int
}

func (m *MockTrack) ID() string { return "track" }

func (m *MockTrack) ReadFrame(ctx context.Context) (camera.Frame, error) {
	return camera.Frame{Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}, Seq: 1}, nil
}

func (m *MockTrack) Stop() error {
	m.mu.Lock()
	m.stops++
	m.mu.Unlock()
	if m.OnStop != nil {
		m.OnStop()
	}
	return nil
}

type MockDevice struct {
	OpenErr error
	OnStop  func()

	mu     sync.Mutex
	opened int
}

func (m *MockDevice) Open(ctx context.Context) ([]camera.Track, error) {
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	m.mu.Lock()
	m.opened++
	m.mu.Unlock()
	return []camera.Track{&MockTrack{OnStop: m.OnStop}}, nil
}

func (m *MockDevice) Opened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

var errServer = errors.New("server unreachable")

func apiError(endpoint string, status int, message string) error {
	return &authapi.APIError{Endpoint: endpoint, StatusCode: status, Message: message}
}
