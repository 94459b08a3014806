package devserver

import (
	"context"
	"sync"
)

// MockSender records delivered codes.
type MockSender struct {
	SendOTPFunc func(ctx context.Context, email, code string) error

	mu    sync.Mutex
	codes map[string]string
}

func (m *MockSender) SendOTP(ctx context.Context, email, code string) error {
	if m.SendOTPFunc != nil {
		return m.SendOTPFunc(ctx, email, code)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codes == nil {
		m.codes = make(map[string]string)
	}
	m.codes[email] = code
	return nil
}

func (m *MockSender) Code(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}
