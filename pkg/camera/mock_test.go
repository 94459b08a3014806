package camera

import (
	"context"
	"sync"
)

// MockTrack implements Track for testing
type MockTrack struct {
	IDValue       string
	ReadFrameFunc func(ctx context.Context) (Frame, error)
	StopFunc      func() error

	mu    sync.Mutex
	stops int
}

func (m *MockTrack) ID() string {
	return m.IDValue
}

func (m *MockTrack) ReadFrame(ctx context.Context) (Frame, error) {
	if m.ReadFrameFunc != nil {
		return m.ReadFrameFunc(ctx)
	}
	return Frame{Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}, Format: "JPEG"}, nil
}

func (m *MockTrack) Stop() error {
	m.mu.Lock()
	m.stops++
	m.mu.Unlock()
	if m.StopFunc != nil {
		return m.StopFunc()
	}
	return nil
}

func (m *MockTrack) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

// MockDevice implements Device for testing
type MockDevice struct {
	OpenFunc func(ctx context.Context) ([]Track, error)

	mu     sync.Mutex
	tracks []*MockTrack
}

func (m *MockDevice) Open(ctx context.Context) ([]Track, error) {
	if m.OpenFunc != nil {
		return m.OpenFunc(ctx)
	}
	t := &MockTrack{IDValue: "video"}
	m.mu.Lock()
	m.tracks = append(m.tracks, t)
	m.mu.Unlock()
	return []Track{t}, nil
}

func (m *MockDevice) Opened() []*MockTrack {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockTrack(nil), m.tracks...)
}
