package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/MrCodeEU/faceauth/pkg/logging"
	"github.com/MrCodeEU/faceauth/pkg/metrics"
)

// Stream is an acquired camera handle: a set of tracks plus the surface it
// is attached to.
type Stream struct {
	id     string
	tracks []Track

	mu       sync.Mutex
	released bool
}

// ID returns the stream identifier used in logs.
func (s *Stream) ID() string {
	return s.id
}

// Tracks returns the tracks of the stream.
func (s *Stream) Tracks() []Track {
	return s.tracks
}

// Released reports whether every track of the stream has been stopped.
func (s *Stream) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Frame reads the current frame of the first track.
func (s *Stream) Frame(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return Frame{}, ErrStreamReleased
	}
	if len(s.tracks) == 0 {
		s.mu.Unlock()
		return Frame{}, ErrNoFrame
	}
	track := s.tracks[0]
	s.mu.Unlock()

	return track.ReadFrame(ctx)
}

// stop stops every track. It reports false when the stream was already released.
func (s *Stream) stop() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return false, nil
	}
	s.released = true

	var errs []error
	for _, t := range s.tracks {
		if err := t.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("track %s: %w", t.ID(), err))
		}
	}
	return true, errors.Join(errs...)
}

// Sink is the capture surface a stream is rendered into.
type Sink struct {
	mu     sync.Mutex
	stream *Stream
}

// Attach makes the stream the surface's source.
func (k *Sink) Attach(s *Stream) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stream = s
}

// Detach clears the surface's source.
func (k *Sink) Detach() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stream = nil
}

// Stream returns the attached stream, or nil.
func (k *Sink) Stream() *Stream {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.stream
}

// Manager acquires and releases streams for a single capture surface.
type Manager struct {
	device Device
	sink   *Sink
	log    *logrus.Entry

	mu       sync.Mutex
	active   *Stream
	acquired int
	released int
}

// NewManager creates a Manager bound to a new capture surface.
func NewManager(device Device) *Manager {
	return &Manager{
		device: device,
		sink:   &Sink{},
		log:    logging.Component("camera"),
	}
}

// Sink returns the capture surface of this manager.
func (m *Manager) Sink() *Sink {
	return m.sink
}

// Acquire opens the camera and attaches the new stream to the surface.
// A stream that is still live is released first. Failures wrap
// ErrPermissionDenied or ErrDeviceUnavailable.
func (m *Manager) Acquire(ctx context.Context) (*Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		m.log.WithField("stream", m.active.id).Debug("Releasing live stream before acquiring a new one")
		m.releaseLocked(m.active)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tracks, err := m.device.Open(ctx)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	stream := &Stream{id: uuid.NewString(), tracks: tracks}
	m.sink.Attach(stream)
	m.active = stream
	m.acquired++

	metrics.StreamsAcquired.Inc()
	metrics.StreamsLive.Inc()
	m.log.WithFields(logrus.Fields{"stream": stream.id, "tracks": len(tracks)}).Info("Camera stream acquired")

	return stream, nil
}

// Release stops every track of the stream and detaches it from the surface.
// Releasing a nil or already released stream is a no-op.
func (m *Manager) Release(s *Stream) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(s)
}

// ReleaseActive releases the live stream, if any.
func (m *Manager) ReleaseActive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		m.releaseLocked(m.active)
	}
}

func (m *Manager) releaseLocked(s *Stream) {
	if m.sink.Stream() == s {
		m.sink.Detach()
	}
	if m.active == s {
		m.active = nil
	}

	changed, err := s.stop()
	if !changed {
		return
	}
	m.released++
	metrics.StreamsReleased.Inc()
	metrics.StreamsLive.Dec()

	entry := m.log.WithField("stream", s.id)
	if err != nil {
		entry.WithError(err).Warn("Camera stream released with errors")
		return
	}
	entry.Info("Camera stream released")
}

// Active returns the live stream, or nil.
func (m *Manager) Active() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Live returns the number of live streams (0 or 1).
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return 1
	}
	return 0
}

// Counts returns how many streams were acquired and released with effect.
func (m *Manager) Counts() (acquired, released int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired, m.released
}
