// Package session keeps the record of the logged-in user.
// The record is opaque to the flows: an email and the token the auth API issued.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrCodeEU/faceauth/pkg/config"
)

// Record is the persisted login session.
type Record struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

// Store persists the session record.
type Store interface {
	// Get returns ErrNoSession when no record is stored.
	Get() (*Record, error)
	Set(rec Record) error
	// Clear removes the record. Clearing an empty store is not an error.
	Clear() error
}

// ErrNoSession is returned when no session record exists.
var ErrNoSession = errors.New("no session")

// New creates the store selected by the session configuration.
func New(cfg config.SessionConfig) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "file", "":
		return NewFileStore(cfg.Path, cfg.EncryptionEnabled)
	case "redis":
		return NewRedisStore(cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown session backend: %s", cfg.Backend)
	}
}

// MemoryStore keeps the record in process memory.
type MemoryStore struct {
	mu  sync.Mutex
	rec *Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get() (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return nil, ErrNoSession
	}
	rec := *s.rec
	return &rec, nil
}

func (s *MemoryStore) Set(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = &rec
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = nil
	return nil
}
