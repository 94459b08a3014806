package recognition

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/MrCodeEU/faceauth/pkg/logging"
	"github.com/MrCodeEU/faceauth/pkg/metrics"
)

// Readiness is the load state of a single detector model.
type Readiness int

const (
	Unloaded Readiness = iota
	Loading
	Ready
)

func (r Readiness) String() string {
	switch r {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "unloaded"
	}
}

// Model is one loadable detector stage.
type Model struct {
	Name string
	Load func(ctx context.Context) error
}

// ErrModelLoad is returned when a detector model fails to load.
var ErrModelLoad = errors.New("failed to load detector model")

// Gate loads detector models in a fixed order and reports whether capture
// may run. A gate is never reset: models that reached Ready stay Ready.
type Gate struct {
	models []Model
	log    *logrus.Entry

	loadMu sync.Mutex // serializes LoadAll

	mu     sync.RWMutex
	states []Readiness
	status string
}

// NewGate creates a gate over the given models. Load order is argument order.
func NewGate(models ...Model) *Gate {
	return &Gate{
		models: models,
		log:    logging.Component("recognition"),
		states: make([]Readiness, len(models)),
		status: "Models not loaded.",
	}
}

// LoadAll loads every model that is not Ready yet, strictly in order, and
// stops at the first failure. The failing model returns to Unloaded and the
// failure is kept as status text. Calling LoadAll on a ready gate is a no-op.
func (g *Gate) LoadAll(ctx context.Context) error {
	g.loadMu.Lock()
	defer g.loadMu.Unlock()

	if g.IsReady() {
		return nil
	}
	g.setStatus("Loading models...")

	for i, m := range g.models {
		if g.state(i) == Ready {
			continue
		}
		if err := ctx.Err(); err != nil {
			g.setStatus(fmt.Sprintf("Model loading cancelled: %v", err))
			return err
		}

		g.setState(i, Loading)
		err := g.loadOne(ctx, m)
		if err != nil {
			g.setState(i, Unloaded)
			metrics.ModelLoads.WithLabelValues(m.Name, "error").Inc()
			g.log.WithField("model", m.Name).WithError(err).Error("Model load failed")
			g.setStatus(fmt.Sprintf("Failed to load %s model: %v", m.Name, err))
			return fmt.Errorf("%w: %s: %v", ErrModelLoad, m.Name, err)
		}
		g.setState(i, Ready)
		metrics.ModelLoads.WithLabelValues(m.Name, "ok").Inc()
		g.log.WithField("model", m.Name).Debug("Model loaded")
	}

	g.setStatus("Models loaded.")
	return nil
}

// loadOne turns a panicking loader into an error.
func (g *Gate) loadOne(ctx context.Context, m Model) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if m.Load == nil {
		return nil
	}
	return m.Load(ctx)
}

// IsReady reports whether every model is Ready.
func (g *Gate) IsReady() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, s := range g.states {
		if s != Ready {
			return false
		}
	}
	return true
}

// Status returns the last status text.
func (g *Gate) Status() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}

// States returns the readiness of each model by name.
func (g *Gate) States() map[string]Readiness {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]Readiness, len(g.models))
	for i, m := range g.models {
		out[m.Name] = g.states[i]
	}
	return out
}

func (g *Gate) state(i int) Readiness {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.states[i]
}

func (g *Gate) setState(i int, r Readiness) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.states[i] = r
}

func (g *Gate) setStatus(s string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = s
}
