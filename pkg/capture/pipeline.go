// Package capture runs single face capture attempts against a live camera
// stream: one locate, landmark and descriptor pass per attempt, gated on
// detector readiness and limited to one attempt in flight.
package capture

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/MrCodeEU/faceauth/pkg/camera"
	"github.com/MrCodeEU/faceauth/pkg/config"
	"github.com/MrCodeEU/faceauth/pkg/logging"
	"github.com/MrCodeEU/faceauth/pkg/metrics"
	"github.com/MrCodeEU/faceauth/pkg/recognition"
)

// Attempt is the outcome of one capture: Detected or NotDetected.
type Attempt interface {
	attempt()
}

// Detected carries the descriptor of the captured face and a still preview.
type Detected struct {
	Descriptor recognition.Descriptor
	Preview    []byte
	Face       recognition.Rectangle
}

// NotDetected reports that no usable face was found in the frame.
type NotDetected struct {
	Reason string
}

func (Detected) attempt()    {}
func (NotDetected) attempt() {}

// Multi-face policies.
const (
	PolicyLargest = "largest"
	PolicyReject  = "reject"
)

// Readiness reports whether the detector models are loaded.
type Readiness interface {
	IsReady() bool
}

// Detector finds faces in an encoded image.
type Detector interface {
	Detect(imageData []byte) ([]recognition.Face, error)
}

// FrameSource supplies the current frame of a live stream.
type FrameSource interface {
	Frame(ctx context.Context) (camera.Frame, error)
}

// ErrNotReady is returned when capture is attempted before the models are loaded.
var ErrNotReady = errors.New("detector models not ready")

// ErrInFlight is returned when another capture is still running on the pipeline.
var ErrInFlight = errors.New("capture already in progress")

// Pipeline performs capture attempts for one capture surface.
type Pipeline struct {
	gate     Readiness
	detector Detector
	policy   string
	width    int
	height   int
	log      *logrus.Entry

	inflight atomic.Bool
}

// NewPipeline creates a pipeline from detector configuration.
func NewPipeline(gate Readiness, detector Detector, cfg config.DetectorConfig) *Pipeline {
	policy := cfg.MultiFacePolicy
	if policy == "" {
		policy = PolicyLargest
	}
	return &Pipeline{
		gate:     gate,
		detector: detector,
		policy:   policy,
		width:    cfg.PreviewWidth,
		height:   cfg.PreviewHeight,
		log:      logging.Component("capture"),
	}
}

// Attempt runs exactly one detection pass over the current frame of src.
// It never retries and never returns a partial descriptor. Errors are
// returned for conditions outside detection: not ready, already running,
// or no frame available from the source.
func (p *Pipeline) Attempt(ctx context.Context, src FrameSource) (Attempt, error) {
	if !p.gate.IsReady() {
		metrics.CaptureAttempts.WithLabelValues("not_ready").Inc()
		return nil, ErrNotReady
	}
	if !p.inflight.CompareAndSwap(false, true) {
		metrics.CaptureAttempts.WithLabelValues("busy").Inc()
		return nil, ErrInFlight
	}
	defer p.inflight.Store(false)

	frame, err := src.Frame(ctx)
	if err != nil {
		metrics.CaptureAttempts.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}

	result := p.detect(frame)
	switch r := result.(type) {
	case Detected:
		metrics.CaptureAttempts.WithLabelValues("detected").Inc()
		p.log.WithField("frame", frame.Seq).Info("Face captured")
	case NotDetected:
		metrics.CaptureAttempts.WithLabelValues("not_detected").Inc()
		p.log.WithFields(logrus.Fields{"frame": frame.Seq, "reason": r.Reason}).Info("No face captured")
	}
	return result, nil
}

func (p *Pipeline) detect(frame camera.Frame) Attempt {
	faces, err := p.detector.Detect(frame.Data)
	if err != nil {
		if errors.Is(err, recognition.ErrNoFaceDetected) {
			return NotDetected{Reason: "no face"}
		}
		p.log.WithError(err).Warn("Detection failed")
		return NotDetected{Reason: err.Error()}
	}
	if len(faces) == 0 {
		return NotDetected{Reason: "no face"}
	}

	best := faces[0]
	if len(faces) > 1 {
		if p.policy == PolicyReject {
			return NotDetected{Reason: "multiple faces"}
		}
		for _, f := range faces[1:] {
			if f.Area() > best.Area() {
				best = f
			}
		}
	}

	if !validDescriptor(best.Descriptor) {
		return NotDetected{Reason: "invalid descriptor"}
	}

	return Detected{
		Descriptor: best.Descriptor,
		Preview:    p.preview(frame),
		Face:       best.BoundingBox,
	}
}

// validDescriptor rejects the all-zero vector dlib leaves behind when
// descriptor extraction did not run, and any non-finite component.
func validDescriptor(d recognition.Descriptor) bool {
	nonZero := false
	for _, v := range d {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
		if v != 0 {
			nonZero = true
		}
	}
	return nonZero
}
