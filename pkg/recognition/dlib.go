// Package recognition provides face detection for the capture pipeline.
// It uses dlib through go-face for face location, landmark extraction and
// descriptor generation, and guards their use behind a readiness Gate.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Kagami/go-face"

	"github.com/MrCodeEU/faceauth/pkg/config"
	"github.com/MrCodeEU/faceauth/pkg/logging"
)

// Model files expected in the model directory.
const (
	LocatorModelFile    = "mmod_human_face_detector.dat"
	LandmarkModelFile   = "shape_predictor_5_face_landmarks.dat"
	DescriptorModelFile = "dlib_face_recognition_resnet_model_v1.dat"
)

// Names of the three detector stages, in load order.
const (
	StageLocator    = "locator"
	StageLandmark   = "landmark"
	StageDescriptor = "descriptor"
)

// Face represents a detected face in an image.
type Face struct {
	BoundingBox Rectangle
	Landmarks   []Point
	Descriptor  Descriptor
}

// Area returns the bounding box area in pixels.
func (f Face) Area() int {
	return f.BoundingBox.Width * f.BoundingBox.Height
}

// Rectangle represents a bounding box.
type Rectangle struct {
	X, Y          int
	Width, Height int
}

// Point represents a 2D point.
type Point struct {
	X, Y int
}

// DescriptorLength is the number of values in a face descriptor.
const DescriptorLength = len(face.Descriptor{})

// Descriptor is a 128-dimensional face descriptor from dlib.
type Descriptor = face.Descriptor

// ErrNoFaceDetected is returned when no face is found in the image.
var ErrNoFaceDetected = errors.New("no face detected")

// ErrModelNotLoaded is returned when detection runs before the models are loaded.
var ErrModelNotLoaded = errors.New("recognition models not loaded")

// FaceEngine is the part of go-face's Recognizer the detector uses.
type FaceEngine interface {
	Recognize(data []byte) ([]face.Face, error)
	RecognizeCNN(data []byte) ([]face.Face, error)
	Close()
}

// DlibDetector detects faces using dlib via go-face.
type DlibDetector struct {
	modelDir string
	useCNN   bool
	factory  func(dir string) (FaceEngine, error)

	mu     sync.RWMutex
	engine FaceEngine
}

// NewDlibDetector creates a detector from detector configuration.
// Models are not loaded until the stages returned by Models run.
func NewDlibDetector(cfg config.DetectorConfig) *DlibDetector {
	return &DlibDetector{
		modelDir: cfg.ModelPath,
		useCNN:   cfg.Locator == "cnn",
		factory: func(dir string) (FaceEngine, error) {
			return face.NewRecognizer(dir)
		},
	}
}

// Models returns the three detector stages in load order: locator,
// landmark, descriptor. The descriptor stage builds the go-face engine.
func (d *DlibDetector) Models() []Model {
	return []Model{
		{Name: StageLocator, Load: d.requireFile(LocatorModelFile)},
		{Name: StageLandmark, Load: d.requireFile(LandmarkModelFile)},
		{Name: StageDescriptor, Load: d.loadEngine},
	}
}

func (d *DlibDetector) requireFile(name string) func(context.Context) error {
	return func(ctx context.Context) error {
		path := filepath.Join(d.modelDir, name)
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("model file %s: %w", path, err)
		}
		if info.Size() == 0 {
			return fmt.Errorf("model file %s is empty", path)
		}
		return nil
	}
}

func (d *DlibDetector) loadEngine(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.engine != nil {
		return nil
	}
	if err := d.requireFile(DescriptorModelFile)(ctx); err != nil {
		return err
	}

	logging.Infof("Loading face recognition models from: %s", d.modelDir)
	engine, err := d.factory(d.modelDir)
	if err != nil {
		return fmt.Errorf("failed to load models: %w", err)
	}
	d.engine = engine
	return nil
}

// IsLoaded returns true once the engine is built.
func (d *DlibDetector) IsLoaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.engine != nil
}

// Close releases the detector resources.
func (d *DlibDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.engine != nil {
		d.engine.Close()
		d.engine = nil
	}
	return nil
}

// Detect runs one locate, landmark and descriptor pass over a JPEG image.
// It returns ErrNoFaceDetected when the image contains no face.
func (d *DlibDetector) Detect(imageData []byte) ([]Face, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.engine == nil {
		return nil, ErrModelNotLoaded
	}

	var faces []face.Face
	var err error
	if d.useCNN {
		faces, err = d.engine.RecognizeCNN(imageData)
	} else {
		faces, err = d.engine.Recognize(imageData)
	}
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}
	if len(faces) == 0 {
		return nil, ErrNoFaceDetected
	}

	result := make([]Face, len(faces))
	for i, f := range faces {
		rect := f.Rectangle
		landmarks := make([]Point, len(f.Shapes))
		for j, p := range f.Shapes {
			landmarks[j] = Point{X: p.X, Y: p.Y}
		}
		result[i] = Face{
			BoundingBox: Rectangle{
				X:      rect.Min.X,
				Y:      rect.Min.Y,
				Width:  rect.Dx(),
				Height: rect.Dy(),
			},
			Landmarks:  landmarks,
			Descriptor: f.Descriptor,
		}
	}

	logging.Debugf("Detected %d face(s) in image", len(result))
	return result, nil
}
