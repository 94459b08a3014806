package flow

import (
	"context"

	"github.com/MrCodeEU/faceauth/pkg/camera"
	"github.com/MrCodeEU/faceauth/pkg/capture"
)

// Status texts of the capture surface.
const (
	StatusLoadingModels  = "Loading models..."
	StatusModelsLoaded   = "Models loaded. Starting camera..."
	StatusCameraStarted  = "Camera started. Capture your face."
	StatusDetecting      = "Detecting face..."
	StatusFaceCaptured   = "Face captured!"
	StatusNoFace         = "No face detected. Try again."
	StatusAuthenticating = "Face detected! Authenticating..."
)

// faceFlow is the capture surface shared by enrollment and face login.
// wantsStream runs under the lock and reports whether the flow is in a state
// that may hold a stream.
type faceFlow struct {
	base

	media       Media
	gate        Gate
	capturer    Capturer
	stream      *camera.Stream
	wantsStream func() bool
}

func (f *faceFlow) initFace(name string, d Deps, wantsStream func() bool) {
	f.init(name, d)
	f.media = d.Media
	f.gate = d.Gate
	f.capturer = d.Capturer
	f.wantsStream = wantsStream
}

// Live reports whether the flow holds a live stream.
func (f *faceFlow) Live() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stream != nil && !f.stream.Released()
}

// startCamera loads the detector models and then acquires the camera.
// A model failure leaves no stream behind.
func (f *faceFlow) startCamera(ctx context.Context) *FlowError {
	f.setStatus(StatusLoadingModels)
	if err := f.gate.LoadAll(ctx); err != nil {
		return NewFlowError(ErrCodeModelLoad, err)
	}

	f.setStatus(StatusModelsLoaded)
	s, err := f.media.Acquire(ctx)
	if err != nil {
		return cameraError(err)
	}

	f.mu.Lock()
	if f.closed || !f.wantsStream() {
		f.mu.Unlock()
		f.media.Release(s)
		return wrongStep(ErrClosed)
	}
	f.stream = s
	f.status = StatusCameraStarted
	f.mu.Unlock()

	f.log.WithField("stream", s.ID()).Debug("Capture surface live")
	return nil
}

// attempt runs one capture against the live stream.
func (f *faceFlow) attempt(ctx context.Context) (capture.Attempt, *FlowError) {
	f.mu.Lock()
	s := f.stream
	f.mu.Unlock()
	if s == nil {
		return nil, wrongStep(nil)
	}

	f.setStatus(StatusDetecting)
	result, err := f.capturer.Attempt(ctx, s)
	if err != nil {
		return nil, captureError(err)
	}
	return result, nil
}

// releaseStream releases the held stream synchronously. It is safe to call
// when no stream is held.
func (f *faceFlow) releaseStream() {
	f.mu.Lock()
	s := f.stream
	f.stream = nil
	f.mu.Unlock()

	if s != nil {
		f.media.Release(s)
	}
}

func (f *faceFlow) closeFace() {
	f.closeBase()
	f.releaseStream()
}
