// Package camera owns the camera media session: acquiring a video stream,
// attaching it to a capture surface and releasing every track again.
// At most one stream is live per Manager at any time.
package camera

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/jpeg" // MJPEG frames
	_ "image/png"
	"time"
)

// Frame represents a single camera frame.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Format    string // "JPEG", "PNG", "GRAY"
	Seq       uint64
	Timestamp time.Time
}

// ToImage decodes the frame payload.
func (f Frame) ToImage() (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(f.Data))
	return img, err
}

// DeviceInfo contains information about a camera device.
type DeviceInfo struct {
	Path   string
	Name   string
	Driver string
}

// Track is one media track of a stream (the video feed of a device).
type Track interface {
	ID() string
	// ReadFrame returns the most recent frame, waiting for the first one
	// if the track has not produced any yet.
	ReadFrame(ctx context.Context) (Frame, error)
	// Stop ends the track. Stop is synchronous and safe to call twice.
	Stop() error
}

// Device opens camera tracks.
type Device interface {
	Open(ctx context.Context) ([]Track, error)
}

// ErrPermissionDenied is returned when access to the camera was refused.
var ErrPermissionDenied = errors.New("camera permission denied")

// ErrDeviceUnavailable is returned when no usable camera device exists.
var ErrDeviceUnavailable = errors.New("camera device unavailable")

// ErrStreamReleased is returned when reading from a stream that was released.
var ErrStreamReleased = errors.New("camera stream released")

// ErrNoFrame is returned when no frame could be captured.
var ErrNoFrame = errors.New("failed to capture frame")
