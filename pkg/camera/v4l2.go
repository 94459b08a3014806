package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrCodeEU/faceauth/pkg/config"
	"github.com/MrCodeEU/faceauth/pkg/logging"
)

// execCommand is swapped out by tests.
var execCommand = exec.Command

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

const maxFrameSize = 8 << 20

// V4L2Device streams MJPEG frames from a V4L2 camera through ffmpeg.
type V4L2Device struct {
	Path              string
	FFmpeg            string
	Width             int
	Height            int
	FPS               int
	FirstFrameTimeout time.Duration
}

// NewV4L2Device creates a device from camera configuration.
func NewV4L2Device(cfg config.CameraConfig) *V4L2Device {
	ffmpeg := cfg.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	return &V4L2Device{
		Path:              cfg.Device,
		FFmpeg:            ffmpeg,
		Width:             cfg.Width,
		Height:            cfg.Height,
		FPS:               cfg.FPS,
		FirstFrameTimeout: cfg.FirstFrameTimeout,
	}
}

// checkAccess maps device node problems to the camera error taxonomy.
func (d *V4L2Device) checkAccess() error {
	f, err := os.OpenFile(d.Path, os.O_RDWR, 0)
	switch {
	case err == nil:
		return f.Close()
	case os.IsNotExist(err):
		return fmt.Errorf("%w: %s does not exist", ErrDeviceUnavailable, d.Path)
	case os.IsPermission(err):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, d.Path)
	default:
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
}

// Open starts an ffmpeg process that writes an MJPEG stream to stdout.
func (d *V4L2Device) Open(ctx context.Context) ([]Track, error) {
	if err := d.checkAccess(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := execCommand(d.FFmpeg,
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2",
		"-framerate", strconv.Itoa(d.FPS),
		"-video_size", fmt.Sprintf("%dx%d", d.Width, d.Height),
		"-i", d.Path,
		"-f", "mjpeg", "-q:v", "5",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start %s: %v", ErrDeviceUnavailable, d.FFmpeg, err)
	}

	track := newPipeTrack(cmd, stdout, d.Width, d.Height, d.FirstFrameTimeout)
	go track.readLoop()

	return []Track{track}, nil
}

// pipeTrack keeps the latest frame read from an ffmpeg MJPEG pipe.
type pipeTrack struct {
	id      string
	cmd     *exec.Cmd
	out     io.ReadCloser
	width   int
	height  int
	timeout time.Duration

	mu     sync.Mutex
	latest Frame
	seq    uint64

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	readErr   error
	stopOnce  sync.Once
	stopErr   error
}

func newPipeTrack(cmd *exec.Cmd, out io.ReadCloser, width, height int, timeout time.Duration) *pipeTrack {
	return &pipeTrack{
		id:      uuid.NewString(),
		cmd:     cmd,
		out:     out,
		width:   width,
		height:  height,
		timeout: timeout,
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (t *pipeTrack) ID() string {
	return t.id
}

func (t *pipeTrack) readLoop() {
	defer close(t.done)

	scanner := bufio.NewScanner(t.out)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	scanner.Split(scanJPEG)

	for scanner.Scan() {
		data := make([]byte, len(scanner.Bytes()))
		copy(data, scanner.Bytes())

		t.mu.Lock()
		t.seq++
		t.latest = Frame{
			Data:      data,
			Width:     t.width,
			Height:    t.height,
			Format:    "JPEG",
			Seq:       t.seq,
			Timestamp: time.Now(),
		}
		t.mu.Unlock()
		t.readyOnce.Do(func() { close(t.ready) })
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		t.readErr = err
		logging.Component("camera").WithError(err).Debug("MJPEG reader stopped")
	}
}

func (t *pipeTrack) current() Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest
}

// ReadFrame returns the latest frame, waiting up to the first-frame timeout
// for the camera to start delivering.
func (t *pipeTrack) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case <-t.ready:
		return t.current(), nil
	default:
	}

	var timeout <-chan time.Time
	if t.timeout > 0 {
		timer := time.NewTimer(t.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-t.ready:
		return t.current(), nil
	case <-t.done:
		if t.readErr != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrNoFrame, t.readErr)
		}
		return Frame{}, ErrNoFrame
	case <-timeout:
		return Frame{}, fmt.Errorf("%w: no frame within %s", ErrNoFrame, t.timeout)
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Stop kills ffmpeg and waits for it and the reader to exit.
func (t *pipeTrack) Stop() error {
	t.stopOnce.Do(func() {
		if t.cmd.Process != nil {
			_ = t.cmd.Process.Kill()
		}
		_ = t.out.Close()
		<-t.done
		if err := t.cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				t.stopErr = err
			}
		}
	})
	return t.stopErr
}

// scanJPEG is a bufio.SplitFunc that yields complete JPEG images
// (SOI through EOI), discarding any bytes between them.
func scanJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF || len(data) == 0 {
			return len(data), nil, nil
		}
		// Keep the last byte: it may be the first half of a marker.
		return len(data) - 1, nil, nil
	}

	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	end += start + len(jpegSOI) + len(jpegEOI)
	return end, data[start:end], nil
}

// Info queries v4l2-ctl for the device name and driver.
func Info(path string) (DeviceInfo, error) {
	info := DeviceInfo{Path: path}
	out, err := execCommand("v4l2-ctl", "-d", path, "--info").Output()
	if err != nil {
		return info, fmt.Errorf("v4l2-ctl --info failed: %w", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "Driver name":
			info.Driver = strings.TrimSpace(value)
		case "Card type":
			info.Name = strings.TrimSpace(value)
		}
	}
	return info, nil
}

// ListCameras returns the video device nodes reported by v4l2-ctl.
func ListCameras() ([]DeviceInfo, error) {
	out, err := execCommand("v4l2-ctl", "--list-devices").Output()
	if err != nil {
		return nil, fmt.Errorf("v4l2-ctl --list-devices failed: %w", err)
	}

	var devices []DeviceInfo
	var name string
	for _, line := range strings.Split(string(out), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			continue
		case !strings.HasPrefix(line, "\t") && strings.HasSuffix(trimmed, ":"):
			name = strings.TrimSuffix(trimmed, ":")
			if i := strings.LastIndex(name, " ("); i > 0 {
				name = name[:i]
			}
		case strings.HasPrefix(trimmed, "/dev/video"):
			devices = append(devices, DeviceInfo{Path: trimmed, Name: name})
		}
	}
	return devices, nil
}
