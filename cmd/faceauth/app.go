package main

import (
	"fmt"
	"io"

	"github.com/MrCodeEU/faceauth/pkg/authapi"
	"github.com/MrCodeEU/faceauth/pkg/camera"
	"github.com/MrCodeEU/faceauth/pkg/capture"
	"github.com/MrCodeEU/faceauth/pkg/config"
	"github.com/MrCodeEU/faceauth/pkg/flow"
	"github.com/MrCodeEU/faceauth/pkg/logging"
	"github.com/MrCodeEU/faceauth/pkg/metrics"
	"github.com/MrCodeEU/faceauth/pkg/recognition"
	"github.com/MrCodeEU/faceauth/pkg/session"
)

// app wires the flow collaborators for one command invocation.
type app struct {
	cfg      *config.Config
	term     *terminal
	api      *authapi.Client
	store    session.Store
	media    *camera.Manager
	detector *recognition.DlibDetector
	gate     *recognition.Gate
	capturer *capture.Pipeline
}

func newApp(cfg *config.Config, t *terminal) (*app, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	store, err := session.New(cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	detector := recognition.NewDlibDetector(cfg.Detector)
	gate := recognition.NewGate(detector.Models()...)

	return &app{
		cfg:      cfg,
		term:     t,
		api:      authapi.NewClientFromConfig(cfg.API),
		store:    store,
		media:    camera.NewManager(camera.NewV4L2Device(cfg.Camera)),
		detector: detector,
		gate:     gate,
		capturer: capture.NewPipeline(gate, detector, cfg.Detector),
	}, nil
}

func (a *app) deps() flow.Deps {
	return flow.Deps{
		API:       a.api,
		Session:   a.store,
		Navigator: a.term,
		Notifier:  a.term,
		Media:     a.media,
		Gate:      a.gate,
		Capturer:  a.capturer,
		Config:    a.cfg.Flow,
	}
}

// Close releases the camera and the detector and exports metrics.
func (a *app) Close() {
	a.media.ReleaseActive()
	if err := a.detector.Close(); err != nil {
		logging.WithError(err).Warn("Failed to close detector")
	}
	if c, ok := a.store.(io.Closer); ok {
		_ = c.Close()
	}
	if err := metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		logging.WithError(err).Warn("Failed to write metrics textfile")
	}
}
