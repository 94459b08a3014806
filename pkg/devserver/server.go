// Package devserver is an in-memory implementation of the /api/auth
// endpoints for local development and end-to-end tests. Users, OTPs and
// descriptors live in process memory and are lost on restart.
package devserver

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/MrCodeEU/faceauth/pkg/authapi"
	"github.com/MrCodeEU/faceauth/pkg/config"
	"github.com/MrCodeEU/faceauth/pkg/logging"
	"github.com/MrCodeEU/faceauth/pkg/metrics"
)

const maxBodyBytes = 1 << 20

// Server serves the auth API.
type Server struct {
	cfg        config.DevConfig
	users      *Users
	otps       *OTPs
	tokens     *Issuer
	sender     OTPSender
	router     *chi.Mux
	httpServer *http.Server
	log        *logrus.Entry
}

// New creates a server. A nil sender logs OTPs instead of mailing them.
// Without a configured JWT secret a random one is generated, so tokens do
// not survive a restart.
func New(cfg config.DevConfig, sender OTPSender) (*Server, error) {
	log := logging.Component("devserver")

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate jwt secret: %w", err)
		}
		log.Warn("No JWT secret configured, using a random one")
	}
	if sender == nil {
		sender = LogSender{Log: log}
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 0.4
	}

	s := &Server{
		cfg:    cfg,
		users:  NewUsers(),
		otps:   NewOTPs(cfg.OTPTTL),
		tokens: NewIssuer(secret, cfg.TokenTTL),
		sender: sender,
		log:    log,
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(metricsMiddleware)

	r.Route(authapi.BasePath, func(r chi.Router) {
		r.Post("/"+authapi.EndpointRegister, s.handleRegister)
		r.Post("/"+authapi.EndpointLogin, s.handleLogin)
		r.Post("/"+authapi.EndpointFaceLogin, s.handleFaceLogin)
		r.Post("/"+authapi.EndpointSendOTP, s.handleSendOTP)
		r.Post("/"+authapi.EndpointVerifyOTP, s.handleVerifyOTP)
		r.Post("/"+authapi.EndpointResetPassword, s.handleResetPassword)
	})
	r.Get("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}).ServeHTTP)

	return r
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Users returns the account table.
func (s *Server) Users() *Users {
	return s.users
}

// Tokens returns the token issuer.
func (s *Server) Tokens() *Issuer {
	return s.tokens
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("Starting development auth server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down development auth server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware counts requests by chi route pattern and status.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				path = p
			}
		}
		metrics.DevServerRequests.WithLabelValues(path, metrics.StatusLabel(sr.status)).Inc()
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, authapi.ErrorBody{Error: msg})
}
