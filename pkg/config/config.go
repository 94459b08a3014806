// Package config provides configuration management for faceauth.
// It loads YAML or TOML files with sensible defaults and applies
// environment overrides (optionally sourced from a .env file).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds all faceauth configuration.
type Config struct {
	API      APIConfig      `yaml:"api" toml:"api"`
	Camera   CameraConfig   `yaml:"camera" toml:"camera"`
	Detector DetectorConfig `yaml:"detector" toml:"detector"`
	Session  SessionConfig  `yaml:"session" toml:"session"`
	Flow     FlowConfig     `yaml:"flow" toml:"flow"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
	Dev      DevConfig      `yaml:"devserver" toml:"devserver"`
}

// APIConfig points at the authentication backend.
type APIConfig struct {
	BaseURL string        `yaml:"base_url" toml:"base_url"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

// CameraConfig holds camera settings.
type CameraConfig struct {
	Device            string        `yaml:"device" toml:"device"`
	Width             int           `yaml:"width" toml:"width"`
	Height            int           `yaml:"height" toml:"height"`
	FPS               int           `yaml:"fps" toml:"fps"`
	FFmpegPath        string        `yaml:"ffmpeg_path" toml:"ffmpeg_path"`
	FirstFrameTimeout time.Duration `yaml:"first_frame_timeout" toml:"first_frame_timeout"`
}

// DetectorConfig holds face detection settings.
type DetectorConfig struct {
	ModelPath       string `yaml:"model_path" toml:"model_path"`
	Locator         string `yaml:"locator" toml:"locator"`                     // "hog" or "cnn"
	MultiFacePolicy string `yaml:"multi_face_policy" toml:"multi_face_policy"` // "largest" or "reject"
	PreviewWidth    int    `yaml:"preview_width" toml:"preview_width"`
	PreviewHeight   int    `yaml:"preview_height" toml:"preview_height"`
}

// SessionConfig selects where the login session record is kept.
type SessionConfig struct {
	Backend           string      `yaml:"backend" toml:"backend"` // "memory", "file" or "redis"
	Path              string      `yaml:"path" toml:"path"`
	EncryptionEnabled bool        `yaml:"encryption_enabled" toml:"encryption_enabled"`
	Redis             RedisConfig `yaml:"redis" toml:"redis"`
}

// RedisConfig holds redis connection settings for the redis session backend.
type RedisConfig struct {
	Addr      string        `yaml:"addr" toml:"addr"`
	Password  string        `yaml:"password" toml:"password"`
	DB        int           `yaml:"db" toml:"db"`
	Namespace string        `yaml:"namespace" toml:"namespace"`
	TTL       time.Duration `yaml:"ttl" toml:"ttl"`
}

// FlowConfig holds navigation targets and timing of the user flows.
type FlowConfig struct {
	RedirectDelay time.Duration `yaml:"redirect_delay" toml:"redirect_delay"`
	LoginRoute    string        `yaml:"login_route" toml:"login_route"`
	SigninRoute   string        `yaml:"signin_route" toml:"signin_route"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	File   string `yaml:"file" toml:"file"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" toml:"textfile"`
}

// DevConfig holds settings of the development auth server.
type DevConfig struct {
	Addr        string        `yaml:"addr" toml:"addr"`
	JWTSecret   string        `yaml:"jwt_secret" toml:"jwt_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl" toml:"token_ttl"`
	OTPTTL      time.Duration `yaml:"otp_ttl" toml:"otp_ttl"`
	Tolerance   float64       `yaml:"tolerance" toml:"tolerance"`
	CORSOrigins []string      `yaml:"cors_origins" toml:"cors_origins"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:5000",
			Timeout: 30 * time.Second,
		},
		Camera: CameraConfig{
			Device:            "/dev/video0",
			Width:             640,
			Height:            480,
			FPS:               30,
			FFmpegPath:        "ffmpeg",
			FirstFrameTimeout: 5 * time.Second,
		},
		Detector: DetectorConfig{
			ModelPath:       filepath.Join(homeDir, ".local/share/faceauth/models"),
			Locator:         "hog",
			MultiFacePolicy: "largest",
			PreviewWidth:    320,
			PreviewHeight:   240,
		},
		Session: SessionConfig{
			Backend:           "file",
			Path:              filepath.Join(homeDir, ".local/share/faceauth/session.enc"),
			EncryptionEnabled: true,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				Namespace: "faceauth",
				TTL:       24 * time.Hour,
			},
		},
		Flow: FlowConfig{
			RedirectDelay: 2 * time.Second,
			LoginRoute:    "/dashboard",
			SigninRoute:   "/",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Dev: DevConfig{
			Addr:        "127.0.0.1:5000",
			TokenTTL:    time.Hour,
			OTPTTL:      10 * time.Minute,
			Tolerance:   0.4,
			CORSOrigins: []string{"http://localhost:5173"},
		},
	}
}

// Load loads configuration from the specified file.
// The decoder is chosen by extension: .yaml/.yml or .toml.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", "":
		err = yaml.Unmarshal(data, config)
	case ".toml":
		err = toml.Unmarshal(data, config)
	default:
		return config, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return config, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return config, nil
}

// LoadDefault tries to load configuration from default locations.
func LoadDefault() (*Config, error) {
	candidates := []string{"/etc/faceauth/faceauth.yaml"}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(homeDir, ".config/faceauth/faceauth.yaml"),
			filepath.Join(homeDir, ".config/faceauth/faceauth.toml"),
		)
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return DefaultConfig(), nil
}

// LoadEnv reads KEY=VALUE pairs from the given .env files into the process
// environment. Missing files are ignored.
func LoadEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("FACEAUTH_API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	} else if v := os.Getenv("VITE_API_BASE_URI"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("FACEAUTH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FACEAUTH_CAMERA_DEVICE"); v != "" {
		c.Camera.Device = v
	}
	if v := os.Getenv("FACEAUTH_REDIS_PASSWORD"); v != "" {
		c.Session.Redis.Password = v
	}
	if v := os.Getenv("FACEAUTH_DEV_JWT_SECRET"); v != "" {
		c.Dev.JWTSecret = v
	}
}

// ExpandPath expands ~ and environment variables in a path.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// ExpandPaths expands all paths in the configuration.
func (c *Config) ExpandPaths() {
	c.Camera.Device = ExpandPath(c.Camera.Device)
	c.Detector.ModelPath = ExpandPath(c.Detector.ModelPath)
	c.Session.Path = ExpandPath(c.Session.Path)
	c.Logging.File = ExpandPath(c.Logging.File)
	c.Metrics.Textfile = ExpandPath(c.Metrics.Textfile)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("api.base_url must not be empty")
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative, got %s", c.API.Timeout)
	}

	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("invalid camera resolution: %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("invalid camera FPS: %d", c.Camera.FPS)
	}

	switch c.Detector.Locator {
	case "hog", "cnn":
	default:
		return fmt.Errorf("invalid locator: %s (must be hog or cnn)", c.Detector.Locator)
	}
	switch c.Detector.MultiFacePolicy {
	case "largest", "reject":
	default:
		return fmt.Errorf("invalid multi_face_policy: %s (must be largest or reject)", c.Detector.MultiFacePolicy)
	}
	if c.Detector.PreviewWidth <= 0 || c.Detector.PreviewHeight <= 0 {
		return fmt.Errorf("invalid preview size: %dx%d", c.Detector.PreviewWidth, c.Detector.PreviewHeight)
	}

	switch c.Session.Backend {
	case "memory":
	case "file":
		if c.Session.Path == "" {
			return fmt.Errorf("session.path is required for the file backend")
		}
	case "redis":
		if c.Session.Redis.Addr == "" {
			return fmt.Errorf("session.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid session backend: %s (must be memory, file, or redis)", c.Session.Backend)
	}

	if c.Flow.RedirectDelay < 0 {
		return fmt.Errorf("flow.redirect_delay must not be negative, got %s", c.Flow.RedirectDelay)
	}

	if c.Dev.Tolerance <= 0 {
		return fmt.Errorf("devserver.tolerance must be positive, got %v", c.Dev.Tolerance)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if c.Logging.Format != "" && c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// EnsureDirectories creates directories needed by models, sessions and logs.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Detector.ModelPath, 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}
	if c.Session.Backend == "file" {
		if err := os.MkdirAll(filepath.Dir(c.Session.Path), 0700); err != nil {
			return fmt.Errorf("failed to create session directory: %w", err)
		}
	}
	if c.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.Logging.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	return nil
}
