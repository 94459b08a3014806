// Package authapi is a JSON client for the /api/auth endpoints.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/MrCodeEU/faceauth/pkg/config"
	"github.com/MrCodeEU/faceauth/pkg/logging"
	"github.com/MrCodeEU/faceauth/pkg/metrics"
)

// BasePath is the path prefix of every auth endpoint.
const BasePath = "/api/auth"

// Endpoint names.
const (
	EndpointLogin         = "login"
	EndpointFaceLogin     = "face-login"
	EndpointRegister      = "register"
	EndpointSendOTP       = "send-otp"
	EndpointVerifyOTP     = "verify-otp"
	EndpointResetPassword = "reset-password"
)

// Credentials is the body of a password login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// FaceLoginRequest is the body of a face login.
type FaceLoginRequest struct {
	Descriptor []float64 `json:"descriptor"`
}

// Registration is the body of a sign-up.
type Registration struct {
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Password    string      `json:"password"`
	Descriptors [][]float64 `json:"descriptors"`
}

// OTPRequest asks the server to send an OTP.
type OTPRequest struct {
	Email string `json:"email"`
}

// OTPVerification checks an OTP.
type OTPVerification struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// PasswordReset sets a new password, proven by the OTP.
type PasswordReset struct {
	Email       string `json:"email"`
	NewPassword string `json:"newPassword"`
	OTP         string `json:"otp"`
}

// LoginResponse is returned by both login endpoints.
type LoginResponse struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

// ErrorBody is the JSON error shape returned by the server.
type ErrorBody struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// APIError is returned for any non-2xx response.
type APIError struct {
	Endpoint   string
	StatusCode int
	// Message is the server-provided error text, empty when none was sent.
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s failed with status %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed with status %d", e.Endpoint, e.StatusCode)
}

// ServerMessage returns the server-provided message of an APIError in err's
// chain, or "" when there is none.
func ServerMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// Client talks to the auth API.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logrus.Entry
}

// NewClient creates a client for the given base URL. A zero timeout means no timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     logging.Component("authapi"),
	}
}

// NewClientFromConfig creates a client from API configuration.
func NewClientFromConfig(cfg config.APIConfig) *Client {
	return NewClient(cfg.BaseURL, cfg.Timeout)
}

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResponse, error) {
	return doPostJSON[LoginResponse](ctx, c, EndpointLogin, creds)
}

// FaceLogin authenticates with a single face descriptor; matching happens server side.
func (c *Client) FaceLogin(ctx context.Context, descriptor []float64) (*LoginResponse, error) {
	return doPostJSON[LoginResponse](ctx, c, EndpointFaceLogin, FaceLoginRequest{Descriptor: descriptor})
}

// Register creates an account with its enrolled descriptors.
func (c *Client) Register(ctx context.Context, reg Registration) error {
	return doPostRaw(ctx, c, EndpointRegister, reg)
}

// SendOTP asks the server to email an OTP.
func (c *Client) SendOTP(ctx context.Context, email string) error {
	return doPostRaw(ctx, c, EndpointSendOTP, OTPRequest{Email: email})
}

// VerifyOTP checks an OTP for the email.
func (c *Client) VerifyOTP(ctx context.Context, email, otp string) error {
	return doPostRaw(ctx, c, EndpointVerifyOTP, OTPVerification{Email: email, OTP: otp})
}

// ResetPassword sets a new password. The OTP is sent again as proof.
func (c *Client) ResetPassword(ctx context.Context, email, otp, newPassword string) error {
	return doPostRaw(ctx, c, EndpointResetPassword, PasswordReset{Email: email, NewPassword: newPassword, OTP: otp})
}

func (c *Client) resolveURL(endpoint string) string {
	return c.baseURL + BasePath + "/" + endpoint
}

// doPostJSON performs a POST with a JSON body and unmarshals the JSON response.
func doPostJSON[T any](ctx context.Context, c *Client, endpoint string, requestBody any) (*T, error) {
	body, err := c.do(ctx, http.MethodPost, endpoint, requestBody)
	if err != nil {
		return nil, err
	}

	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("could not unmarshal %s response: %w", endpoint, err)
	}
	return &result, nil
}

// doPostRaw performs a POST and only checks the status.
func doPostRaw(ctx context.Context, c *Client, endpoint string, requestBody any) error {
	_, err := c.do(ctx, http.MethodPost, endpoint, requestBody)
	return err
}

func (c *Client) do(ctx context.Context, method, endpoint string, requestBody any) (body []byte, err error) {
	requestID := uuid.NewString()
	start := time.Now()
	defer func() {
		metrics.APIRequests.WithLabelValues(endpoint, metrics.Outcome(err)).Inc()
		c.log.WithFields(logrus.Fields{
			"endpoint":   endpoint,
			"request_id": requestID,
			"duration":   time.Since(start).Round(time.Millisecond),
		}).Debug("Auth API request finished")
	}()

	var bodyReader io.Reader
	if requestBody != nil {
		jsonBody, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("could not marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolveURL(endpoint), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not send %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("could not read %s response: %w", endpoint, err)
	}

	if !isSuccess(resp.StatusCode) {
		return nil, &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// errorMessage extracts the "error" (or "message") field of an error body.
func errorMessage(body []byte) string {
	var eb ErrorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if eb.Error != "" {
		return eb.Error
	}
	return eb.Message
}
