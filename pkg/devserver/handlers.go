package devserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MrCodeEU/faceauth/pkg/authapi"
	"github.com/MrCodeEU/faceauth/pkg/recognition"
)

type messageBody struct {
	Message string `json:"message"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req authapi.Registration
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeJSONError(w, http.StatusBadRequest, "Name, email and password are required")
		return
	}
	if len(req.Descriptors) == 0 {
		writeJSONError(w, http.StatusBadRequest, "At least one face descriptor is required")
		return
	}

	descriptors := make([]recognition.Descriptor, 0, len(req.Descriptors))
	for _, values := range req.Descriptors {
		d, ok := recognition.DescriptorFromFloats(values)
		if !ok {
			writeJSONError(w, http.StatusBadRequest, "Invalid face descriptor")
			return
		}
		descriptors = append(descriptors, d)
	}

	if err := s.users.Add(req.Name, req.Email, req.Password, descriptors); err != nil {
		if errors.Is(err, ErrUserExists) {
			writeJSONError(w, http.StatusConflict, "Email already registered")
			return
		}
		s.log.WithError(err).Error("Failed to register user")
		writeJSONError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	s.log.WithField("descriptors", len(descriptors)).Info("User registered")
	writeJSON(w, http.StatusCreated, messageBody{Message: "User registered"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req authapi.Credentials
	if !decodeJSON(w, r, &req) {
		return
	}
	email, err := s.users.Authenticate(req.Email, req.Password)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	s.issue(w, email, "password")
}

func (s *Server) handleFaceLogin(w http.ResponseWriter, r *http.Request) {
	var req authapi.FaceLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	probe, ok := recognition.DescriptorFromFloats(req.Descriptor)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "Invalid face descriptor")
		return
	}

	email, dist, ok := s.users.Match(probe, s.cfg.Tolerance)
	if !ok {
		s.log.WithField("distance", dist).Debug("Face login rejected")
		writeJSONError(w, http.StatusUnauthorized, "Face not recognized")
		return
	}
	s.log.WithField("distance", dist).Debug("Face login matched")
	s.issue(w, email, "face")
}

func (s *Server) issue(w http.ResponseWriter, email, method string) {
	token, err := s.tokens.Issue(email)
	if err != nil {
		s.log.WithError(err).Error("Failed to sign token")
		writeJSONError(w, http.StatusInternalServerError, "Login failed")
		return
	}
	s.log.WithField("method", method).Info("Login succeeded")
	writeJSON(w, http.StatusOK, authapi.LoginResponse{Email: email, Token: token})
}

func (s *Server) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	var req authapi.OTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeJSONError(w, http.StatusBadRequest, "Email is required")
		return
	}
	if !s.users.Exists(req.Email) {
		writeJSONError(w, http.StatusNotFound, "User not found")
		return
	}

	code, err := s.otps.Issue(req.Email)
	if err != nil {
		s.log.WithError(err).Error("Failed to issue OTP")
		writeJSONError(w, http.StatusInternalServerError, "Failed to send OTP")
		return
	}
	if err := s.sender.SendOTP(r.Context(), req.Email, code); err != nil {
		s.log.WithError(err).Error("Failed to deliver OTP")
		writeJSONError(w, http.StatusBadGateway, "Failed to send OTP")
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "OTP sent"})
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req authapi.OTPVerification
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.otps.Verify(req.Email, strings.TrimSpace(req.OTP)); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid or expired OTP")
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "OTP verified"})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req authapi.PasswordReset
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.NewPassword == "" {
		writeJSONError(w, http.StatusBadRequest, "New password is required")
		return
	}
	if err := s.otps.Consume(req.Email, strings.TrimSpace(req.OTP)); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid or expired OTP")
		return
	}
	if err := s.users.SetPassword(req.Email, req.NewPassword); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeJSONError(w, http.StatusNotFound, "User not found")
			return
		}
		s.log.WithError(err).Error("Failed to reset password")
		writeJSONError(w, http.StatusInternalServerError, "Failed to reset password")
		return
	}
	s.log.Info("Password reset")
	writeJSON(w, http.StatusOK, messageBody{Message: "Password updated"})
}
