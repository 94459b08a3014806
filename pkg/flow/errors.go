package flow

import (
	"context"
	"errors"

	"github.com/MrCodeEU/faceauth/pkg/authapi"
	"github.com/MrCodeEU/faceauth/pkg/camera"
	"github.com/MrCodeEU/faceauth/pkg/capture"
)

// ErrorCode identifies the kind of a flow failure.
type ErrorCode string

const (
	ErrCodePermissionDenied  ErrorCode = "PERMISSION_DENIED"
	ErrCodeDeviceUnavailable ErrorCode = "DEVICE_UNAVAILABLE"
	ErrCodeModelLoad         ErrorCode = "MODEL_LOAD_FAILED"
	ErrCodeNoFace            ErrorCode = "NO_FACE"
	ErrCodeServer            ErrorCode = "SERVER_ERROR"
	ErrCodeValidation        ErrorCode = "VALIDATION"
	ErrCodeBusy              ErrorCode = "BUSY"
	ErrCodeWrongStep         ErrorCode = "WRONG_STEP"
)

// FlowError is the error every flow operation returns. Message is the text
// shown to the user.
type FlowError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *FlowError) Error() string {
	return e.Message
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// ErrClosed is wrapped by operations on a closed flow.
var ErrClosed = errors.New("flow closed")

// User-friendly error messages
var errorMessages = map[ErrorCode]string{
	ErrCodePermissionDenied:  "Camera access was denied. Allow camera access and try again.",
	ErrCodeDeviceUnavailable: "No camera available. Check your camera connection.",
	ErrCodeModelLoad:         "Failed to load face detection models.",
	ErrCodeNoFace:            "No face detected. Try again.",
	ErrCodeServer:            "Request failed. Please try again.",
	ErrCodeValidation:        "Please fill in all required fields.",
	ErrCodeBusy:              "Please wait for the current request to finish.",
	ErrCodeWrongStep:         "This action is not available right now.",
}

// GetErrorMessage returns a user-friendly message for an error code.
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return "An unknown error occurred"
}

// NewFlowError creates a FlowError with the default message for the code.
func NewFlowError(code ErrorCode, err error) *FlowError {
	return &FlowError{
		Code:    code,
		Message: GetErrorMessage(code),
		Err:     err,
	}
}

// CodeOf returns the code of the FlowError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

func validationError(message string) *FlowError {
	return &FlowError{Code: ErrCodeValidation, Message: message}
}

func wrongStep(err error) *FlowError {
	return NewFlowError(ErrCodeWrongStep, err)
}

// serverError uses the server-provided message when there is one and the
// operation's fallback text otherwise.
func serverError(err error, fallback string) *FlowError {
	msg := authapi.ServerMessage(err)
	if msg == "" {
		msg = fallback
	}
	return &FlowError{Code: ErrCodeServer, Message: msg, Err: err}
}

// cameraError maps camera acquisition failures. The message is prefixed the
// way the capture surface reports camera problems.
func cameraError(err error) *FlowError {
	code := ErrCodeDeviceUnavailable
	if errors.Is(err, camera.ErrPermissionDenied) {
		code = ErrCodePermissionDenied
	}
	return &FlowError{
		Code:    code,
		Message: "Camera error: " + GetErrorMessage(code),
		Err:     err,
	}
}

// captureError maps failures of a capture attempt that are not NotDetected.
func captureError(err error) *FlowError {
	switch {
	case errors.Is(err, capture.ErrNotReady):
		return NewFlowError(ErrCodeModelLoad, err)
	case errors.Is(err, capture.ErrInFlight):
		return NewFlowError(ErrCodeBusy, err)
	case errors.Is(err, context.Canceled):
		return wrongStep(err)
	default:
		return cameraError(err)
	}
}
