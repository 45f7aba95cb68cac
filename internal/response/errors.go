package response

import (
	"errors"
	"net/http"

	"github.com/stemsi/whitelist-backend/internal/apperr"
)

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden       ErrCode = "FORBIDDEN"
	ErrStaffAccessOnly ErrCode = "STAFF_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Quiz session ──────────────────────────────────────────────────
	ErrCaptchaRequired  ErrCode = "CAPTCHA_REQUIRED"
	ErrCaptchaFailed    ErrCode = "CAPTCHA_FAILED"
	ErrCaptchaExpired   ErrCode = "CAPTCHA_EXPIRED"
	ErrQuizClosed       ErrCode = "QUIZ_CLOSED"
	ErrAlreadySubmitted ErrCode = "ALREADY_SUBMITTED"
	ErrSubmissionFailed ErrCode = "SUBMISSION_FAILED"
	ErrSessionBusy      ErrCode = "SESSION_BUSY"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrStaffAccessOnly:
		return "This resource is restricted to staff."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Quiz session ──────────────────────────────────────────────────
	case ErrCaptchaRequired:
		return "Please complete the captcha first."
	case ErrCaptchaFailed:
		return "Captcha verification failed. Please solve it again."
	case ErrCaptchaExpired:
		return "The captcha has expired. Please solve it again."
	case ErrQuizClosed:
		return "This application is currently closed."
	case ErrAlreadySubmitted:
		return "You have already submitted this application."
	case ErrSubmissionFailed:
		return "Your application could not be saved. Please try again."
	case ErrSessionBusy:
		return "A submission is already in progress."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}

// Classify maps an application error to an HTTP status and error code.
// Unclassified errors are internal.
func Classify(err error) (int, ErrCode) {
	switch {
	case errors.Is(err, apperr.ErrCaptchaRequired):
		return http.StatusBadRequest, ErrCaptchaRequired
	case errors.Is(err, apperr.ErrCaptchaFailed):
		return http.StatusBadRequest, ErrCaptchaFailed
	case errors.Is(err, apperr.ErrCaptchaExpired):
		return http.StatusBadRequest, ErrCaptchaExpired
	case errors.Is(err, apperr.ErrSubmitInFlight):
		return http.StatusConflict, ErrSessionBusy
	case errors.Is(err, apperr.ErrQuizClosed):
		return http.StatusForbidden, ErrQuizClosed
	case errors.Is(err, apperr.ErrAlreadySubmitted):
		return http.StatusConflict, ErrAlreadySubmitted
	}

	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest, ErrValidation
	case apperr.KindNotFound:
		return http.StatusNotFound, ErrNotFound
	case apperr.KindConflict:
		return http.StatusConflict, ErrConflict
	case apperr.KindPersistence:
		return http.StatusServiceUnavailable, ErrSubmissionFailed
	default:
		return http.StatusInternalServerError, ErrInternal
	}
}

// Message is the text shown for err. Persistence errors keep the store's
// message; everything else uses the code's message.
func Message(err error, code ErrCode) string {
	if apperr.Is(err, apperr.KindPersistence) && !errors.Is(err, apperr.ErrAlreadySubmitted) {
		return err.Error()
	}
	if code == ErrValidation {
		return err.Error()
	}
	return GetMessage(code)
}
