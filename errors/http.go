package errors

import "net/http"

// MapToHTTPStatus translates a domain error into the status code and the
// client-facing message returned by the REST API.
// Internal causes are never leaked: unknown errors become a generic 500.
func MapToHTTPStatus(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case Is(err, ErrAuthentication):
		return http.StatusUnauthorized, "Not authorized, token failed"
	case Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case Is(err, ErrInvalidPassword), Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case Is(err, ErrUserAlreadyExists):
		return http.StatusBadRequest, "User already exists"
	case Is(err, ErrInvalidMessage):
		return http.StatusBadRequest, err.Error()
	case Is(err, ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case Is(err, ErrMessageNotFound):
		return http.StatusNotFound, "Message not found"
	case Is(err, ErrNotAuthorized):
		return http.StatusForbidden, "Not authorized"
	case Is(err, ErrPersistence):
		return http.StatusInternalServerError, "Failed to send message"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
