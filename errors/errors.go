package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	// Connection and session
	ErrAuthentication   = fmt.Errorf("authentication error")
	ErrConnectionClosed = fmt.Errorf("connection closed")
	ErrSessionClosed    = fmt.Errorf("session closed")
	ErrDeliveryTimeout  = fmt.Errorf("delivery timeout")
	ErrInvalidEvent     = fmt.Errorf("invalid event")

	// Messaging
	ErrInvalidMessage  = fmt.Errorf("invalid message")
	ErrPersistence     = fmt.Errorf("persistence error")
	ErrMessageNotFound = fmt.Errorf("message not found")
	ErrNotAuthorized   = fmt.Errorf("not authorized")

	// Accounts
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("invalid password")
	ErrInvalidRequest     = fmt.Errorf("invalid request")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
)

// Is and As forward to the standard library so callers importing this
// package do not need to alias it.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }
