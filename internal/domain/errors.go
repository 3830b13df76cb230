package domain

import "errors"

var (
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	ErrInvalidDescriptor    = errors.New("invalid conversation descriptor")
	ErrInvalidMessage       = errors.New("invalid message")
	ErrNotInRoom            = errors.New("not in room")
	ErrNotFound             = errors.New("not found")
	ErrPersistenceFailure   = errors.New("persistence failure")
	ErrAuthorizationDenied  = errors.New("authorization denied")
	ErrConnectionClosed     = errors.New("connection closed")
)

// ErrorCode maps an error to the code reported to clients.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return ErrCodeUnauthenticated
	case errors.Is(err, ErrAlreadyAuthenticated):
		return ErrCodeAlreadyAuthenticated
	case errors.Is(err, ErrInvalidDescriptor):
		return ErrCodeInvalidDescriptor
	case errors.Is(err, ErrInvalidMessage):
		return ErrCodeInvalidMessage
	case errors.Is(err, ErrNotInRoom):
		return ErrCodeNotInRoom
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrPersistenceFailure):
		return ErrCodePersistenceFailure
	case errors.Is(err, ErrAuthorizationDenied):
		return ErrCodeAuthorizationDenied
	case errors.Is(err, ErrConnectionClosed):
		return ErrCodeConnectionClosed
	default:
		return ErrCodeInternalError
	}
}
