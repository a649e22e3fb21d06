package resource

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/keywatch/keywatch/internal/model"
	"github.com/keywatch/keywatch/internal/store"
)

// Error is a failure that maps directly to an HTTP response.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ValidationError reports a missing or malformed input.
func ValidationError(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: msg}
}

// ConflictError reports a key that already exists.
func ConflictError(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: msg}
}

// NotFoundError reports a delete that matched nothing.
func NotFoundError(msg string) *Error {
	return &Error{Status: http.StatusNotFound, Message: msg}
}

// StoreError wraps a database failure. The underlying message is exposed to
// the client.
func StoreError(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: err.Error(), Err: err}
}

// MethodNotAllowedError reports an unsupported HTTP method.
func MethodNotAllowedError(method string) *Error {
	return &Error{Status: http.StatusMethodNotAllowed, Message: fmt.Sprintf("Method %s Not Allowed", method)}
}

// connectionFailedMessage hides connection details from clients.
const connectionFailedMessage = "Database connection failed"

// translate maps a store error onto the error taxonomy for kind k.
func translate(k model.Kind, err error) *Error {
	var connErr *store.ConnectionError
	switch {
	case errors.Is(err, store.ErrDuplicate):
		return ConflictError(k.DuplicateMessage)
	case errors.Is(err, store.ErrNotFound):
		return NotFoundError(k.NotFoundMessage)
	case errors.As(err, &connErr):
		return &Error{Status: http.StatusInternalServerError, Message: connectionFailedMessage, Err: err}
	default:
		return StoreError(err)
	}
}
