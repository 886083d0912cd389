package route

import (
	"errors"
	"fmt"
)

// ErrUnroutable matches any Error with ErrCodeUnroutable via errors.Is.
var ErrUnroutable = errors.New("unroutable")

// ErrorCode categorizes routing failures.
type ErrorCode string

const (
	// ErrCodeUnroutable indicates no table entry for (entity, type).
	ErrCodeUnroutable ErrorCode = "UNROUTABLE"

	// ErrCodeMissingParam indicates a path placeholder absent from the payload.
	ErrCodeMissingParam ErrorCode = "MISSING_PARAM"

	// ErrCodeBadPayload indicates the payload is not a JSON object.
	ErrCodeBadPayload ErrorCode = "BAD_PAYLOAD"
)

// Error is a routing failure. Routing failures are deterministic: replaying
// the same action can never succeed.
type Error struct {
	Code   ErrorCode
	Entity Entity
	Type   ActionType
	Param  string
	Detail string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeUnroutable:
		return fmt.Sprintf("unroutable: no route for %s/%s", e.Entity, e.Type)
	case ErrCodeMissingParam:
		return fmt.Sprintf("route %s/%s: payload field %q %s", e.Entity, e.Type, e.Param, e.Detail)
	default:
		return fmt.Sprintf("route %s/%s: bad payload: %s", e.Entity, e.Type, e.Detail)
	}
}

// Is makes every routing Error match ErrUnroutable: none of them can be
// replayed successfully.
func (e *Error) Is(target error) bool {
	return target == ErrUnroutable
}

// IsRouteError returns true if err is a routing failure.
// Uses errors.As to handle wrapped errors.
func IsRouteError(err error) bool {
	var re *Error
	return errors.As(err, &re)
}
