package swap

import (
	"errors"
	"fmt"

	"htlc-relayer/internal/domain"
)

// Coordinator errors. Callers match them with errors.Is.
var (
	// ErrValidation is returned when input is rejected before any write.
	ErrValidation = errors.New("validation error")

	// ErrDuplicateOrder is returned when a swap with the order id exists.
	ErrDuplicateOrder = errors.New("duplicate order")

	// ErrNotFound is returned when no swap matches the order id or id.
	ErrNotFound = errors.New("swap not found")

	// ErrInvalidSecret is returned when hash(secret) != secretHash.
	ErrInvalidSecret = errors.New("invalid secret")

	// ErrIllegalTransition is returned for backward or terminal-violating transitions.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrStore is returned when the store failed; nothing was applied.
	ErrStore = errors.New("store error")
)

// ValidationError describes a rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) true.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	OrderID string
	From    domain.SwapStatus
	To      domain.SwapStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition for order %s: %s -> %s", e.OrderID, e.From, e.To)
}

// Is makes errors.Is(err, ErrIllegalTransition) true.
func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// reason returns a short metric label for err.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrDuplicateOrder):
		return "duplicate"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidSecret):
		return "invalid_secret"
	case errors.Is(err, ErrIllegalTransition):
		return "illegal_transition"
	case errors.Is(err, ErrStore):
		return "store"
	default:
		return "other"
	}
}
