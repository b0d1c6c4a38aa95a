package checkout

import (
	"strings"

	"github.com/go-faster/errors"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("checkout validation failed")
	// ErrInvalidTransition is returned when an action is not allowed in the
	// current state, e.g. Submit after success without Reset.
	ErrInvalidTransition = errors.New("invalid checkout transition")
	// ErrMissingGateway is returned by NewSession without a Gateway.
	ErrMissingGateway = errors.New("checkout: order gateway is required")
	// ErrPromosUnavailable is returned by ApplyPromo when no validator is
	// configured.
	ErrPromosUnavailable = errors.New("checkout: promo validation is not configured")
)

// FieldError is one reportable validation problem.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError is returned synchronously when a submit guard fails. It
// is never produced by the gateway.
type ValidationError struct {
	Problems []FieldError
}

func (e *ValidationError) add(field, message string) {
	e.Problems = append(e.Problems, FieldError{Field: field, Message: message})
}

// Error joins the user-facing messages.
func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Message
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Has reports whether field failed validation.
func (e *ValidationError) Has(field string) bool {
	for _, p := range e.Problems {
		if p.Field == field {
			return true
		}
	}
	return false
}

func (e *ValidationError) empty() bool { return len(e.Problems) == 0 }
