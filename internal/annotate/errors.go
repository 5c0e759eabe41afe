package annotate

import (
	"fmt"

	"medthread/internal/util"
)

// ConfigurationError means no item can succeed (missing or rejected
// credentials). The run stops.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("annotation configuration: %v", e.Err)
}
func (e *ConfigurationError) Unwrap() error        { return e.Err }
func (e *ConfigurationError) Is(target error) bool { return target == util.ErrConfiguration }

// TransientAPIError is a retryable failure that outlived the retry budget.
type TransientAPIError struct {
	Attempts   int
	StatusCode int
	Err        error
}

func (e *TransientAPIError) Error() string {
	return fmt.Sprintf("annotation api unavailable after %d attempts: %v", e.Attempts, e.Err)
}
func (e *TransientAPIError) Unwrap() error        { return e.Err }
func (e *TransientAPIError) Is(target error) bool { return target == util.ErrTransientAPI }

// PermanentAPIError is a request the service will never accept as sent.
type PermanentAPIError struct {
	StatusCode int
	Err        error
}

func (e *PermanentAPIError) Error() string {
	return fmt.Sprintf("annotation api rejected request: %v", e.Err)
}
func (e *PermanentAPIError) Unwrap() error        { return e.Err }
func (e *PermanentAPIError) Is(target error) bool { return target == util.ErrPermanentAPI }

// ValidationError means the response held no usable JSON object.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("annotation response invalid: %v", e.Err)
}
func (e *ValidationError) Unwrap() error        { return e.Err }
func (e *ValidationError) Is(target error) bool { return target == util.ErrValidation }

// ErrorKind names the class of err for result rows and metrics.
func ErrorKind(err error) string {
	switch err.(type) {
	case nil:
		return ""
	case *ConfigurationError:
		return "configuration"
	case *TransientAPIError:
		return "transient"
	case *PermanentAPIError:
		return "permanent"
	case *ValidationError:
		return "validation"
	default:
		return "unknown"
	}
}
