package prediction

import (
	"errors"
	"fmt"
)

// Kind classifies why a prediction did not produce a usable result.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindUnreachable       Kind = "unreachable"
	KindServiceError      Kind = "service_error"
	KindMalformedResponse Kind = "malformed_response"
)

// Error is returned by Client implementations. Status is only set for
// KindServiceError and Timeout only for KindUnreachable.
type Error struct {
	Kind    Kind
	Status  int
	Timeout bool
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindServiceError:
		return fmt.Sprintf("prediction service returned status %d", e.Status)
	case KindUnreachable:
		return fmt.Sprintf("prediction service unreachable: %v", e.Err)
	case KindMalformedResponse:
		return fmt.Sprintf("malformed prediction response: %v", e.Err)
	default:
		return fmt.Sprintf("invalid prediction request: %v", e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message is the user-facing text for a failed prediction.
func (e *Error) Message() string {
	switch e.Kind {
	case KindServiceError:
		return fmt.Sprintf("Prediction failed: service responded with status %d", e.Status)
	case KindUnreachable:
		if e.Timeout {
			return "Prediction failed: prediction service timed out"
		}
		return "Prediction failed: prediction service is unreachable"
	case KindMalformedResponse:
		return "Prediction failed: prediction service returned an invalid response"
	default:
		if e.Err != nil {
			return e.Err.Error()
		}
		return "Prediction request is invalid"
	}
}

// AsError extracts a *Error from err, wrapping foreign errors as unreachable.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var predErr *Error
	if errors.As(err, &predErr) {
		return predErr
	}
	return &Error{Kind: KindUnreachable, Err: err}
}
