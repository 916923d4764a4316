package errors

import "fmt"

// TransientError marks a delivery attempt that may succeed if retried:
// network failures, timeouts, 5xx and 429 responses.
type TransientError struct {
	statusCode int
	err        error
}

func NewTransientError(statusCode int, err error) *TransientError {
	return &TransientError{
		statusCode: statusCode,
		err:        err,
	}
}

func (te *TransientError) Error() string {
	if te.statusCode == 0 {
		return fmt.Sprintf("transient delivery failure: %v", te.err)
	}

	return fmt.Sprintf("transient delivery failure (status %d): %v", te.statusCode, te.err)
}

// StatusCode is zero when no response was received.
func (te *TransientError) StatusCode() int {
	return te.statusCode
}

func (te *TransientError) Unwrap() error {
	return te.err
}

func (te *TransientError) Transient() {}
