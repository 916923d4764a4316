package errors

import "fmt"

type PermanentError struct {
	statusCode int
	body       string
}

func NewPermanentError(statusCode int, body string) *PermanentError {
	return &PermanentError{
		statusCode: statusCode,
		body:       body,
	}
}

func (pe *PermanentError) Error() string {
	return fmt.Sprintf("collector rejected batch with status %d: %s", pe.statusCode, pe.body)
}

func (pe *PermanentError) StatusCode() int {
	return pe.statusCode
}

func (pe *PermanentError) Body() string {
	return pe.body
}

func (pe *PermanentError) Permanent() {}
