package errors

type StoppedError struct {
	message string
}

func NewStoppedError(msg string) *StoppedError {
	return &StoppedError{
		message: msg,
	}
}

func (se *StoppedError) Error() string {
	return se.message
}

func (se *StoppedError) Stopped() {}
