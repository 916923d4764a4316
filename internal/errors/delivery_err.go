package errors

import "fmt"

// DeliveryError is the terminal outcome of a batch that could not be delivered.
// The batch has been dropped by the time it is reported.
type DeliveryError struct {
	batchId   string
	batchSize int
	attempts  int
	err       error
}

func NewDeliveryError(batchId string, batchSize, attempts int, err error) *DeliveryError {
	return &DeliveryError{
		batchId:   batchId,
		batchSize: batchSize,
		attempts:  attempts,
		err:       err,
	}
}

func (de *DeliveryError) Error() string {
	return fmt.Sprintf("batch %s with %d events dropped after %d attempt(s): %v", de.batchId, de.batchSize, de.attempts, de.err)
}

func (de *DeliveryError) BatchId() string {
	return de.batchId
}

func (de *DeliveryError) BatchSize() int {
	return de.batchSize
}

func (de *DeliveryError) Attempts() int {
	return de.attempts
}

func (de *DeliveryError) Unwrap() error {
	return de.err
}

func (de *DeliveryError) Delivery() {}
