package errors

import (
	"fmt"
	"strings"
)

// ConfigurationError is returned when a client is constructed with invalid settings.
type ConfigurationError struct {
	fields []string
	reason string
}

func NewConfigurationError(reason string, fields ...string) *ConfigurationError {
	return &ConfigurationError{
		fields: fields,
		reason: reason,
	}
}

func (ce *ConfigurationError) Error() string {
	if len(ce.fields) == 0 {
		return fmt.Sprintf("invalid configuration: %s", ce.reason)
	}

	return fmt.Sprintf("invalid configuration: fields [%s] %s", strings.Join(ce.fields, ", "), ce.reason)
}

func (ce *ConfigurationError) Fields() []string {
	return ce.fields
}

func (ce *ConfigurationError) Configuration() {}
