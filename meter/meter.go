// Package meter records LLM token usage in the calling process and ships it
// to a collector in batches, off the caller's critical path.
package meter

import (
	"time"

	"github.com/bricks-cloud/bricksmeter/internal/config"
	internal_errors "github.com/bricks-cloud/bricksmeter/internal/errors"
	"github.com/bricks-cloud/bricksmeter/internal/event"
)

const Version = "0.1.0"

type (
	Event         = event.Event
	HostMetadata  = event.HostMetadata
	K8sMetadata   = event.K8sMetadata
	Provider      = event.Provider
	CloudProvider = event.CloudProvider
	Config        = config.Config
)

const (
	BedrockProvider     = event.BedrockProvider
	AzureOpenAiProvider = event.AzureOpenAiProvider
	GeminiProvider      = event.GeminiProvider
)

func DefaultConfig() *Config {
	return config.DefaultConfig()
}

// LoadConfig reads defaults, the optional file at path and BRICKSMETER_*
// environment variables.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// Latency converts d into the millisecond value carried by an Event.
func Latency(d time.Duration) *int {
	return event.Latency(d)
}

func IsTransient(err error) bool {
	return internal_errors.IsTransient(err)
}

func IsPermanent(err error) bool {
	return internal_errors.IsPermanent(err)
}

func IsOverflow(err error) bool {
	return internal_errors.IsOverflow(err)
}

func IsStopped(err error) bool {
	return internal_errors.IsStopped(err)
}

func IsConfiguration(err error) bool {
	return internal_errors.IsConfiguration(err)
}

func IsValidation(err error) bool {
	return internal_errors.IsValidation(err)
}

func IsDelivery(err error) bool {
	return internal_errors.IsDelivery(err)
}
