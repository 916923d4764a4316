package meter

import (
	"context"
	"sync"

	internal_errors "github.com/bricks-cloud/bricksmeter/internal/errors"
)

var (
	registryMu    sync.Mutex
	defaultClient *Client
)

// Init creates the process-wide client returned by Default. It fails if one
// is already registered; call Close first to replace it.
func Init(cfg *Config, opts ...Option) (*Client, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if defaultClient != nil {
		return nil, internal_errors.NewConfigurationError("is already initialized", "default client")
	}

	c, err := NewClient(cfg, opts...)
	if err != nil {
		return nil, err
	}

	defaultClient = c
	return c, nil
}

// Default returns the client registered by Init, or nil.
func Default() *Client {
	registryMu.Lock()
	defer registryMu.Unlock()

	return defaultClient
}

// Close shuts down and unregisters the process-wide client.
func Close(ctx context.Context) error {
	registryMu.Lock()
	c := defaultClient
	defaultClient = nil
	registryMu.Unlock()

	if c == nil {
		return nil
	}

	return c.Shutdown(ctx)
}
