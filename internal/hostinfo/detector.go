package hostinfo

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bricks-cloud/bricksmeter/internal/event"
)

// Probe asks one cloud metadata service who we are. ok is false when the
// service is unreachable or does not answer like the expected provider.
type Probe func(ctx context.Context) (provider event.CloudProvider, instanceId string, ok bool)

type Detector struct {
	probes  []Probe
	timeout time.Duration
	log     *zap.Logger
}

// NewDetector uses DefaultProbes when probes is empty.
func NewDetector(timeout time.Duration, log *zap.Logger, probes ...Probe) *Detector {
	if log == nil {
		log = zap.NewNop()
	}

	if len(probes) == 0 {
		probes = DefaultProbes()
	}

	return &Detector{
		probes:  probes,
		timeout: timeout,
		log:     log,
	}
}

// Detect returns the static record enriched by the first probe that answers
// within the timeout. Explicit overrides in the environment skip probing.
func (d *Detector) Detect(ctx context.Context) event.HostMetadata {
	md := Static(ctx)
	if len(md.CloudProvider) != 0 {
		return md
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	type result struct {
		provider   event.CloudProvider
		instanceId string
		ok         bool
	}

	results := make(chan result, len(d.probes))
	for _, probe := range d.probes {
		go func(p Probe) {
			provider, instanceId, ok := p(ctx)
			results <- result{provider: provider, instanceId: instanceId, ok: ok}
		}(probe)
	}

	for range d.probes {
		select {
		case <-ctx.Done():
			d.log.Debug("cloud metadata probes timed out", zap.Error(ctx.Err()))
			md.CloudProvider = event.UnknownCloud
			return md
		case r := <-results:
			if !r.ok {
				continue
			}

			md.CloudProvider = r.provider
			if len(md.InstanceId) == 0 {
				md.InstanceId = r.instanceId
			}

			d.log.Debug("detected cloud provider", zap.String("provider", string(r.provider)), zap.String("instance_id", md.InstanceId))
			return md
		}
	}

	md.CloudProvider = event.UnknownCloud
	return md
}
