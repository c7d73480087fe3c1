package gpu

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/pulsemon/internal/cache"
)

// staticTTL covers device identity facts that cannot change while the
// process is running.
const staticTTL = 24 * time.Hour

// backend is one way of querying the devices. Implementations must be safe
// to call from the collector's worker pool.
type backend interface {
	label() string
	sample(ctx context.Context) ([]Sample, error)
	close()
}

// Provider exposes a single Sample operation over whichever backend is
// currently selected. The native NVML binding is preferred; a failure
// permanently demotes the provider to the nvidia-smi subprocess backend.
type Provider struct {
	cache *cache.Cache

	mu       sync.Mutex
	backend  backend
	fallback backend
}

// New probes the available backends and returns a Provider stuck on the
// best one that works. It never fails: with no GPU at all, Sample reports
// ErrUnavailable.
func New(c *cache.Cache) *Provider {
	p := &Provider{cache: c}

	if nv, err := newNVMLBackend(c); err == nil {
		p.backend = nv
		p.fallback = newSMIBackend(c)
		log.Printf("[gpu] using NVML binding")
		return p
	} else {
		log.Printf("[gpu] NVML unavailable: %v", err)
	}

	if smi := newSMIBackend(c); smi.available() {
		p.backend = smi
		log.Printf("[gpu] using nvidia-smi fallback")
	} else {
		log.Printf("[gpu] no GPU backend detected")
	}
	return p
}

// newWithBackends wires explicit backends; used by tests.
func newWithBackends(c *cache.Cache, primary, fallback backend) *Provider {
	return &Provider{cache: c, backend: primary, fallback: fallback}
}

// Sample queries every device once. A genuine backend fault switches the
// provider to its fallback (sticky) and retries once within the same call;
// timeouts and parse failures are per-tick conditions that yield cached
// placeholders and keep the backend for the next sample. GPU absence is
// reported as ErrUnavailable, never as a panic or a hang: the caller's
// context bounds the whole operation.
func (p *Provider) Sample(ctx context.Context) ([]Sample, error) {
	for {
		p.mu.Lock()
		b := p.backend
		p.mu.Unlock()

		if b == nil {
			return nil, ErrUnavailable
		}

		samples, err := b.sample(ctx)
		if err == nil {
			return samples, nil
		}
		if transientSampleError(ctx, err) {
			log.Printf("[gpu] backend %s: transient failure, will retry next tick: %v", b.label(), err)
			return p.placeholders(), nil
		}

		log.Printf("[gpu] backend %s failed, demoting: %v", b.label(), err)
		p.mu.Lock()
		if p.backend == b { // another goroutine may already have demoted
			p.backend.close()
			p.backend = p.fallback
			p.fallback = nil
		}
		p.mu.Unlock()
	}
}

// transientSampleError reports whether a sample failure is a per-tick
// condition (caller timeout, backend-side timeout, unparseable output)
// rather than a permanent backend fault.
func transientSampleError(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, errParse)
}

// Available reports whether any backend is selected.
func (p *Provider) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backend != nil
}

// Names returns the cached device identities, if any have been observed.
func (p *Provider) Names() []string {
	names, err := cache.Value(p.cache, "gpu/names", staticTTL, func() ([]string, error) {
		return nil, ErrUnavailable
	})
	if err != nil {
		return nil
	}
	return names
}

// placeholders builds per-device unavailable samples from cached identities
// so one slow tick does not blank the device list.
func (p *Provider) placeholders() []Sample {
	names := p.Names()
	samples := make([]Sample, len(names))
	for i, n := range names {
		samples[i] = Sample{Index: i, Name: n, Status: StatusUnavailable}
	}
	return samples
}

// Close releases backend resources.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backend != nil {
		p.backend.close()
		p.backend = nil
	}
	if p.fallback != nil {
		p.fallback.close()
		p.fallback = nil
	}
}

// rememberNames stores device identities for placeholder construction.
func rememberNames(c *cache.Cache, samples []Sample) {
	if len(samples) == 0 {
		return
	}
	names := make([]string, len(samples))
	for i, s := range samples {
		names[i] = s.Name
	}
	c.Invalidate("gpu/names")
	_, _ = cache.Value(c, "gpu/names", staticTTL, func() ([]string, error) {
		return names, nil
	})
}
