package gpu

import (
	"context"
	"math/rand"

	"github.com/google/pulsemon/internal/cache"
)

// mockBackend produces synthetic readings for demos and tests.
type mockBackend struct {
	cache *cache.Cache
	name  string
	total uint64
}

// NewMock returns a provider backed by a single simulated device.
func NewMock(c *cache.Cache) *Provider {
	b := &mockBackend{
		cache: c,
		name:  "NVIDIA GeForce RTX 4090",
		total: 24 << 30,
	}
	return newWithBackends(c, b, nil)
}

func (b *mockBackend) label() string { return "mock" }

func (b *mockBackend) sample(ctx context.Context) ([]Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	samples := []Sample{{
		Index:       0,
		Name:        b.name,
		Utilization: 50 + rand.Float64()*30,
		MemoryUsed:  uint64(6+rand.Intn(4)) << 30,
		MemoryTotal: b.total,
		Temperature: 60 + rand.Float64()*10,
		ClockMHz:    2200 + rand.Float64()*400,
		Status:      StatusOK,
	}}
	rememberNames(b.cache, samples)
	return samples, nil
}

func (b *mockBackend) close() {}
