package engine

import (
	"context"
	"math/rand"
)

// ResourceUsage — показатели нагрузки агента в процентах.
type ResourceUsage struct {
	CPU    float64
	Memory float64
}

// ResourceSampler — источник телеметрии для health-монитора.
// Сейчас используется синтетика; реальный сборщик подключается без изменений в агенте.
type ResourceSampler interface {
	Sample(ctx context.Context) (ResourceUsage, error)
}

// SamplerFunc позволяет передать обычную функцию как ResourceSampler.
type SamplerFunc func(ctx context.Context) (ResourceUsage, error)

func (f SamplerFunc) Sample(ctx context.Context) (ResourceUsage, error) {
	return f(ctx)
}

// SyntheticSampler — заглушка: равномерное распределение CPU [10,80] и памяти [30,90].
type SyntheticSampler struct{}

func (SyntheticSampler) Sample(_ context.Context) (ResourceUsage, error) {
	return ResourceUsage{
		CPU:    uniform(10, 80),
		Memory: uniform(30, 90),
	}, nil
}

func uniform(lo, hi float64) float64 {
	return lo + rand.Float64()*(hi-lo)
}
