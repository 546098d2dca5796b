package cache

import (
	"context"

	"github.com/johnrirwin/skinlens/internal/logging"
)

const healthKey = "inference:health"

// Prober checks whether the upstream service is alive.
type Prober interface {
	Health(ctx context.Context) error
}

// HealthStatus caches the outcome of the upstream liveness probe.
type HealthStatus struct {
	cache  Cache
	prober Prober
	logger *logging.Logger
}

// NewHealthStatus creates a cached view over prober.
func NewHealthStatus(c Cache, prober Prober, logger *logging.Logger) *HealthStatus {
	return &HealthStatus{
		cache:  c,
		prober: prober,
		logger: logger,
	}
}

// Reachable returns the cached outcome, probing the service when nothing is cached.
func (h *HealthStatus) Reachable(ctx context.Context) bool {
	if v, ok := h.cache.Get(healthKey); ok {
		if reachable, ok := v.(bool); ok {
			return reachable
		}
	}

	err := h.prober.Health(ctx)
	if err != nil {
		h.logger.Warn("Inference service health probe failed", logging.WithField("error", err.Error()))
	}
	h.Record(err == nil)
	return err == nil
}

// Record stores a probe outcome observed elsewhere, such as a session's own health check.
func (h *HealthStatus) Record(reachable bool) {
	h.cache.Set(healthKey, reachable)
}

// Invalidate drops the cached outcome so the next call probes again.
func (h *HealthStatus) Invalidate() {
	h.cache.Delete(healthKey)
}
