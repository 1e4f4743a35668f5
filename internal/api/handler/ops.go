// Package handler provides HTTP handlers for the SkyGlance API.
package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/skyglance/skyglance/internal/api/models"
	"github.com/skyglance/skyglance/internal/api/response"
	"github.com/skyglance/skyglance/internal/cache"
	"github.com/skyglance/skyglance/internal/featureflags"
	"github.com/skyglance/skyglance/internal/provider/resilience"
	"github.com/skyglance/skyglance/internal/region"
)

// CacheAdmin exposes cache statistics and invalidation.
type CacheAdmin interface {
	InvalidateCache(ctx context.Context, prefix string) int
	CacheStats() cache.Stats
}

// ProviderHealthSource lists upstream provider health.
type ProviderHealthSource interface {
	GetAllHealth() []*resilience.ProviderHealth
}

// RegionSource reports the current region decision.
type RegionSource interface {
	Status() region.Status
}

// OpsConfig holds dependencies for the ops handler. Nil sources are omitted
// from the status report.
type OpsConfig struct {
	Version   string
	BuildTime string
	Cache     CacheAdmin
	Providers ProviderHealthSource
	Region    RegionSource
	Flags     *featureflags.Service
	Logger    zerolog.Logger
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
	now func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg, now: time.Now}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. The service is not ready when
// every provider circuit is open.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	providers := h.providerStatuses()
	status := overallStatus(providers)

	health := models.Health{
		Status: status,
		Time:   models.Timestamp(h.now()),
		Details: map[string]interface{}{
			"providers": len(providers),
		},
	}

	code := http.StatusOK
	if status == models.HealthStatusFail {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, health)
}

// SystemStatus handles GET /v1/ops/status - providers, cache, region and flags.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	providers := h.providerStatuses()

	status := models.SystemStatus{
		Status:      overallStatus(providers),
		Time:        models.Timestamp(h.now()),
		Providers:   providers,
		ActiveFlags: h.activeFlags(r.Context()),
	}

	if h.cfg.Region != nil {
		rs := h.cfg.Region.Status()
		status.Region.PrimaryReachable = rs.PrimaryReachable
		if !rs.CheckedAt.IsZero() {
			status.Region.CheckedAt = models.TimestampPtr(&rs.CheckedAt)
		}
	}

	if h.cfg.Cache != nil {
		status.Cache = cacheStatus(h.cfg.Cache.CacheStats())
	}

	response.JSON(w, r, http.StatusOK, status)
}

// InvalidateCache handles DELETE /v1/ops/cache?prefix=. An empty prefix
// clears everything.
func (h *OpsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Cache == nil {
		response.ServiceUnavailable(w, r, "cache is not configured")
		return
	}

	prefix := r.URL.Query().Get("prefix")
	removed := h.cfg.Cache.InvalidateCache(r.Context(), prefix)

	h.cfg.Logger.Info().
		Str("prefix", prefix).
		Int("removed", removed).
		Msg("cache invalidated")

	response.JSON(w, r, http.StatusOK, models.CacheInvalidation{Prefix: prefix, Removed: removed})
}

func (h *OpsHandler) providerStatuses() []models.ProviderStatus {
	if h.cfg.Providers == nil {
		return []models.ProviderStatus{}
	}

	all := h.cfg.Providers.GetAllHealth()
	statuses := make([]models.ProviderStatus, 0, len(all))
	for _, ph := range all {
		ps := models.ProviderStatus{
			Provider:            ph.Name,
			Status:              models.HealthStatusOK,
			CircuitState:        ph.CircuitState.String(),
			Requests:            ph.Counts.Requests,
			ConsecutiveFailures: ph.Counts.ConsecutiveFailures,
			LastSuccessAt:       models.TimestampPtr(ph.LastSuccessAt),
			LastFailureAt:       models.TimestampPtr(ph.LastFailureAt),
		}
		switch {
		case ph.IsUnhealthy():
			ps.Status = models.HealthStatusFail
		case ph.IsDegraded():
			ps.Status = models.HealthStatusDegraded
		}
		if ph.LastError != "" {
			msg := ph.LastError
			ps.Message = &msg
		}
		statuses = append(statuses, ps)
	}
	return statuses
}

func (h *OpsHandler) activeFlags(ctx context.Context) []string {
	active := []string{}
	if h.cfg.Flags == nil {
		return active
	}
	for key, flag := range h.cfg.Flags.GetAllFlags(ctx) {
		if flag.BoolValue(false) {
			active = append(active, key)
		}
	}
	sort.Strings(active)
	return active
}

// overallStatus is FAIL when every provider failed, DEGRADED when any did.
func overallStatus(providers []models.ProviderStatus) models.HealthStatus {
	if len(providers) == 0 {
		return models.HealthStatusOK
	}

	failed, degraded := 0, 0
	for _, p := range providers {
		switch p.Status {
		case models.HealthStatusFail:
			failed++
		case models.HealthStatusDegraded:
			degraded++
		}
	}

	switch {
	case failed == len(providers):
		return models.HealthStatusFail
	case failed > 0 || degraded > 0:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}

func cacheStatus(stats cache.Stats) models.CacheStatus {
	cs := models.CacheStatus{
		Mirror:       stats.Mirror,
		Hits:         stats.Hits,
		Misses:       stats.Misses,
		MirrorErrors: stats.MirrorErrors,
		Evictions:    stats.Evictions,
		Reclaimed:    stats.Reclaimed,
		Namespaces:   make([]models.NamespaceStatus, 0, len(stats.Namespaces)),
	}
	if cs.Mirror == "" {
		cs.Mirror = "none"
	}
	for _, ns := range stats.Namespaces {
		cs.Namespaces = append(cs.Namespaces, models.NamespaceStatus{
			Namespace:    string(ns.Namespace),
			Entries:      ns.Entries,
			FreshEntries: ns.FreshEntries,
		})
	}
	return cs
}
