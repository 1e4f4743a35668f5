package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/skyglance/skyglance/internal/weather"
)

// Facade is the subset of weather.Service the refresh job drives.
type Facade interface {
	FetchWeatherData(ctx context.Context, lat, lon float64, opts ...weather.Option) (*weather.Snapshot, error)
	GetReverseGeocode(ctx context.Context, lat, lon float64, opts ...weather.Option) (string, error)
}

// RegionDetector re-evaluates the provider order before a refresh.
type RegionDetector interface {
	Detect(ctx context.Context)
}

// RefreshJob silently refreshes favourite locations, bypassing the cache
// lookup so fresh results are written through.
type RefreshJob struct {
	config  RefreshConfig
	logger  zerolog.Logger
	facade  Facade
	region  RegionDetector
	metrics *RefreshMetrics
}

// RefreshMetrics tracks refresh job statistics.
type RefreshMetrics struct {
	mu sync.RWMutex

	TotalRuns         int64
	SuccessfulRefresh int64
	FailedRefreshes   int64

	LastRefreshAt       time.Time
	LastRefreshDuration time.Duration
	TotalDuration       time.Duration
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config RefreshConfig
	Logger zerolog.Logger
	Facade Facade

	// Region is probed before each run. Optional.
	Region RegionDetector
}

// NewRefreshJob creates a new refresh job.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	return &RefreshJob{
		config:  cfg.Config.withDefaults(),
		logger:  cfg.Logger,
		facade:  cfg.Facade,
		region:  cfg.Region,
		metrics: &RefreshMetrics{},
	}
}

// RefreshResult contains the result of a refresh run.
type RefreshResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Total      int
	Successful int
	Failed     int
	Errors     []RefreshError
}

// RefreshError records a failed favourite.
type RefreshError struct {
	Favourite Favourite
	Error     string
}

// Run refreshes every favourite. Per-location failures are recorded and
// logged but never abort the run.
func (j *RefreshJob) Run(ctx context.Context) *RefreshResult {
	startTime := time.Now()
	favourites := j.config.Favourites
	result := &RefreshResult{
		StartTime: startTime,
		Total:     len(favourites),
	}

	j.logger.Info().
		Int("favourites", result.Total).
		Int("concurrency", j.config.Concurrency).
		Msg("starting favourites refresh")

	if j.region != nil {
		j.region.Detect(ctx)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Concurrency)

	for _, fav := range favourites {
		g.Go(func() error {
			err := j.refreshFavourite(gctx, fav)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, RefreshError{Favourite: fav, Error: err.Error()})
				j.logger.Warn().Err(err).
					Str("favourite", fav.Name).
					Float64("lat", fav.Lat).
					Float64("lon", fav.Lon).
					Msg("favourite refresh failed")
			} else {
				result.Successful++
			}
			return nil
		})
	}
	_ = g.Wait()

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("favourites refresh completed")

	return result
}

func (j *RefreshJob) refreshFavourite(ctx context.Context, fav Favourite) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	opts := []weather.Option{
		weather.BypassCache(),
		weather.WithUnits(j.config.Units),
		weather.WithLanguage(j.config.Language),
	}

	if _, err := j.facade.FetchWeatherData(ctx, fav.Lat, fav.Lon, opts...); err != nil {
		return err
	}

	if j.config.RefreshNames {
		if _, err := j.facade.GetReverseGeocode(ctx, fav.Lat, fav.Lon, opts...); err != nil {
			return err
		}
	}
	return nil
}

func (j *RefreshJob) updateMetrics(result *RefreshResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.SuccessfulRefresh += int64(result.Successful)
	j.metrics.FailedRefreshes += int64(result.Failed)
	j.metrics.LastRefreshAt = result.EndTime
	j.metrics.LastRefreshDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *RefreshJob) GetMetrics() RefreshMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return RefreshMetrics{
		TotalRuns:           j.metrics.TotalRuns,
		SuccessfulRefresh:   j.metrics.SuccessfulRefresh,
		FailedRefreshes:     j.metrics.FailedRefreshes,
		LastRefreshAt:       j.metrics.LastRefreshAt,
		LastRefreshDuration: j.metrics.LastRefreshDuration,
		TotalDuration:       j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *RefreshJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_runs":            m.TotalRuns,
		"successful_refreshes":  m.SuccessfulRefresh,
		"failed_refreshes":      m.FailedRefreshes,
		"last_refresh_at":       m.LastRefreshAt,
		"last_refresh_duration": m.LastRefreshDuration.String(),
		"total_duration":        m.TotalDuration.String(),
	}
}
