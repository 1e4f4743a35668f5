package featureflags_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/skyglance/skyglance/internal/featureflags"
)

func TestService_GetFlag(t *testing.T) {
	repo := featureflags.NewInMemoryRepository()
	service := featureflags.NewService(featureflags.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
		CacheTTL:   1 * time.Minute,
	})

	ctx := context.Background()

	// Test getting a default flag
	flag := service.GetFlag(ctx, featureflags.FlagForceRefresh)
	if flag == nil {
		t.Fatal("expected flag to be returned")
	}
	if flag.Key != featureflags.FlagForceRefresh {
		t.Errorf("expected key %q, got %q", featureflags.FlagForceRefresh, flag.Key)
	}
	if flag.BoolValue(true) != false {
		t.Error("expected force_refresh to be false by default")
	}
}

func TestService_SetFlag(t *testing.T) {
	repo := featureflags.NewInMemoryRepository()
	service := featureflags.NewService(featureflags.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
		CacheTTL:   1 * time.Minute,
	})

	ctx := context.Background()

	// Set a flag
	err := service.SetFlag(ctx, &featureflags.Flag{
		Key:   featureflags.FlagForceRefresh,
		Value: true,
	})
	if err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}

	// Verify it was updated
	flag := service.GetFlag(ctx, featureflags.FlagForceRefresh)
	if flag == nil {
		t.Fatal("expected flag to be returned")
	}
	if flag.BoolValue(false) != true {
		t.Error("expected force_refresh to be true after update")
	}
}

func TestService_SetFlags(t *testing.T) {
	repo := featureflags.NewInMemoryRepository()
	service := featureflags.NewService(featureflags.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
		CacheTTL:   1 * time.Minute,
	})

	ctx := context.Background()

	// Set multiple flags
	err := service.SetFlags(ctx, []*featureflags.Flag{
		{Key: featureflags.FlagForceRefresh, Value: true},
		{Key: featureflags.FlagOfflineMode, Value: true},
	})
	if err != nil {
		t.Fatalf("failed to set flags: %v", err)
	}

	// Verify both were updated
	if !service.ForceRefresh(ctx) {
		t.Error("expected force refresh to be on")
	}
	if service.Online(ctx) {
		t.Error("expected offline mode to report offline")
	}
}

func TestService_GetAllFlags(t *testing.T) {
	repo := featureflags.NewInMemoryRepository()
	service := featureflags.NewService(featureflags.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
		CacheTTL:   1 * time.Minute,
	})

	ctx := context.Background()
	flags := service.GetAllFlags(ctx)

	// Should have all default flags
	expectedFlags := []string{
		featureflags.FlagForceRefresh,
		featureflags.FlagOfflineMode,
		featureflags.FlagDisableTertiaryGeocoder,
		featureflags.FlagDisableRegionDetection,
	}

	for _, key := range expectedFlags {
		if _, ok := flags[key]; !ok {
			t.Errorf("expected flag %q to be present", key)
		}
	}
}

func TestService_InvalidateCache(t *testing.T) {
	repo := featureflags.NewInMemoryRepository()
	service := featureflags.NewService(featureflags.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
		CacheTTL:   1 * time.Hour, // Long TTL to test cache
	})

	ctx := context.Background()

	// Get a flag to populate cache
	_ = service.GetFlag(ctx, featureflags.FlagForceRefresh)

	// Directly update the repository (bypassing service)
	_ = repo.SetFlag(ctx, &featureflags.Flag{
		Key:   featureflags.FlagForceRefresh,
		Value: true,
	})

	// Without invalidation, cache should still return old value
	// (Note: this depends on implementation details, but tests the concept)

	// Invalidate cache
	service.InvalidateCache()

	// Now should get fresh value from repository
	flag := service.GetFlag(ctx, featureflags.FlagForceRefresh)
	if flag.BoolValue(false) != true {
		t.Error("expected updated value after cache invalidation")
	}
}

func TestService_IsEnabled(t *testing.T) {
	repo := featureflags.NewInMemoryRepository()
	service := featureflags.NewService(featureflags.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
		CacheTTL:   1 * time.Minute,
	})

	ctx := context.Background()

	// Default flags are all off
	if service.IsEnabled(ctx, featureflags.FlagForceRefresh) {
		t.Error("expected force_refresh to be disabled by default")
	}

	if service.IsEnabled(ctx, "unknown_flag") {
		t.Error("expected unknown flag to be disabled")
	}

	// IsDisabled should be inverse
	if !service.IsDisabled(ctx, featureflags.FlagForceRefresh) {
		t.Error("expected IsDisabled to return true for disabled flag")
	}
}

func TestService_ConvenienceMethods(t *testing.T) {
	repo := featureflags.NewInMemoryRepository()
	service := featureflags.NewService(featureflags.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
		CacheTTL:   1 * time.Minute,
	})

	ctx := context.Background()

	// Test all convenience methods with default values
	if service.ForceRefresh(ctx) {
		t.Error("expected force refresh to be off by default")
	}
	if !service.TertiaryGeocoderEnabled(ctx) {
		t.Error("expected tertiary geocoder to be enabled by default")
	}
	if !service.RegionDetectionEnabled(ctx) {
		t.Error("expected region detection to be enabled by default")
	}
	if !service.Online(ctx) {
		t.Error("expected online by default")
	}

	// Switch everything
	err := service.SetFlags(ctx, []*featureflags.Flag{
		{Key: featureflags.FlagDisableTertiaryGeocoder, Value: true},
		{Key: featureflags.FlagDisableRegionDetection, Value: true},
	})
	if err != nil {
		t.Fatalf("failed to set flags: %v", err)
	}
	if service.TertiaryGeocoderEnabled(ctx) {
		t.Error("expected tertiary geocoder to be disabled")
	}
	if service.RegionDetectionEnabled(ctx) {
		t.Error("expected region detection to be disabled")
	}
}

func TestIsKnown(t *testing.T) {
	for key := range featureflags.DefaultFlags() {
		if !featureflags.IsKnown(key) {
			t.Errorf("expected %q to be known", key)
		}
	}
	if featureflags.IsKnown("disable_train_mode") {
		t.Error("expected unrelated flag to be unknown")
	}
}

func TestFlag_BoolValue(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		def   bool
		want  bool
	}{
		{name: "true", value: true, def: false, want: true},
		{name: "false", value: false, def: true, want: false},
		{name: "non-zero number from JSON", value: float64(1), def: false, want: true},
		{name: "zero number from JSON", value: float64(0), def: true, want: false},
		{name: "string falls back", value: "yes", def: true, want: true},
		{name: "nil value falls back", value: nil, def: false, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := &featureflags.Flag{Key: "test", Value: tt.value, UpdatedAt: time.Now()}
			if got := flag.BoolValue(tt.def); got != tt.want {
				t.Errorf("BoolValue(%v) = %v, want %v", tt.def, got, tt.want)
			}
		})
	}

	var nilFlag *featureflags.Flag
	if !nilFlag.BoolValue(true) {
		t.Error("expected default value for nil flag")
	}
}

func TestInMemoryRepository_GetFlag_NotFound(t *testing.T) {
	repo := featureflags.NewInMemoryRepositoryWithFlags(make(map[string]*featureflags.Flag))
	ctx := context.Background()

	_, err := repo.GetFlag(ctx, "nonexistent")
	if !errors.Is(err, featureflags.ErrFlagNotFound) {
		t.Errorf("expected ErrFlagNotFound, got %v", err)
	}
}

func TestInMemoryRepository_DeleteFlag(t *testing.T) {
	repo := featureflags.NewInMemoryRepository()
	ctx := context.Background()

	// Delete existing flag
	err := repo.DeleteFlag(ctx, featureflags.FlagForceRefresh)
	if err != nil {
		t.Fatalf("failed to delete flag: %v", err)
	}

	// Should not be found now
	_, err = repo.GetFlag(ctx, featureflags.FlagForceRefresh)
	if !errors.Is(err, featureflags.ErrFlagNotFound) {
		t.Errorf("expected ErrFlagNotFound after delete, got %v", err)
	}

	// Delete non-existent flag should error
	err = repo.DeleteFlag(ctx, "nonexistent")
	if !errors.Is(err, featureflags.ErrFlagNotFound) {
		t.Errorf("expected ErrFlagNotFound for non-existent flag, got %v", err)
	}
}

func TestService_FallbackToDefaults(t *testing.T) {
	// Create service with empty repository but custom defaults
	repo := featureflags.NewInMemoryRepositoryWithFlags(make(map[string]*featureflags.Flag))
	service := featureflags.NewService(featureflags.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
		CacheTTL:   1 * time.Minute,
		DefaultFlags: map[string]*featureflags.Flag{
			featureflags.FlagOfflineMode: {Key: featureflags.FlagOfflineMode, Value: true},
		},
	})

	ctx := context.Background()

	// Should fallback to default value
	flag := service.GetFlag(ctx, featureflags.FlagOfflineMode)
	if flag == nil {
		t.Fatal("expected flag to be returned from defaults")
	}
	if service.Online(ctx) {
		t.Error("expected offline_mode default to be honoured")
	}
}
