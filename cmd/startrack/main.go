package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/kilodelta8/StarTrack/internal/api"
	"github.com/kilodelta8/StarTrack/internal/auth"
	"github.com/kilodelta8/StarTrack/internal/config"
	"github.com/kilodelta8/StarTrack/internal/device"
	"github.com/kilodelta8/StarTrack/internal/metrics"
	"github.com/kilodelta8/StarTrack/internal/planner"
	"github.com/kilodelta8/StarTrack/internal/schedule"
	"github.com/kilodelta8/StarTrack/internal/stream"
	"github.com/kilodelta8/StarTrack/internal/tle"
)

func main() {
	configPath := flag.String("config", os.Getenv("STARTRACK_CONFIG"), "path to TOML config file (optional)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	applyEnvOverrides(&cfg, logger)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration after environment overrides", "error", err)
		os.Exit(1)
	}

	store := tle.NewStore()
	tleCache := tle.NewCache(cfg.TLE.CacheDir, cfg.TLE.MaxFiles)

	// Attempt to load cached TLE data on startup.
	if data, ts, err := tleCache.Latest(); err != nil {
		logger.Info("no TLE snapshot found, starting without TLE data", "error", err)
	} else {
		sats, err := tle.ParseCatalog(bytes.NewReader(data), logger)
		if err != nil || len(sats) == 0 {
			logger.Warn("failed to parse cached TLE data", "error", err)
		} else {
			store.Set(tle.NewDataset("cache", ts, sats))
			metrics.SetTLEDatasetCount(len(sats))
			logger.Info("loaded TLE data from snapshot",
				"count", len(sats),
				"cached_at", ts.UTC().Format(time.RFC3339),
			)
		}
	}

	var fetcher *tle.Fetcher
	if cfg.TLE.EnableFetch {
		fetcher = tle.NewFetcher(cfg.TLE.SourceURL, logger, cfg.TLE.ExtraURLs...)
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Refresh at startup when there is nothing loaded or the snapshot has
	// aged past the refresh interval.
	if fetcher != nil && startupRefreshDue(store, cfg.TLE.RefreshInterval.Duration) {
		refreshCtx, cancel := context.WithTimeout(ctx, time.Minute)
		if n, err := tle.Refresh(refreshCtx, fetcher, tleCache, store, logger); err != nil {
			logger.Warn("startup TLE refresh failed", "error", err)
		} else {
			metrics.SetTLEDatasetCount(n)
		}
		cancel()
	}

	dev := device.NewClient(cfg.Device.BaseURL, cfg.Device.UploadTimeout.Duration, cfg.Device.StatusTimeout.Duration)

	plan := planner.New(store, planner.Defaults{
		Latitude:      cfg.Observer.Latitude,
		Longitude:     cfg.Observer.Longitude,
		AltitudeM:     cfg.Observer.AltitudeM,
		CatalogNumber: cfg.Sampling.CatalogNumber,
		Step:          cfg.Sampling.Step.Duration,
		Duration:      cfg.Sampling.Window.Duration,
		MinElevation:  cfg.Sampling.MinElevation,
		Precision:     cfg.Sampling.Precision,
		Model:         cfg.Sampling.Model,
	}, logger)

	var sched *schedule.Schedule
	if cfg.Schedule.Enabled {
		sched = schedule.New(store, schedule.Config{
			Latitude:     cfg.Observer.Latitude,
			Longitude:    cfg.Observer.Longitude,
			AltitudeM:    cfg.Observer.AltitudeM,
			Horizon:      cfg.Schedule.Horizon.Duration,
			Refresh:      cfg.Schedule.Refresh.Duration,
			MinElevation: cfg.Schedule.MinElevation,
			MaxPasses:    cfg.Schedule.MaxPasses,
			Model:        cfg.Sampling.Model,
		}, logger)
		go sched.Start(ctx)
	}

	var streamHandler *stream.Handler
	if cfg.Stream.Enabled {
		streamHandler = stream.NewHandler(dev, store, stream.Config{
			MaxConcurrentPerIP: cfg.Stream.MaxConcurrentPerIP,
			PollInterval:       cfg.Stream.PollInterval.Duration,
			KeepaliveInterval:  cfg.Stream.KeepaliveInterval.Duration,
			TrustProxy:         cfg.HTTP.TrustProxy,
		}, logger)
	}

	srv := api.NewServer(cfg.HTTP.Addr, logger, auth.Config(cfg.Auth), api.Deps{
		Store:      store,
		Planner:    plan,
		Device:     dev,
		Fetcher:    fetcher,
		Snapshots:  tleCache,
		Schedule:   sched,
		Stream:     streamHandler,
		TrustProxy: cfg.HTTP.TrustProxy,
	})

	// Periodic TLE refresh.
	if fetcher != nil && cfg.TLE.RefreshInterval.Duration > 0 {
		go func() {
			ticker := time.NewTicker(cfg.TLE.RefreshInterval.Duration)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					refreshCtx, cancel := context.WithTimeout(ctx, time.Minute)
					if n, err := tle.Refresh(refreshCtx, fetcher, tleCache, store, logger); err != nil {
						logger.Warn("periodic TLE refresh failed", "error", err)
					} else {
						metrics.SetTLEDatasetCount(n)
					}
					cancel()
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Background goroutine to update the TLE dataset age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if age := store.AgeSeconds(); age >= 0 {
					metrics.SetTLEDatasetAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server",
			"addr", cfg.HTTP.Addr,
			"auth_enabled", cfg.Auth.Enabled,
			"device", dev.BaseURL(),
			"tle_fetch_enabled", cfg.TLE.EnableFetch,
			"schedule_enabled", cfg.Schedule.Enabled,
			"stream_enabled", cfg.Stream.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// startupRefreshDue reports whether the startup fetch should run: nothing
// is loaded, or the snapshot is older than the refresh interval.
func startupRefreshDue(store *tle.Store, refreshInterval time.Duration) bool {
	age := store.AgeSeconds()
	if age < 0 {
		return true
	}
	return refreshInterval > 0 && age > refreshInterval.Seconds()
}

// logLevel reads STARTRACK_LOG_LEVEL (debug, info, warn, error).
func logLevel() slog.Level {
	switch strings.ToLower(os.Getenv("STARTRACK_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// applyEnvOverrides overlays STARTRACK_* environment variables on top of the
// file configuration. Malformed values warn and keep the existing setting.
func applyEnvOverrides(cfg *config.Config, logger *slog.Logger) {
	envString("STARTRACK_HTTP_ADDR", &cfg.HTTP.Addr)
	envBool(logger, "STARTRACK_TRUST_PROXY", &cfg.HTTP.TrustProxy)

	envBool(logger, "STARTRACK_AUTH_ENABLED", &cfg.Auth.Enabled)
	envString("STARTRACK_AUTH_TOKEN", &cfg.Auth.Token)

	envFloat(logger, "STARTRACK_OBSERVER_LAT", &cfg.Observer.Latitude)
	envFloat(logger, "STARTRACK_OBSERVER_LON", &cfg.Observer.Longitude)
	envFloat(logger, "STARTRACK_OBSERVER_ALT", &cfg.Observer.AltitudeM)

	envString("STARTRACK_DEVICE_URL", &cfg.Device.BaseURL)
	envDuration(logger, "STARTRACK_DEVICE_UPLOAD_TIMEOUT", &cfg.Device.UploadTimeout.Duration)
	envDuration(logger, "STARTRACK_DEVICE_STATUS_TIMEOUT", &cfg.Device.StatusTimeout.Duration)

	envString("STARTRACK_TLE_SOURCE_URL", &cfg.TLE.SourceURL)
	envString("STARTRACK_TLE_CACHE_DIR", &cfg.TLE.CacheDir)
	envBool(logger, "STARTRACK_ENABLE_TLE_FETCH", &cfg.TLE.EnableFetch)
	envDuration(logger, "STARTRACK_TLE_REFRESH_INTERVAL", &cfg.TLE.RefreshInterval.Duration)
	if v := os.Getenv("STARTRACK_TLE_EXTRA_URLS"); v != "" {
		var urls []string
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		cfg.TLE.ExtraURLs = urls
	}

	envInt(logger, "STARTRACK_CATALOG_NUMBER", &cfg.Sampling.CatalogNumber)
	envDuration(logger, "STARTRACK_SAMPLING_STEP", &cfg.Sampling.Step.Duration)
	envDuration(logger, "STARTRACK_SAMPLING_DURATION", &cfg.Sampling.Window.Duration)
	envFloat(logger, "STARTRACK_MIN_ELEVATION", &cfg.Sampling.MinElevation)
	envInt(logger, "STARTRACK_PRECISION", &cfg.Sampling.Precision)
	envString("STARTRACK_MODEL", &cfg.Sampling.Model)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(logger *slog.Logger, key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("invalid boolean environment value, keeping configured value", "key", key, "value", v)
		return
	}
	*dst = b
}

func envInt(logger *slog.Logger, key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn("invalid integer environment value, keeping configured value", "key", key, "value", v)
		return
	}
	*dst = n
}

func envFloat(logger *slog.Logger, key string, dst *float64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger.Warn("invalid float environment value, keeping configured value", "key", key, "value", v)
		return
	}
	*dst = f
}

func envDuration(logger *slog.Logger, key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warn("invalid duration environment value, keeping configured value", "key", key, "value", v)
		return
	}
	*dst = d
}
