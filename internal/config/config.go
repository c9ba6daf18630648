// Package config holds the process configuration: compiled-in defaults,
// optionally overlaid by a TOML file, optionally overlaid by STARTRACK_*
// environment variables (applied by the caller). Loaded once at startup and
// treated as immutable afterwards.
package config

import (
	"fmt"
	"time"

	"github.com/midbel/toml"

	"github.com/kilodelta8/StarTrack/internal/propagation"
	"github.com/kilodelta8/StarTrack/internal/transform"
)

// Duration decodes TOML duration strings like "5s" or "10m".
type Duration struct {
	time.Duration
}

func (d *Duration) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err == nil {
		d.Duration = v
	}
	return err
}

func (d *Duration) String() string {
	return d.Duration.String()
}

// HTTP is the server listener section.
type HTTP struct {
	Addr       string `toml:"addr"`
	TrustProxy bool   `toml:"trust_proxy"`
}

// Auth is the bearer token section. An enabled section with an empty token
// fails validation rather than silently running open.
type Auth struct {
	Enabled bool   `toml:"enabled"`
	Token   string `toml:"token"`
}

// Observer is the default ground site for calculations that do not carry
// their own coordinates.
type Observer struct {
	Latitude  float64 `toml:"latitude"`
	Longitude float64 `toml:"longitude"`
	AltitudeM float64 `toml:"altitude_m"`
}

// Device is the tracker endpoint section.
type Device struct {
	BaseURL       string   `toml:"base_url"`
	UploadTimeout Duration `toml:"upload_timeout"`
	StatusTimeout Duration `toml:"status_timeout"`
}

// TLE is the catalog source section.
type TLE struct {
	SourceURL       string   `toml:"source_url"` // empty selects the built-in CelesTrak group
	ExtraURLs       []string `toml:"extra_urls"`
	CacheDir        string   `toml:"cache_dir"`
	MaxFiles        int      `toml:"max_files"`
	EnableFetch     bool     `toml:"enable_fetch"`
	RefreshInterval Duration `toml:"refresh_interval"` // zero disables periodic refresh
}

// Sampling is the trajectory window section.
type Sampling struct {
	CatalogNumber int      `toml:"catalog_number"`
	Step          Duration `toml:"step"`
	Window        Duration `toml:"duration"`
	MinElevation  float64  `toml:"min_elevation"`
	Precision     int      `toml:"precision"`
	Model         string   `toml:"model"`
}

// Schedule is the background pass prediction section.
type Schedule struct {
	Enabled      bool     `toml:"enabled"`
	Horizon      Duration `toml:"horizon"`
	Refresh      Duration `toml:"refresh"`
	MinElevation float64  `toml:"min_elevation"`
	MaxPasses    int      `toml:"max_passes"`
}

// Stream is the live status stream section.
type Stream struct {
	Enabled            bool     `toml:"enabled"`
	MaxConcurrentPerIP int      `toml:"max_concurrent_per_ip"`
	PollInterval       Duration `toml:"poll_interval"`
	KeepaliveInterval  Duration `toml:"keepalive_interval"`
}

// Config is the full process configuration.
type Config struct {
	HTTP     HTTP     `toml:"http"`
	Auth     Auth     `toml:"auth"`
	Observer Observer `toml:"observer"`
	Device   Device   `toml:"device"`
	TLE      TLE      `toml:"tle"`
	Sampling Sampling `toml:"sampling"`
	Schedule Schedule `toml:"schedule"`
	Stream   Stream   `toml:"stream"`
}

// Default returns the compiled-in configuration: the Brookville OH reference
// site, the ISS, a 10 minute window at 5 second steps, and the tracker on
// its own access point.
func Default() Config {
	return Config{
		HTTP: HTTP{Addr: ":8080"},
		Observer: Observer{
			Latitude:  39.86,
			Longitude: -84.38,
			AltitudeM: 300,
		},
		Device: Device{
			BaseURL:       "http://192.168.4.1",
			UploadTimeout: Duration{5 * time.Second},
			StatusTimeout: Duration{2 * time.Second},
		},
		TLE: TLE{
			CacheDir:    "/tmp/startrack/tle",
			MaxFiles:    5,
			EnableFetch: true,
			ExtraURLs: []string{
				// ISS (NORAD 25544), the default tracking target.
				"https://celestrak.org/NORAD/elements/gp.php?CATNR=25544&FORMAT=tle",
			},
			RefreshInterval: Duration{6 * time.Hour},
		},
		Sampling: Sampling{
			CatalogNumber: 25544,
			Step:          Duration{5 * time.Second},
			Window:        Duration{10 * time.Minute},
			MinElevation:  0,
			Precision:     2,
			Model:         propagation.ModelSGP4,
		},
		Schedule: Schedule{
			Enabled:      true,
			Horizon:      Duration{24 * time.Hour},
			Refresh:      Duration{30 * time.Minute},
			MinElevation: 10,
			MaxPasses:    10,
		},
		Stream: Stream{
			Enabled:            true,
			MaxConcurrentPerIP: 10,
			PollInterval:       Duration{2 * time.Second},
			KeepaliveInterval:  Duration{30 * time.Second},
		},
	}
}

// Load returns the defaults overlaid with the TOML file at path. An empty
// path skips the file. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the invariants a running process depends on.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr must not be empty")
	}
	if c.Auth.Enabled && c.Auth.Token == "" {
		return fmt.Errorf("auth.token is required when auth is enabled")
	}
	if err := transform.ValidateGeodetic(c.Observer.Latitude, c.Observer.Longitude, c.Observer.AltitudeM); err != nil {
		return fmt.Errorf("observer: %w", err)
	}
	if c.Device.BaseURL == "" {
		return fmt.Errorf("device.base_url must not be empty")
	}
	if c.Device.UploadTimeout.Duration <= 0 || c.Device.StatusTimeout.Duration <= 0 {
		return fmt.Errorf("device timeouts must be positive")
	}
	if c.Sampling.CatalogNumber <= 0 {
		return fmt.Errorf("sampling.catalog_number must be positive")
	}
	if c.Sampling.Step.Duration <= 0 {
		return fmt.Errorf("sampling.step must be positive")
	}
	if c.Sampling.Window.Duration <= 0 {
		return fmt.Errorf("sampling.duration must be positive")
	}
	if c.Sampling.Precision < 0 {
		return fmt.Errorf("sampling.precision must not be negative")
	}
	switch c.Sampling.Model {
	case "", propagation.ModelSGP4, propagation.ModelKepler:
	default:
		return fmt.Errorf("sampling.model %q is not a known propagation model", c.Sampling.Model)
	}
	if c.TLE.MaxFiles < 1 {
		return fmt.Errorf("tle.max_files must be at least 1")
	}
	if c.Schedule.Enabled {
		if c.Schedule.Horizon.Duration <= 0 {
			return fmt.Errorf("schedule.horizon must be positive")
		}
		if c.Schedule.Refresh.Duration <= 0 {
			return fmt.Errorf("schedule.refresh must be positive")
		}
		if c.Schedule.MinElevation < 0 || c.Schedule.MinElevation >= 90 {
			return fmt.Errorf("schedule.min_elevation must be in [0, 90)")
		}
		if c.Schedule.MaxPasses < 1 {
			return fmt.Errorf("schedule.max_passes must be at least 1")
		}
	}
	if c.Stream.Enabled {
		if c.Stream.MaxConcurrentPerIP < 1 {
			return fmt.Errorf("stream.max_concurrent_per_ip must be at least 1")
		}
		if c.Stream.PollInterval.Duration <= 0 {
			return fmt.Errorf("stream.poll_interval must be positive")
		}
		if c.Stream.KeepaliveInterval.Duration <= 0 {
			return fmt.Errorf("stream.keepalive_interval must be positive")
		}
	}
	return nil
}
