package roastwire

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/roastwire/roastwire/internal/adapters/archive"
	"github.com/roastwire/roastwire/internal/adapters/driver"
	"github.com/roastwire/roastwire/internal/adapters/observability"
	"github.com/roastwire/roastwire/internal/adapters/profile"
	"github.com/roastwire/roastwire/internal/ports"
	"github.com/roastwire/roastwire/internal/server"
	"github.com/roastwire/roastwire/internal/session"
)

// Driver is the boundary to one machine's hardware transport. Implement
// it to connect real roasters; the built-in simulator is the default.
type Driver = ports.Driver

// DriverState and DriverStatus carry driver connectivity for custom
// Driver implementations.
type (
	DriverState  = ports.DriverState
	DriverStatus = ports.DriverStatus
)

// Observability is the pluggable logging and metrics backend.
type Observability = ports.Observability

// Archive receives finished-recording summaries.
type Archive = ports.Archive

// ProfileSource hands stored roast profiles to the replay engine.
type ProfileSource = ports.ProfileSource

// Session exposes one machine's state machine to embedders.
type Session = session.Session

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	drivers  map[string]ports.Driver
	archive  ports.Archive
	profiles ports.ProfileSource
	obs      ports.Observability
}

// WithDriver attaches a custom driver to the named machine instead of the
// simulator built from its config entry.
func WithDriver(machineID string, drv Driver) RuntimeOption {
	return func(o *runtimeOverrides) {
		if machineID != "" && drv != nil {
			o.drivers[machineID] = drv
		}
	}
}

// WithArchive overrides the Postgres archive, or provides one when no
// conn_string is configured.
func WithArchive(a Archive) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.archive = a
	}
}

// WithProfiles overrides the directory-backed profile source.
func WithProfiles(src ProfileSource) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.profiles = src
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.obs = obs
	}
}

// Runtime is a fully wired hub ready to Run: per-machine sessions and
// drivers plus the HTTP and websocket surface over them.
type Runtime struct {
	cfg *Config
	hub *server.Hub
	db  *sql.DB
}

// NewRuntime bootstraps the default adapters (simulator drivers, ring
// history, Postgres archive, Prometheus observability) and applies any
// overrides.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	overrides := runtimeOverrides{drivers: make(map[string]ports.Driver)}
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	obs := overrides.obs
	if obs == nil {
		obs = observability.NewPromObs()
	}

	var db *sql.DB
	arch := overrides.archive
	if arch == nil && cfg.Archive.ConnString != "" {
		var err error
		db, err = sql.Open("postgres", cfg.Archive.ConnString)
		if err != nil {
			return nil, fmt.Errorf("open archive db: %w", err)
		}
		arch = archive.NewPostgresArchive(db, cfg.Archive.Table)
	}

	profiles := overrides.profiles
	if profiles == nil && cfg.Profiles.Dir != "" {
		var err error
		profiles, err = profile.NewDir(cfg.Profiles.Dir)
		if err != nil {
			return nil, err
		}
	}

	hub := server.New(server.Config{
		ListenAddr:  cfg.Server.ListenAddr,
		MetricsAddr: cfg.Server.MetricsAddr,
		Policy:      cfg.Policy,
		Obs:         obs,
		Archive:     arch,
		Profiles:    profiles,
	})

	for _, m := range cfg.Machines {
		drv := overrides.drivers[m.ID]
		if drv == nil {
			var err error
			drv, err = driver.NewSim(m.Sim)
			if err != nil {
				return nil, fmt.Errorf("machine %s: %w", m.ID, err)
			}
		}
		err := hub.AddMachine(server.Machine{
			ID:     m.ID,
			Name:   m.Name,
			Driver: drv,
			Alarms: cfg.Alarms,
		})
		if err != nil {
			return nil, err
		}
	}

	return &Runtime{cfg: cfg, hub: hub, db: db}, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully and
// closes owned resources.
func (r *Runtime) Run(ctx context.Context) error {
	err := r.hub.Run(ctx)
	if r.db != nil {
		if cerr := r.db.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Session returns the named machine's session, nil when unknown. Embedders
// use it to feed externally detected events into the live stream.
func (r *Runtime) Session(machineID string) *Session {
	return r.hub.Session(machineID)
}
