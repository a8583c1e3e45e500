package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/N-O-S-T/FactoryTestApp/internal/api"
	"github.com/N-O-S-T/FactoryTestApp/internal/audit"
	"github.com/N-O-S-T/FactoryTestApp/internal/dut"
	"github.com/N-O-S-T/FactoryTestApp/internal/fixture"
	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/config"
	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/database"
	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/influxdb"
	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/logging"
	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/mqtt"
	"github.com/N-O-S-T/FactoryTestApp/internal/metrics"
	"github.com/N-O-S-T/FactoryTestApp/internal/process"
	"github.com/N-O-S-T/FactoryTestApp/internal/sequencer"
	"github.com/N-O-S-T/FactoryTestApp/internal/session"
	"github.com/N-O-S-T/FactoryTestApp/internal/station"
	"github.com/N-O-S-T/FactoryTestApp/internal/telemetry"
	"github.com/N-O-S-T/FactoryTestApp/migrations"
)

// newClock supplies the sequencer clock. Tests replace it.
var newClock = func() sequencer.Clock { return sequencer.SystemClock{} }

// newRegistry supplies the Prometheus registerer. Tests replace it so that
// repeated app construction does not register collectors twice.
var newRegistry = func() prometheus.Registerer { return prometheus.DefaultRegisterer }

// app holds the wired station and everything that must be closed with it.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	db      *database.DB
	session *session.Manager
	audit   *audit.SQLiteRepository
	hub     *api.Hub
	mqtt    *mqtt.Client // nil when disabled or unreachable
	station *station.Station

	closers []func()
}

// newApp connects the infrastructure and assembles the station.
//
// The database is required. MQTT and InfluxDB are optional: when enabled
// but unreachable the station runs without them and a warning is logged.
func newApp(ctx context.Context, cfg *config.Config, log *logging.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	// Result store
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.db = db
	a.onClose(func() {
		if cerr := db.Close(); cerr != nil {
			log.Error("error closing database", "error", cerr)
		}
	})
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", db.Path())

	a.session = session.NewManager(session.NewSQLiteRepository(db.DB), cfg.Station.ID)
	a.session.SetLogger(log)
	a.audit = audit.NewSQLiteRepository(db.DB)

	observers := sequencer.Observers{
		a.session,
		metrics.New(newRegistry()),
	}

	a.hub = api.NewHub(cfg.WebSocket, log)
	observers = append(observers, a.hub)

	if cfg.MQTT.Enabled {
		if obs := a.connectMQTT(); obs != nil {
			observers = append(observers, obs)
		}
	}
	if cfg.InfluxDB.Enabled {
		if obs := a.connectInfluxDB(ctx); obs != nil {
			observers = append(observers, obs)
		}
	}

	runner := process.NewRunner()
	runner.SetLogger(log)

	hw, err := fixture.Build(cfg, runner, log)
	if err != nil {
		return nil, fmt.Errorf("building fixture: %w", err)
	}

	seqCfg, err := sequencer.ConfigFrom(cfg)
	if err != nil {
		return nil, fmt.Errorf("sequencer config: %w", err)
	}

	seq := sequencer.New(hw.Fixture, dut.NewRegistry(), hw.Routines, seqCfg, sequencer.Options{
		Clock:    newClock(),
		Observer: observers,
		Logger:   log,
	})
	a.station = station.New(seq, a.session, log)

	ok = true
	return a, nil
}

func (a *app) connectMQTT() sequencer.Observer {
	client, err := mqtt.Connect(a.cfg.MQTT, a.cfg.Station.ID)
	if err != nil {
		a.log.Warn("MQTT unavailable, continuing without telemetry", "error", err)
		return nil
	}
	client.SetLogger(a.log)
	a.mqtt = client
	a.onClose(func() {
		if cerr := client.Close(); cerr != nil {
			a.log.Error("error closing MQTT", "error", cerr)
		}
	})
	a.log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", a.cfg.MQTT.Broker.Host, a.cfg.MQTT.Broker.Port))

	obs := telemetry.NewMQTTObserver(client, a.cfg.Station.ID, a.log)
	// Drain queued events before the client goes away
	a.onClose(obs.Close)
	return obs
}

func (a *app) connectInfluxDB(ctx context.Context) sequencer.Observer {
	client, err := influxdb.Connect(ctx, a.cfg.InfluxDB)
	if err != nil {
		a.log.Warn("InfluxDB unavailable, continuing without time-series", "error", err)
		return nil
	}
	client.SetOnError(func(werr error) {
		a.log.Error("InfluxDB write error", "error", werr)
	})
	a.onClose(func() {
		if cerr := client.Close(); cerr != nil {
			a.log.Error("error closing InfluxDB", "error", cerr)
		}
	})
	a.log.Info("InfluxDB connected", "url", a.cfg.InfluxDB.URL, "bucket", a.cfg.InfluxDB.Bucket)
	return telemetry.NewInfluxObserver(client, a.cfg.Station.ID)
}

// record writes an audit entry for an action taken through source.
// Failures are logged only.
func (a *app) record(ctx context.Context, action, subject, source string) {
	err := a.audit.Create(ctx, &audit.Entry{
		Action:   action,
		Subject:  subject,
		Operator: a.session.Info().Operator,
		Source:   source,
	})
	if err != nil {
		a.log.Warn("failed to record audit entry", "action", action, "error", err)
	}
}

// auditedStarter records every operation accepted over MQTT.
type auditedStarter struct {
	app *app
}

func (s auditedStarter) Start(ctx context.Context, slug string) (<-chan error, error) {
	done, err := s.app.station.Start(ctx, slug)
	if err == nil {
		s.app.record(ctx, audit.ActionOperationStart, slug, audit.SourceMQTT)
	}
	return done, err
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases everything in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// healthCheck pings the database and, when connected, the broker.
func (a *app) healthCheck(ctx context.Context) error {
	var errs []error
	if err := a.db.HealthCheck(ctx); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if a.mqtt != nil {
		if err := a.mqtt.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mqtt: %w", err))
		}
	}
	return errors.Join(errs...)
}
