package main

import (
	"context"
	"fmt"

	"github.com/N-O-S-T/FactoryTestApp/internal/api"
	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/config"
	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/logging"
	"github.com/N-O-S-T/FactoryTestApp/internal/telemetry"
)

// serve runs the station until ctx is cancelled.
//
// It starts the HTTP API with the WebSocket hub and, when MQTT is
// connected, listens for operation commands on the broker.
func serve(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	log.Info("starting fixture sequencer",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.healthCheck(ctx); err != nil {
		return fmt.Errorf("health check: %w", err)
	}

	var mqttChecker api.ConnectionChecker
	if a.mqtt != nil {
		mqttChecker = a.mqtt
	}

	go a.hub.Run(ctx)

	srv, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Station: a.station,
		Session: a.session,
		DB:      a.db.DB,
		MQTT:    mqttChecker,
		Hub:     a.hub,
		Audit:   a.audit,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if cerr := srv.Close(); cerr != nil {
			log.Error("error closing API server", "error", cerr)
		}
	}()

	if a.mqtt != nil {
		listener := telemetry.NewCommandListener(a.mqtt, auditedStarter{app: a}, cfg.Station.ID, log)
		if err := listener.Listen(ctx); err != nil {
			log.Warn("MQTT command listener unavailable", "error", err)
		}
	}

	log.Info("fixture sequencer started",
		"station", cfg.Station.ID,
		"api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	<-ctx.Done()
	log.Info("shutdown signal received, stopping...")

	return nil
}
