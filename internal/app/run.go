package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Redpill-Linpro/hegemone-client/internal/broker"
	"github.com/Redpill-Linpro/hegemone-client/internal/config"
	"github.com/Redpill-Linpro/hegemone-client/internal/db"
	"github.com/Redpill-Linpro/hegemone-client/internal/httpapi"
	"github.com/Redpill-Linpro/hegemone-client/internal/logging"
	"github.com/Redpill-Linpro/hegemone-client/internal/metrics"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/graph"
	graphviews "github.com/Redpill-Linpro/hegemone-client/internal/modules/graph/views"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements"
	"github.com/Redpill-Linpro/hegemone-client/internal/mqtt"
	"github.com/Redpill-Linpro/hegemone-client/tools/migrate"
)

const shutdownTimeout = 10 * time.Second

func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"sqliteDriver", cfg.SQLiteDriver,
		"sqlitePath", cfg.SQLitePath,
		"sqliteMaxOpenConns", cfg.SQLiteMaxOpenConns,
		"sqliteMaxIdleConns", cfg.SQLiteMaxIdleConns,
		"sqliteConnMaxLifetime", cfg.SQLiteConnMaxLifetime,
		"measurementsURL", cfg.MeasurementsURL,
		"graphViewTTL", cfg.GraphViewTTL,
		"graphMaxViews", cfg.GraphMaxViews,
		"mqttEnabled", cfg.MQTTEnabled,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
		"mqttEmbeddedBroker", cfg.MQTTEmbeddedBroker,
	)

	dbConn, err := db.Open(cfg, logging.Component(logger, "db"))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()

	applied, err := migrate.Run(dbConn, logging.Component(logger, "migrate"))
	if err != nil {
		return err
	}
	logger.Info("database ready", "migrationsApplied", applied)

	if err := graphviews.LoadTemplates(); err != nil {
		return fmt.Errorf("load graph templates: %w", err)
	}

	var embedded *broker.Broker
	if cfg.MQTTEmbeddedBroker {
		embedded, err = broker.New(cfg.MQTTEmbeddedAddr, logging.Component(logger, "broker"))
		if err != nil {
			return err
		}
		if err := embedded.Start(); err != nil {
			return err
		}
		defer func() {
			if closeErr := embedded.Close(); closeErr != nil {
				logger.Error("broker close", "error", closeErr)
			}
		}()
	}

	m := metrics.New()

	// The subscriber's handler must be set before Connect so messages queued
	// right after CONNACK are not dropped.
	var subscriber *mqtt.Subscriber
	var mqttStatus httpapi.MQTTStatus
	var mqttHandlerTarget measurements.MQTTSubscriber
	if cfg.MQTTEnabled {
		subscriber = mqtt.NewSubscriber(cfg, logging.Component(logger, "mqtt"))
		mqttStatus = subscriber
		mqttHandlerTarget = subscriber
		// Covers every early return; the normal shutdown path disconnects first.
		defer subscriber.Disconnect()
	}

	mux := httpapi.NewMux(dbConn, mqttStatus, m, logging.Component(logger, "http"))
	feature := measurements.RegisterFeature(ctx, mux, dbConn, mqttHandlerTarget, cfg, logging.Component(logger, "measurements"), m)
	defer feature.Close()

	// Each page view mounts its own graph component; the pool unmounts them.
	graphViews := graph.RegisterFeature(ctx, mux, cfg, logger, m)
	defer graphViews.Close()
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go graphViews.Run(sweepCtx)

	if subscriber != nil {
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = subscriber.Connect(connectCtx)
		connectCancel()
		if err != nil {
			// paho keeps retrying in the background; HTTP ingest still works meanwhile.
			logger.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
	}

	srv := httpapi.NewServer(cfg, mux, logging.Component(logger, "http"), m)
	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("http listen %s: %w", cfg.HTTPAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	graphViews.Close()

	if subscriber != nil {
		logger.Info("mqtt disconnecting")
		subscriber.Disconnect()
	}

	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
