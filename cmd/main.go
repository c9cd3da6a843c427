package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"sappump/internal/config"
	"sappump/internal/errlog"
	"sappump/internal/handlers"
	"sappump/internal/logger"
	"sappump/internal/relay"
	"sappump/internal/repository"
	"sappump/internal/repository/db"
	"sappump/internal/server"
	"sappump/internal/service"
	"sappump/internal/signal"
)

const configDir = "configs"

func main() {
	cfg, err := config.Load(configDir)
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(cfg.LogLevel)

	sqlDB, err := db.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	repos := repository.NewRepository(sqlDB)
	sink, err := buildErrorSink(cfg, repos)
	if err != nil {
		log.Fatalw("failed to init error sink", "err", err)
	}

	source, closeSource, err := buildSignalSource(cfg)
	if err != nil {
		log.Fatalw("failed to init signal source", "err", err)
	}
	defer closeSource()

	actuator := buildActuator(cfg, log)
	// Fail-safe: the relay starts OFF no matter what the line held before.
	if err := actuator.Set(false); err != nil {
		log.Warnw("failed to force relay off at startup", "err", err)
	}

	runner := service.NewServiceToggle(cfg.ServiceTogglePath, sink, log)
	ctrl := service.NewController(source, repos.Events, sink, runner, cfg, log)
	worker := relay.NewWorker(actuator, ctrl, cfg.LoopDelay, log)

	ctrl.Start()
	worker.Start()

	watchdog := service.NewWatchdog(map[string]service.Loop{
		"controller": ctrl,
		"relay":      worker,
	}, sink, log)
	watchdog.Start()

	services := service.NewService(ctrl, repos)
	apiHandler := handlers.NewHandler(services, log)

	srv := &server.Server{}
	go func() {
		if err := srv.Run(cfg.HTTPPort, apiHandler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
	log.Infow("pump station started", "port", cfg.HTTPPort, "signal_source", cfg.SignalSource)

	waitForShutdown(srv, watchdog, ctrl, worker, actuator, log)
}

func buildErrorSink(cfg *config.Config, repos *repository.Repository) (errlog.Sink, error) {
	fileSink, err := errlog.NewFileSink(cfg.ErrorLogPath)
	if err != nil {
		return nil, err
	}
	return errlog.Multi(fileSink, errlog.NewRepoSink(repos.ErrorLogs)), nil
}

func buildSignalSource(cfg *config.Config) (signal.Source, func(), error) {
	switch cfg.SignalSource {
	case config.SourceMQTT:
		src, err := signal.NewMQTTSource(cfg.MQTTBroker, cfg.MQTTTopic, "sappump-controller", cfg.ADCStale)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	case config.SourceCache:
		return signal.NewCacheSource(cfg.CachePath, cfg.ADCStale), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown signal source %q", cfg.SignalSource)
	}
}

// buildActuator opens the relay line; when the GPIO chip is unavailable the
// station still runs, it just cannot drive the pump.
func buildActuator(cfg *config.Config, log *logger.Logger) relay.Actuator {
	actuator, err := relay.NewLineActuator(cfg.RelayChip, cfg.RelayLine)
	if err != nil {
		log.Warnw("gpio unavailable; relay control disabled", "chip", cfg.RelayChip, "line", cfg.RelayLine, "err", err)
		return relay.Noop()
	}
	return actuator
}

// waitForShutdown blocks on termination signals, then stops the loops and
// forces the relay OFF before releasing the line.
func waitForShutdown(srv *server.Server, watchdog *service.Watchdog, ctrl *service.Controller, worker *relay.Worker, actuator relay.Actuator, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	ossignal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down pump station...")

	watchdog.Stop()
	ctrl.Stop()
	worker.Stop()
	if err := actuator.Close(); err != nil {
		log.Errorw("failed to release relay line", "err", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}

