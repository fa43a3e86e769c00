package main

import (
	"b3repro/config"
	"b3repro/internal/proc"
	"b3repro/internal/repro"
	"b3repro/internal/syncdir"
	"b3repro/pkg/heartbeat"
	"b3repro/pkg/logger"
	"b3repro/pkg/telemetry"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,      // inject config
			config.LoadTaskConfig,  // inject task definition
			logger.NewLogger,       // inject logger
			telemetry.NewTelemetry, // inject telemetry
			heartbeat.NewReporter,  // inject liveness reporter
			syncdir.NewClient,      // inject directory sync client
			syncdir.NewMonitor,     // inject crash dir monitor
			proc.NewSupervisor,     // inject process supervisor
		),
		fx.Invoke(
			repro.NewTask,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			zlogger := fxevent.ZapLogger{Logger: log}
			zlogger.UseLogLevel(zap.DebugLevel)
			return &zlogger
		}),
	)
	app.Run()
}
