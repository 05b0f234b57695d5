package main

import (
	"go.uber.org/fx"

	"segflow/internal/config"
	"segflow/internal/configset"
	"segflow/internal/execution"
	"segflow/internal/flowexec"
	"segflow/internal/httpapi"
	"segflow/internal/ingress"
	"segflow/internal/logger"
	"segflow/internal/mailer"
	"segflow/internal/membership"
	"segflow/internal/sandbox"
	"segflow/internal/segment"
	"segflow/internal/server"
	"segflow/internal/worker"
	"segflow/pkg/db"
)

func main() {
	app := fx.New(
		fx.Provide(config.Load),
		logger.Module,
		db.Module,
		sandbox.Module,
		segment.Module,
		execution.Module,
		membership.Module,
		mailer.Module,
		flowexec.Module,
		worker.Module,
		configset.Module,
		ingress.Module,
		httpapi.Module,
		server.Module,
	)

	app.Run()
}
