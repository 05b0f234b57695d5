// Package ingress holds the thin transactional entry points the HTTP layer
// calls: user and event ingestion, segment/campaign/template CRUD, email
// provider configuration, and whole-config pushes (the only way
// transactions are configured). Each method
// opens (or is handed) one *gorm.DB transaction and composes the engine
// components in internal/segment, internal/membership, internal/execution,
// internal/mailer, and internal/configset.
package ingress

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"segflow/internal/configset"
	"segflow/internal/execution"
	"segflow/internal/mailer"
	"segflow/internal/membership"
	"segflow/internal/segment"
)

// Services is the composition of every ingress entry point.
type Services struct {
	db         *gorm.DB
	segments   *segment.Evaluator
	membership *membership.Resolver
	executions *execution.Store
	dispatcher *mailer.Dispatcher
	reconciler *configset.Reconciler
	log        *zap.Logger
}

func New(
	db *gorm.DB,
	segments *segment.Evaluator,
	membershipResolver *membership.Resolver,
	executions *execution.Store,
	dispatcher *mailer.Dispatcher,
	reconciler *configset.Reconciler,
	log *zap.Logger,
) *Services {
	return &Services{
		db:         db,
		segments:   segments,
		membership: membershipResolver,
		executions: executions,
		dispatcher: dispatcher,
		reconciler: reconciler,
		log:        log,
	}
}
