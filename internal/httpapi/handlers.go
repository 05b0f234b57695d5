package httpapi

import (
	"go.uber.org/zap"

	"segflow/internal/ingress"
)

type handlers struct {
	services *ingress.Services
	log      *zap.Logger
}
