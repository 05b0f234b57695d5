// Package logger provides the process-wide zap logger.
package logger

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"segflow/internal/config"
)

// Module provides the zap.Logger for fx injection.
var Module = fx.Module("logger",
	fx.Provide(New),
)

// New builds a development-mode console logger unless AppEnv is
// "production", in which case it builds a JSON encoder with ISO8601
// timestamps.
func New(cfg *config.Config) (*zap.Logger, error) {
	if cfg.AppEnv != "production" {
		log := zap.Must(zap.NewDevelopment())
		zap.ReplaceGlobals(log)
		return log, nil
	}

	prodCfg := zap.NewProductionConfig()
	prodCfg.EncoderConfig.TimeKey = "timestamp"
	prodCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	prodCfg.EncoderConfig.LevelKey = "severity"
	prodCfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	prodCfg.EncoderConfig.CallerKey = "caller"
	prodCfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	prodCfg.Encoding = "json"
	prodCfg.OutputPaths = []string{"stdout"}
	prodCfg.ErrorOutputPaths = []string{"stderr"}

	log, err := prodCfg.Build()
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("env", cfg.AppEnv))
	zap.ReplaceGlobals(log)
	return log, nil
}
