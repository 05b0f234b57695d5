package sandbox

import (
	"go.uber.org/fx"

	"segflow/internal/config"
)

var Module = fx.Module("sandbox",
	fx.Provide(provide),
)

func provide(cfg *config.Config) (*Sandbox, error) {
	timeout, err := cfg.ParsedSandboxTimeout()
	if err != nil {
		return nil, err
	}
	return New(timeout), nil
}
