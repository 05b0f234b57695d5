package execution

import "go.uber.org/fx"

var Module = fx.Module("execution",
	fx.Provide(New),
)
