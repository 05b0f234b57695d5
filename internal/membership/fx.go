package membership

import "go.uber.org/fx"

var Module = fx.Module("membership",
	fx.Provide(New),
)
