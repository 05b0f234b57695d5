package configset

import "go.uber.org/fx"

var Module = fx.Module("configset",
	fx.Provide(New),
)
