package flowexec

import "go.uber.org/fx"

var Module = fx.Module("flowexec",
	fx.Provide(New),
)
