package segment

import "go.uber.org/fx"

var Module = fx.Module("segment",
	fx.Provide(New),
)
