package ingress

import "go.uber.org/fx"

var Module = fx.Module("ingress",
	fx.Provide(New),
)
