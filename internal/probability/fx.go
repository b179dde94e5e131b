package probability

import "go.uber.org/fx"

var Module = fx.Module("probability",
	fx.Provide(
		DefaultRegistry,
		func() Source { return NewCryptoSource() },
	),
)
