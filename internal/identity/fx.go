package identity

import (
	"github.com/smallbiznis/stripesync/internal/identity/local"
	"go.uber.org/fx"
)

var Module = fx.Module("identity",
	fx.Provide(local.New),
)
