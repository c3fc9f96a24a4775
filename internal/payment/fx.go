package payment

import (
	"github.com/smallbiznis/stripesync/internal/payment/adapters/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.gateway",
	fx.Provide(stripe.NewFactory),
)
