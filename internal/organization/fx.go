package organization

import (
	"context"

	"github.com/smallbiznis/stripesync/internal/config"
	"github.com/smallbiznis/stripesync/internal/organization/domain"
	"github.com/smallbiznis/stripesync/internal/organization/repository"
	"github.com/smallbiznis/stripesync/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Invoke(bootstrap),
)

func bootstrap(lc fx.Lifecycle, cfg config.Config, svc domain.Service) {
	if !cfg.Bootstrap.Enabled() {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_, err := svc.EnsureOrganization(ctx, domain.EnsureOrganizationRequest{
				Name:                cfg.Bootstrap.OrgName,
				StripeSecretKey:     cfg.Bootstrap.StripeSecretKey,
				StripeWebhookSecret: cfg.Bootstrap.StripeWebhookSecret,
			})
			return err
		},
	})
}
