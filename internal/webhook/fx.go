package webhook

import (
	"github.com/smallbiznis/stripesync/internal/webhook/dispatcher"
	"github.com/smallbiznis/stripesync/internal/webhook/handlers"
	"github.com/smallbiznis/stripesync/internal/webhook/repository"
	"github.com/smallbiznis/stripesync/internal/webhook/resolver"
	"github.com/smallbiznis/stripesync/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(repository.Provide),
	fx.Provide(resolver.New),
	fx.Provide(dispatcher.New),
	fx.Provide(handlers.New),
	fx.Provide(service.New),
	fx.Invoke(func(h *handlers.Handlers, d *dispatcher.Dispatcher) {
		h.Register(d)
	}),
)
