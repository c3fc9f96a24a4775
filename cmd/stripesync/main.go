package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stripesync/internal/clock"
	"github.com/smallbiznis/stripesync/internal/config"
	"github.com/smallbiznis/stripesync/internal/customer"
	"github.com/smallbiznis/stripesync/internal/identity"
	"github.com/smallbiznis/stripesync/internal/lock"
	"github.com/smallbiznis/stripesync/internal/migration"
	"github.com/smallbiznis/stripesync/internal/observability"
	"github.com/smallbiznis/stripesync/internal/organization"
	"github.com/smallbiznis/stripesync/internal/payment"
	"github.com/smallbiznis/stripesync/internal/price"
	"github.com/smallbiznis/stripesync/internal/product"
	"github.com/smallbiznis/stripesync/internal/provisioning"
	"github.com/smallbiznis/stripesync/internal/secrets"
	"github.com/smallbiznis/stripesync/internal/server"
	"github.com/smallbiznis/stripesync/internal/subscription"
	"github.com/smallbiznis/stripesync/internal/transaction"
	"github.com/smallbiznis/stripesync/internal/webhook"
	"github.com/smallbiznis/stripesync/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		secrets.Module,
		lock.Module,

		// Functional Domains
		organization.Module,
		identity.Module,
		provisioning.Module,
		customer.Module,
		transaction.Module,
		subscription.Module,
		product.Module,
		price.Module,
		payment.Module,
		webhook.Module,

		server.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
	app.Run()
}

// RegisterSnowflake reads the node id from SNOWFLAKE_NODE, defaulting to 1.
func RegisterSnowflake() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		nodeID = parsed
	}
	return snowflake.NewNode(nodeID)
}
