package migration

import (
	"github.com/smallbiznis/stripesync/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.MigrateOnStart {
			return nil
		}
		switch cfg.DBType {
		case "postgres":
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		case "sqlite":
			return ApplySQLite(conn)
		default:
			log.Warn("schema migrations are only bundled for postgres and sqlite", zap.String("db_type", cfg.DBType))
			return nil
		}
	}),
)
