package migration

import (
	"github.com/smallbiznis/perishables/internal/clock"
	"github.com/smallbiznis/perishables/internal/config"
	"github.com/smallbiznis/perishables/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, clk clock.Clock, log *zap.Logger) error {
		log = log.Named("migration")
		if err := Migrate(conn); err != nil {
			return err
		}
		log.Info("schema ready", zap.String("dialect", conn.Dialector.Name()))

		if !cfg.SeedDemoData {
			return nil
		}
		return seed.EnsureDemoData(conn, clk.Now())
	}),
)
