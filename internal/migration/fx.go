package migration

import (
	"github.com/weldvault/weldvault/internal/config"
	entitlementrepository "github.com/weldvault/weldvault/internal/entitlement/repository"
	paymentdomain "github.com/weldvault/weldvault/internal/payment/domain"
	subscriptiondomain "github.com/weldvault/weldvault/internal/subscription/domain"
	workspacedomain "github.com/weldvault/weldvault/internal/workspace/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// Dev databases (sqlite, mysql) take the schema straight
			// from the models.
			return conn.AutoMigrate(
				&workspacedomain.MembershipRecord{},
				&workspacedomain.WorkspacePointer{},
				&subscriptiondomain.Subscription{},
				&paymentdomain.PaymentOrder{},
				&entitlementrepository.ResourceUsage{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
