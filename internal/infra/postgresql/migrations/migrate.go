package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notify-worker/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createUsersTable(),
		createNotificationsTable(),
		createDeliveryAttemptsTable(),
	})

	return m.Migrate()
}

func createUsersTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_users",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.UserModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.UserModel{})
		},
	}
}

func createNotificationsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_notifications",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.NotificationModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_notifications_user_id ON notifications (user_id)`,
				`CREATE INDEX IF NOT EXISTS idx_notifications_status_created ON notifications (status, created_at)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.NotificationModel{})
		},
	}
}

func createDeliveryAttemptsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_delivery_attempts",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryAttemptModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_delivery_attempts_notification_id ON delivery_attempts (notification_id)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryAttemptModel{})
		},
	}
}
