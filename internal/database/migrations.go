package database

import (
	"errors"
	"time"

	"github.com/Meet1306/Whiteboard/internal/boards"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillEmptyElements = "2026-03-01_backfill_empty_elements"
	migrationLowercaseShareEmails  = "2026-03-08_lowercase_share_emails"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(&boards.Board{}, &boards.BoardShare{}, &boards.Comment{}, &migrationRecord{}); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillEmptyElements, apply: backfillEmptyElements},
		{name: migrationLowercaseShareEmails, apply: lowercaseShareEmails},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func backfillEmptyElements(db *gorm.DB) error {
	return db.Model(&boards.Board{}).
		Where("elements_json = ? OR elements_json = ?", "", "null").
		Update("elements_json", "[]").Error
}

func lowercaseShareEmails(db *gorm.DB) error {
	if err := db.Exec("UPDATE board_shares SET email = LOWER(email) WHERE email <> LOWER(email)").Error; err != nil {
		return err
	}
	return db.Exec("UPDATE boards SET owner_email = LOWER(owner_email) WHERE owner_email <> LOWER(owner_email)").Error
}
