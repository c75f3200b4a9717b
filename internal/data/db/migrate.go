package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/curriculum-engine/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(types.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating run-record tables")
	return AutoMigrateAll(s.db)
}
