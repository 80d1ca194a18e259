package initializers

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/mehra/filevault-backend/models"
)

// ConnectDatabase opens the PostgreSQL connection and migrates the schema.
func ConnectDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.File{},
		&models.AccessLog{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}
	return db, nil
}
