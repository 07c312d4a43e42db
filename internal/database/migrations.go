package database

import (
	"gorm.io/gorm"

	"github.com/fusen-app/fusen/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
// Order matters: referenced tables migrate before their dependents so that
// foreign key constraints can be created.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Board{},
		&models.BoardMember{},
		&models.Task{},
		&models.Invitation{},
	)
}
