package database

import (
	"fmt"
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/syncserver/internal/entities"
)

// defaultRoles are seeded at migration time. The Admin role must exist before
// the first password login can assign it to the sentinel user; a missing row
// is treated as data corruption by the authenticators.
var defaultRoles = []entities.Role{
	{ID: entities.RoleAdminID, Name: entities.RoleAdminName},
	{ID: entities.RoleBasicID, Name: entities.RoleBasicName},
}

// Database is the store adapter owning the persisted account relations
// (users, auth, roles, user_roles, sessions) plus the pending federated
// states and the secrets table. All other packages hold only transient ids
// and tokens.
type Database struct {
	DB *gorm.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	err = db.AutoMigrate(
		&entities.User{},
		&entities.AuthMethod{},
		&entities.Role{},
		&entities.UserRole{},
		&entities.Session{},
		&entities.PendingOpenIDState{},
		&entities.Secret{},
		&entities.AuditEvent{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	database := &Database{DB: db}

	if err := database.seedRoles(); err != nil {
		return nil, fmt.Errorf("failed to seed roles: %w", err)
	}

	log.Printf("Database initialized successfully at %s", dbPath)

	return database, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *Database) seedRoles() error {
	for _, role := range defaultRoles {
		var existing entities.Role
		result := d.DB.Where("id = ?", role.ID).First(&existing)
		if result.Error == gorm.ErrRecordNotFound {
			if err := d.DB.Create(&role).Error; err != nil {
				return fmt.Errorf("failed to create role %s: %w", role.Name, err)
			}
		}
	}
	return nil
}
