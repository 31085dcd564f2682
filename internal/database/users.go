package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/mrlokans/syncserver/internal/entities"
)

func (d *Database) GetUserByID(id string) (*entities.User, error) {
	var user entities.User
	err := d.DB.Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (d *Database) GetUserByUserName(userName string) (*entities.User, error) {
	var user entities.User
	err := d.DB.Where("user_name = ?", userName).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (d *Database) CountUsers() (int64, error) {
	var count int64
	err := d.DB.Model(&entities.User{}).Count(&count).Error
	return count, err
}

// CountOwners returns the number of users carrying the owner flag. A fresh
// install has zero; anything above one indicates tampering outside this core.
func (d *Database) CountOwners() (int64, error) {
	var count int64
	err := d.DB.Model(&entities.User{}).Where("owner = ?", true).Count(&count).Error
	return count, err
}

// CreateUserWithRole inserts a user and its role association as one
// transaction, so no request can observe the user without its role.
func (d *Database) CreateUserWithRole(user *entities.User, roleID string) error {
	return d.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		return tx.Create(&entities.UserRole{UserID: user.ID, RoleID: roleID}).Error
	})
}

func (d *Database) GetRoleByName(name string) (*entities.Role, error) {
	var role entities.Role
	err := d.DB.Where("name = ?", name).First(&role).Error
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// UserHasRole reports whether the user is associated with the named role.
func (d *Database) UserHasRole(userID, roleName string) (bool, error) {
	var count int64
	err := d.DB.Model(&entities.UserRole{}).
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id = ? AND roles.name = ?", userID, roleName).
		Count(&count).Error
	return count > 0, err
}

// RoleNamesForUser returns the names of all roles associated with the user.
func (d *Database) RoleNamesForUser(userID string) ([]string, error) {
	var names []string
	err := d.DB.Model(&entities.UserRole{}).
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id = ?", userID).
		Order("roles.name ASC").
		Pluck("roles.name", &names).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return names, nil
}
