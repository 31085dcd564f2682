package database

import (
	"gorm.io/gorm"

	"github.com/mrlokans/syncserver/internal/entities"
)

func (d *Database) GetAuthMethod(method entities.LoginMethod) (*entities.AuthMethod, error) {
	var row entities.AuthMethod
	err := d.DB.Where("method = ?", method).First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *Database) GetActiveAuthMethod() (*entities.AuthMethod, error) {
	var row entities.AuthMethod
	err := d.DB.Where("active = ?", true).First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// HasActiveAuthMethod reports whether any login method is currently active.
func (d *Database) HasActiveAuthMethod() (bool, error) {
	var count int64
	err := d.DB.Model(&entities.AuthMethod{}).Where("active = ?", true).Count(&count).Error
	return count > 0, err
}

// ReplaceActiveAuthMethod removes any prior row for the method, deactivates
// every method, and inserts the new row as the single active one, all inside
// one transaction. Readers never observe zero or two active rows.
func (d *Database) ReplaceActiveAuthMethod(row *entities.AuthMethod) error {
	return d.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("method = ?", row.Method).Delete(&entities.AuthMethod{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&entities.AuthMethod{}).Where("active = ?", true).Update("active", false).Error; err != nil {
			return err
		}
		row.Active = true
		return tx.Create(row).Error
	})
}

// ActivateAuthMethod flips the single active flag to an existing method row
// inside one transaction.
func (d *Database) ActivateAuthMethod(method entities.LoginMethod) error {
	return d.DB.Transaction(func(tx *gorm.DB) error {
		var row entities.AuthMethod
		if err := tx.Where("method = ?", method).First(&row).Error; err != nil {
			return err
		}
		if err := tx.Model(&entities.AuthMethod{}).Where("active = ?", true).Update("active", false).Error; err != nil {
			return err
		}
		return tx.Model(&entities.AuthMethod{}).Where("method = ?", method).Update("active", true).Error
	})
}

// UpdateAuthExtraData overwrites the stored payload for a method in place
// without touching the active flag.
func (d *Database) UpdateAuthExtraData(method entities.LoginMethod, extraData string) error {
	return d.DB.Model(&entities.AuthMethod{}).
		Where("method = ?", method).
		Update("extra_data", extraData).Error
}
