package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/mrlokans/syncserver/internal/entities"
)

func (d *Database) GetSecret(name string) (*entities.Secret, error) {
	var secret entities.Secret
	err := d.DB.Where("name = ?", name).First(&secret).Error
	if err != nil {
		return nil, err
	}
	return &secret, nil
}

func (d *Database) SecretExists(name string) (bool, error) {
	var count int64
	err := d.DB.Model(&entities.Secret{}).Where("name = ?", name).Count(&count).Error
	return count > 0, err
}

func (d *Database) SetSecret(name, value string) error {
	var secret entities.Secret
	result := d.DB.Where("name = ?", name).First(&secret)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		secret = entities.Secret{Name: name, Value: value}
		return d.DB.Create(&secret).Error
	} else if result.Error != nil {
		return result.Error
	}

	secret.Value = value
	return d.DB.Save(&secret).Error
}
