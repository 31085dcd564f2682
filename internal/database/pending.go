package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/mrlokans/syncserver/internal/entities"
)

func (d *Database) InsertPendingState(state *entities.PendingOpenIDState) error {
	return d.DB.Create(state).Error
}

// ConsumePendingState atomically looks up and deletes a pending state row, so
// a state value can be redeemed at most once. Returns gorm.ErrRecordNotFound
// for unknown or already-consumed states.
func (d *Database) ConsumePendingState(state string) (*entities.PendingOpenIDState, error) {
	var row entities.PendingOpenIDState
	err := d.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("state = ?", state).First(&row).Error; err != nil {
			return err
		}
		return tx.Where("state = ?", state).Delete(&entities.PendingOpenIDState{}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, err
	}
	return &row, nil
}

// DeleteExpiredPendingStates reclaims correlation rows whose replay window
// has closed.
func (d *Database) DeleteExpiredPendingStates(now int64) (int64, error) {
	result := d.DB.Where("expires_at < ?", now).Delete(&entities.PendingOpenIDState{})
	return result.RowsAffected, result.Error
}
