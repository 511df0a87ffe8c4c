// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/callwatch/presenced/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChannelRepositoryImpl implements ChannelRepository interface
type ChannelRepositoryImpl struct {
	*BaseRepository[models.Channel]
}

// NewChannelRepository creates a new channel repository
func NewChannelRepository(db *gorm.DB) ChannelRepository {
	return &ChannelRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Channel](db),
	}
}

// ByName retrieves a channel by name, nil when absent
func (r *ChannelRepositoryImpl) ByName(ctx context.Context, name string) (*models.Channel, error) {
	db := r.getDB(ctx)

	var channel models.Channel
	err := db.Where("name = ?", name).First(&channel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find channel by name: %w", err)
	}

	return &channel, nil
}

// Save inserts a channel; a duplicate name is a silent no-op
func (r *ChannelRepositoryImpl) Save(ctx context.Context, channel *models.Channel) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(channel).Error
		if err != nil {
			return fmt.Errorf("failed to save channel: %w", err)
		}
		return nil
	})
}

// UpdateState stores the new call state
func (r *ChannelRepositoryImpl) UpdateState(ctx context.Context, name, state string) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.Channel{}).Where("name = ?", name).Update("state", state)
		if res.Error != nil {
			return fmt.Errorf("failed to update channel state: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// Delete removes the channel; removing an absent channel is a no-op
func (r *ChannelRepositoryImpl) Delete(ctx context.Context, name string) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("name = ?", name).Delete(&models.Channel{}).Error; err != nil {
			return fmt.Errorf("failed to delete channel: %w", err)
		}
		return nil
	})
}

// DeleteAll removes every channel
func (r *ChannelRepositoryImpl) DeleteAll(ctx context.Context) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Channel{}).Error; err != nil {
			return fmt.Errorf("failed to delete channels: %w", err)
		}
		return nil
	})
}
