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

// EndpointRepositoryImpl implements EndpointRepository interface
type EndpointRepositoryImpl struct {
	*BaseRepository[models.Endpoint]
}

// NewEndpointRepository creates a new endpoint repository
func NewEndpointRepository(db *gorm.DB) EndpointRepository {
	return &EndpointRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Endpoint](db),
	}
}

// ByName retrieves an endpoint by name, nil when absent
func (r *EndpointRepositoryImpl) ByName(ctx context.Context, name string) (*models.Endpoint, error) {
	db := r.getDB(ctx)

	var endpoint models.Endpoint
	err := db.Where("name = ?", name).First(&endpoint).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find endpoint by name: %w", err)
	}

	return &endpoint, nil
}

// FindOrCreate atomically inserts the endpoint if absent and returns it
func (r *EndpointRepositoryImpl) FindOrCreate(ctx context.Context, name string) (*models.Endpoint, error) {
	endpoint := models.Endpoint{Name: name, State: models.EndpointStateUnavailable}

	err := r.write(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&endpoint).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find or create endpoint: %w", err)
	}

	return r.ByName(ctx, name)
}

// UpdateState stores the new state, creating the endpoint if needed, and
// reports whether the stored state actually changed.
func (r *EndpointRepositoryImpl) UpdateState(ctx context.Context, name, state string) (bool, error) {
	changed := false
	err := r.write(ctx, func(tx *gorm.DB) error {
		var endpoint models.Endpoint
		err := tx.Where("name = ?", name).First(&endpoint).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			changed = true
			return tx.Create(&models.Endpoint{Name: name, State: state}).Error
		}
		if err != nil {
			return fmt.Errorf("failed to find endpoint: %w", err)
		}
		if endpoint.State == state {
			return nil
		}
		changed = true
		return tx.Model(&models.Endpoint{}).Where("name = ?", name).Update("state", state).Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to update endpoint state: %w", err)
	}
	return changed, nil
}

// DeleteAll removes every endpoint, nulling the lines that reference them
func (r *EndpointRepositoryImpl) DeleteAll(ctx context.Context) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		if err := tx.Model(&models.Line{}).Where("endpoint_name IS NOT NULL").
			Update("endpoint_name", nil).Error; err != nil {
			return fmt.Errorf("failed to detach lines from endpoints: %w", err)
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Endpoint{}).Error; err != nil {
			return fmt.Errorf("failed to delete endpoints: %w", err)
		}
		return nil
	})
}
