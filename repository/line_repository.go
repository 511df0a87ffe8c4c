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

// LineRepositoryImpl implements LineRepository interface
type LineRepositoryImpl struct {
	*BaseRepository[models.Line]
}

// NewLineRepository creates a new line repository
func NewLineRepository(db *gorm.DB) LineRepository {
	return &LineRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Line](db),
	}
}

// ByID retrieves a line by id, nil when absent
func (r *LineRepositoryImpl) ByID(ctx context.Context, id int) (*models.Line, error) {
	db := r.getDB(ctx)

	var line models.Line
	err := db.Preload("Endpoint").Preload("Channels").Where("id = ?", id).First(&line).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find line by id: %w", err)
	}

	return &line, nil
}

// ByEndpointName retrieves the line referencing the endpoint, nil when absent
func (r *LineRepositoryImpl) ByEndpointName(ctx context.Context, endpointName string) (*models.Line, error) {
	db := r.getDB(ctx)

	var line models.Line
	err := db.Preload("Endpoint").Preload("Channels").Where("endpoint_name = ?", endpointName).First(&line).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find line by endpoint name: %w", err)
	}

	return &line, nil
}

// List retrieves all lines
func (r *LineRepositoryImpl) List(ctx context.Context) ([]*models.Line, error) {
	db := r.getDB(ctx)

	var lines []*models.Line
	if err := db.Find(&lines).Error; err != nil {
		return nil, fmt.Errorf("failed to list lines: %w", err)
	}

	return lines, nil
}

// Save inserts a line; a duplicate id is a silent no-op
func (r *LineRepositoryImpl) Save(ctx context.Context, line *models.Line) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(line).Error
		if err != nil {
			return fmt.Errorf("failed to save line: %w", err)
		}
		return nil
	})
}

// Delete removes a line and its channels
func (r *LineRepositoryImpl) Delete(ctx context.Context, id int) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("line_id = ?", id).Delete(&models.Channel{}).Error; err != nil {
			return fmt.Errorf("failed to delete line channels: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&models.Line{}).Error; err != nil {
			return fmt.Errorf("failed to delete line: %w", err)
		}
		return nil
	})
}

// AssociateEndpoint points the line at the endpoint
func (r *LineRepositoryImpl) AssociateEndpoint(ctx context.Context, id int, endpointName string) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.Line{}).Where("id = ?", id).Update("endpoint_name", endpointName)
		if res.Error != nil {
			return fmt.Errorf("failed to associate endpoint: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
