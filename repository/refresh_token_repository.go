// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/callwatch/presenced/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RefreshTokenRepositoryImpl implements RefreshTokenRepository interface
type RefreshTokenRepositoryImpl struct {
	*BaseRepository[models.RefreshToken]
}

// NewRefreshTokenRepository creates a new refresh token repository
func NewRefreshTokenRepository(db *gorm.DB) RefreshTokenRepository {
	return &RefreshTokenRepositoryImpl{
		BaseRepository: NewBaseRepository[models.RefreshToken](db),
	}
}

// ByKey retrieves a refresh token by its composite key, nil when absent
func (r *RefreshTokenRepositoryImpl) ByKey(ctx context.Context, userUUID uuid.UUID, clientID string) (*models.RefreshToken, error) {
	db := r.getDB(ctx)

	var token models.RefreshToken
	err := db.Where("client_id = ? AND user_uuid = ?", clientID, userUUID).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}

	return &token, nil
}

// List retrieves all refresh tokens
func (r *RefreshTokenRepositoryImpl) List(ctx context.Context) ([]*models.RefreshToken, error) {
	db := r.getDB(ctx)

	var tokens []*models.RefreshToken
	if err := db.Find(&tokens).Error; err != nil {
		return nil, fmt.Errorf("failed to list refresh tokens: %w", err)
	}

	return tokens, nil
}
