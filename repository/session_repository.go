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

// SessionRepositoryImpl implements SessionRepository interface
type SessionRepositoryImpl struct {
	*BaseRepository[models.Session]
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &SessionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Session](db),
	}
}

// ByUUID retrieves a session by uuid, nil when absent
func (r *SessionRepositoryImpl) ByUUID(ctx context.Context, sessionUUID uuid.UUID) (*models.Session, error) {
	db := r.getDB(ctx)

	var session models.Session
	err := db.Where("uuid = ?", sessionUUID).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find session by uuid: %w", err)
	}

	return &session, nil
}

// List retrieves all sessions
func (r *SessionRepositoryImpl) List(ctx context.Context) ([]*models.Session, error) {
	db := r.getDB(ctx)

	var sessions []*models.Session
	if err := db.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return sessions, nil
}
