// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/callwatch/presenced/models"
	"github.com/callwatch/presenced/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepositoryImpl implements UserRepository interface
type UserRepositoryImpl struct {
	*BaseRepository[models.User]
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &UserRepositoryImpl{
		BaseRepository: NewBaseRepository[models.User](db),
	}
}

// withPresenceLoads eager-loads everything the presence projection needs.
func withPresenceLoads(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Sessions").
		Preload("RefreshTokens").
		Preload("Lines").
		Preload("Lines.Endpoint").
		Preload("Lines.Channels")
}

// ByUUID retrieves a user with sessions, refresh tokens and lines, nil when absent
func (r *UserRepositoryImpl) ByUUID(ctx context.Context, userUUID uuid.UUID) (*models.User, error) {
	db := r.getDB(ctx)

	var user models.User
	err := withPresenceLoads(db).Where("uuid = ?", userUUID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user by uuid: %w", err)
	}

	return &user, nil
}

// List retrieves users matching the filter, eager-loaded for projection.
// A nil UUIDs/TenantUUIDs pointer means no filtering on that field; a pointer
// to an empty slice matches nothing.
func (r *UserRepositoryImpl) List(ctx context.Context, filter models.UserFilter) ([]*models.User, error) {
	db := withPresenceLoads(r.getDB(ctx))

	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.TenantUUID != nil {
		db = db.Where("tenant_uuid = ?", *filter.TenantUUID)
	}
	if filter.UUIDs != nil {
		if len(*filter.UUIDs) == 0 {
			return nil, nil
		}
		db = db.Where("uuid IN ?", *filter.UUIDs)
	}
	if filter.TenantUUIDs != nil {
		if len(*filter.TenantUUIDs) == 0 {
			return nil, nil
		}
		db = db.Where("tenant_uuid IN ?", *filter.TenantUUIDs)
	}

	var users []*models.User
	if err := db.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return users, nil
}

// Delete removes a user and its children, deepest first
func (r *UserRepositoryImpl) Delete(ctx context.Context, userUUID uuid.UUID) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		lineIDs := tx.Model(&models.Line{}).Select("id").Where("user_uuid = ?", userUUID)

		if err := tx.Where("line_id IN (?)", lineIDs).Delete(&models.Channel{}).Error; err != nil {
			return fmt.Errorf("failed to delete user channels: %w", err)
		}
		if err := tx.Where("user_uuid = ?", userUUID).Delete(&models.Line{}).Error; err != nil {
			return fmt.Errorf("failed to delete user lines: %w", err)
		}
		if err := tx.Where("user_uuid = ?", userUUID).Delete(&models.Session{}).Error; err != nil {
			return fmt.Errorf("failed to delete user sessions: %w", err)
		}
		if err := tx.Where("user_uuid = ?", userUUID).Delete(&models.RefreshToken{}).Error; err != nil {
			return fmt.Errorf("failed to delete user refresh tokens: %w", err)
		}
		if err := tx.Where("uuid = ?", userUUID).Delete(&models.User{}).Error; err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		return nil
	})
}

// UpdatePresence overwrites the user's presence scalars. lastActivity is only
// touched when provided.
func (r *UserRepositoryImpl) UpdatePresence(ctx context.Context, userUUID uuid.UUID, state string, status *string, lastActivity *time.Time) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		updates := map[string]any{
			"state":      state,
			"status":     status,
			"updated_at": utils.UTCNow(),
		}
		if lastActivity != nil {
			updates["last_activity"] = *lastActivity
		}

		res := tx.Model(&models.User{}).Where("uuid = ?", userUUID).Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to update user presence: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// SetDoNotDisturb overwrites the user's DND flag
func (r *UserRepositoryImpl) SetDoNotDisturb(ctx context.Context, userUUID uuid.UUID, enabled bool) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).Where("uuid = ?", userUUID).
			Updates(map[string]any{"do_not_disturb": enabled, "updated_at": utils.UTCNow()})
		if res.Error != nil {
			return fmt.Errorf("failed to update user do_not_disturb: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// AddSession upserts a session by uuid: a pre-existing session with the same
// uuid is superseded regardless of which user it belonged to.
func (r *UserRepositoryImpl) AddSession(ctx context.Context, session *models.Session) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("uuid = ?", session.UUID).Delete(&models.Session{}).Error; err != nil {
			return fmt.Errorf("failed to supersede session: %w", err)
		}
		if err := tx.Create(session).Error; err != nil {
			return fmt.Errorf("failed to add session: %w", err)
		}
		return nil
	})
}

// RemoveSession removes the session; removing an absent session is a no-op
func (r *UserRepositoryImpl) RemoveSession(ctx context.Context, userUUID, sessionUUID uuid.UUID) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		err := tx.Where("uuid = ? AND user_uuid = ?", sessionUUID, userUUID).Delete(&models.Session{}).Error
		if err != nil {
			return fmt.Errorf("failed to remove session: %w", err)
		}
		return nil
	})
}

// AddRefreshToken upserts by (client_id, user_uuid); a duplicate replaces
func (r *UserRepositoryImpl) AddRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_id"}, {Name: "user_uuid"}},
			DoUpdates: clause.AssignmentColumns([]string{"mobile"}),
		}).Create(token).Error
		if err != nil {
			return fmt.Errorf("failed to add refresh token: %w", err)
		}
		return nil
	})
}

// RemoveRefreshToken removes the token; removing an absent token is a no-op
func (r *UserRepositoryImpl) RemoveRefreshToken(ctx context.Context, userUUID uuid.UUID, clientID string) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		err := tx.Where("client_id = ? AND user_uuid = ?", clientID, userUUID).Delete(&models.RefreshToken{}).Error
		if err != nil {
			return fmt.Errorf("failed to remove refresh token: %w", err)
		}
		return nil
	})
}
