// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/callwatch/presenced/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TenantRepositoryImpl implements TenantRepository interface
type TenantRepositoryImpl struct {
	*BaseRepository[models.Tenant]
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &TenantRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Tenant](db),
	}
}

// ByUUID retrieves a tenant by its UUID, nil when absent
func (r *TenantRepositoryImpl) ByUUID(ctx context.Context, tenantUUID uuid.UUID) (*models.Tenant, error) {
	db := r.getDB(ctx)

	var tenant models.Tenant
	err := db.Where("uuid = ?", tenantUUID).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find tenant by uuid: %w", err)
	}

	return &tenant, nil
}

// List retrieves all tenants
func (r *TenantRepositoryImpl) List(ctx context.Context) ([]*models.Tenant, error) {
	db := r.getDB(ctx)

	var tenants []*models.Tenant
	if err := db.Find(&tenants).Error; err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	return tenants, nil
}

// FindOrCreate atomically inserts the tenant if absent and returns it
func (r *TenantRepositoryImpl) FindOrCreate(ctx context.Context, tenantUUID uuid.UUID) (*models.Tenant, error) {
	tenant := models.Tenant{UUID: tenantUUID}

	err := r.write(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&tenant).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find or create tenant: %w", err)
	}

	return r.ByUUID(ctx, tenantUUID)
}

// Delete removes a tenant and everything hanging off its users. Children are
// deleted explicitly, deepest first, so the operation does not depend on
// database-level cascades being present.
func (r *TenantRepositoryImpl) Delete(ctx context.Context, tenantUUID uuid.UUID) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		userUUIDs := tx.Model(&models.User{}).Select("uuid").Where("tenant_uuid = ?", tenantUUID)
		lineIDs := tx.Model(&models.Line{}).Select("id").Where("user_uuid IN (?)", userUUIDs)

		if err := tx.Where("line_id IN (?)", lineIDs).Delete(&models.Channel{}).Error; err != nil {
			return fmt.Errorf("failed to delete tenant channels: %w", err)
		}
		if err := tx.Where("user_uuid IN (?)", userUUIDs).Delete(&models.Line{}).Error; err != nil {
			return fmt.Errorf("failed to delete tenant lines: %w", err)
		}
		if err := tx.Where("user_uuid IN (?)", userUUIDs).Delete(&models.Session{}).Error; err != nil {
			return fmt.Errorf("failed to delete tenant sessions: %w", err)
		}
		if err := tx.Where("user_uuid IN (?)", userUUIDs).Delete(&models.RefreshToken{}).Error; err != nil {
			return fmt.Errorf("failed to delete tenant refresh tokens: %w", err)
		}
		if err := tx.Where("tenant_uuid = ?", tenantUUID).Delete(&models.User{}).Error; err != nil {
			return fmt.Errorf("failed to delete tenant users: %w", err)
		}
		if err := tx.Where("uuid = ?", tenantUUID).Delete(&models.Tenant{}).Error; err != nil {
			return fmt.Errorf("failed to delete tenant: %w", err)
		}
		return nil
	})
}
