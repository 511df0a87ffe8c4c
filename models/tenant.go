// Package models contains domain entities and business models for the presence service
package models

import (
	"time"

	"github.com/google/uuid"
)

type Tenant struct {
	UUID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"uuid"`
	CreatedAt time.Time `gorm:"type:timestamptz;default:CURRENT_TIMESTAMP" json:"created_at"`

	Users []User `gorm:"foreignKey:TenantUUID;references:UUID;constraint:OnDelete:CASCADE" json:"users,omitempty"`
}

func (Tenant) TableName() string {
	return "chatd_tenant"
}

// TenantFilter represents filter criteria for tenant queries
type TenantFilter struct {
	UUID  *uuid.UUID
	UUIDs *[]uuid.UUID
}
