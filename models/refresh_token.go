package models

import (
	"github.com/google/uuid"
)

// RefreshToken mirrors the auth service's refresh tokens. The composite
// (client_id, user_uuid) key means one token per client per user.
type RefreshToken struct {
	ClientID string    `gorm:"size:255;primaryKey" json:"client_id"`
	UserUUID uuid.UUID `gorm:"type:uuid;primaryKey;index:idx_chatd_refresh_token_user_uuid" json:"user_uuid"`
	Mobile   bool      `gorm:"not null;default:false" json:"mobile"`
}

func (RefreshToken) TableName() string {
	return "chatd_refresh_token"
}

// RefreshTokenFilter represents filter criteria for refresh token queries
type RefreshTokenFilter struct {
	ClientID *string
	UserUUID *uuid.UUID
}
