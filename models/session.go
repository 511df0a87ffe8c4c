package models

import (
	"github.com/google/uuid"
)

type Session struct {
	UUID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"uuid"`
	UserUUID uuid.UUID `gorm:"type:uuid;not null;index:idx_chatd_session_user_uuid" json:"user_uuid"`
	Mobile   bool      `gorm:"not null;default:false" json:"mobile"`
}

func (Session) TableName() string {
	return "chatd_session"
}

// SessionFilter represents filter criteria for session queries
type SessionFilter struct {
	UUID     *uuid.UUID
	UserUUID *uuid.UUID
}
