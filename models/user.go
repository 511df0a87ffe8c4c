package models

import (
	"time"

	"github.com/google/uuid"
)

// User presence states
const (
	UserStateAvailable   = "available"
	UserStateAway        = "away"
	UserStateInvisible   = "invisible"
	UserStateUnavailable = "unavailable"
)

// UserStates lists every state accepted by the store layer.
var UserStates = []string{
	UserStateAvailable,
	UserStateAway,
	UserStateInvisible,
	UserStateUnavailable,
}

type User struct {
	UUID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"uuid"`
	TenantUUID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_chatd_user_tenant_uuid" json:"tenant_uuid"`
	Tenant       Tenant     `gorm:"foreignKey:TenantUUID;references:UUID" json:"tenant,omitempty"`
	State        string     `gorm:"size:24;not null;default:'unavailable';check:state IN ('available','away','invisible','unavailable')" json:"state"`
	Status       *string    `gorm:"type:text" json:"status,omitempty"`
	DoNotDisturb *bool      `gorm:"default:false" json:"do_not_disturb"`
	LastActivity *time.Time `gorm:"type:timestamptz" json:"last_activity,omitempty"`
	CreatedAt    time.Time  `gorm:"type:timestamptz;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"type:timestamptz;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Sessions      []Session      `gorm:"foreignKey:UserUUID;references:UUID;constraint:OnDelete:CASCADE" json:"sessions,omitempty"`
	RefreshTokens []RefreshToken `gorm:"foreignKey:UserUUID;references:UUID;constraint:OnDelete:CASCADE" json:"refresh_tokens,omitempty"`
	Lines         []Line         `gorm:"foreignKey:UserUUID;references:UUID;constraint:OnDelete:CASCADE" json:"lines,omitempty"`
}

func (User) TableName() string {
	return "chatd_user"
}

// UserFilter represents filter criteria for user queries.
// A nil slice pointer means "no filtering on this field"; a pointer to an
// empty slice matches nothing.
type UserFilter struct {
	UUID        *uuid.UUID
	UUIDs       *[]uuid.UUID
	TenantUUID  *uuid.UUID
	TenantUUIDs *[]uuid.UUID
}

// IsValidUserState reports whether state is an accepted user presence state.
func IsValidUserState(state string) bool {
	for _, s := range UserStates {
		if s == state {
			return true
		}
	}
	return false
}
