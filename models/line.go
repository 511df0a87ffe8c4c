package models

import (
	"github.com/google/uuid"
)

// Line media types
const (
	LineMediaAudio = "audio"
	LineMediaVideo = "video"
)

// Derived line states, never stored. See projection.go.
const (
	LineStateUnavailable = "unavailable"
	LineStateAvailable   = "available"
	LineStateProgressing = "progressing"
	LineStateRinging     = "ringing"
	LineStateTalking     = "talking"
	LineStateHolding     = "holding"
)

// Line is a user's subscription to a telephony endpoint. IDs come from the
// configuration service and are never generated locally.
type Line struct {
	ID           int       `gorm:"primaryKey;autoIncrement:false" json:"id"`
	UserUUID     uuid.UUID `gorm:"type:uuid;not null;index:idx_chatd_line_user_uuid" json:"user_uuid"`
	EndpointName *string   `gorm:"size:255;index:idx_chatd_line_endpoint_name" json:"endpoint_name,omitempty"`
	Endpoint     *Endpoint `gorm:"foreignKey:EndpointName;references:Name;constraint:OnDelete:SET NULL" json:"endpoint,omitempty"`
	Media        *string   `gorm:"size:24;check:media IN ('audio','video')" json:"media,omitempty"`

	Channels []Channel `gorm:"foreignKey:LineID;references:ID;constraint:OnDelete:CASCADE" json:"channels,omitempty"`
}

func (Line) TableName() string {
	return "chatd_line"
}

// LineFilter represents filter criteria for line queries
type LineFilter struct {
	ID           *int
	UserUUID     *uuid.UUID
	EndpointName *string
}
