// Package bus consumes platform events and publishes presence updates over AMQP
package bus

import (
	"github.com/google/uuid"
)

// Event names consumed from the headers exchange. The routing table in
// handlers.go binds each one to exactly one handler.
const (
	EventTenantCreated = "auth_tenant_added"
	EventTenantDeleted = "auth_tenant_deleted"

	EventUserCreated = "user_created"
	EventUserUpdated = "user_updated"
	EventUserDeleted = "user_deleted"

	EventSessionCreated = "auth_session_created"
	EventSessionDeleted = "auth_session_deleted"

	EventRefreshTokenCreated = "auth_refresh_token_created"
	EventRefreshTokenDeleted = "auth_refresh_token_deleted"

	EventUserLineAssociated  = "user_line_associated"
	EventUserLineDissociated = "user_line_dissociated"

	EventUserDNDUpdated = "users_services_dnd_updated"

	EventDeviceStateChanged = "DeviceStateChange"
	EventChannelCreated     = "Newchannel"
	EventChannelStateChange = "Newstate"
	EventChannelHold        = "Hold"
	EventChannelUnhold      = "Unhold"
	EventChannelHangup      = "Hangup"

	EventFullyBooted = "asterisk_fully_booted"

	EventExternalAuthAdded   = "auth_user_external_auth_added"
	EventExternalAuthDeleted = "auth_user_external_auth_deleted"
)

// Published event
const (
	EventPresenceUpdated = "chatd_presence_updated"
)

// TenantEvent is the payload of tenant lifecycle events
type TenantEvent struct {
	UUID uuid.UUID `json:"uuid"`
}

// UserEvent is the payload of user lifecycle events
type UserEvent struct {
	UUID       uuid.UUID `json:"uuid"`
	TenantUUID uuid.UUID `json:"tenant_uuid"`
}

// UserUpdatedEvent carries the user's configured lines after a directory edit
type UserUpdatedEvent struct {
	UUID       uuid.UUID     `json:"uuid"`
	TenantUUID uuid.UUID     `json:"tenant_uuid"`
	Lines      []LinePayload `json:"lines"`
}

// SessionEvent is the payload of session lifecycle events
type SessionEvent struct {
	UUID       uuid.UUID `json:"uuid"`
	UserUUID   uuid.UUID `json:"user_uuid"`
	TenantUUID uuid.UUID `json:"tenant_uuid"`
	Mobile     bool      `json:"mobile"`
}

// RefreshTokenEvent is the payload of refresh token lifecycle events
type RefreshTokenEvent struct {
	ClientID   string    `json:"client_id"`
	UserUUID   uuid.UUID `json:"user_uuid"`
	TenantUUID uuid.UUID `json:"tenant_uuid"`
	Mobile     bool      `json:"mobile"`
}

// LinePayload is the line fragment of line association events. Exactly one
// endpoint field is non-nil and selects the technology.
type LinePayload struct {
	ID             int             `json:"id"`
	Name           string          `json:"name"`
	EndpointSIP    *map[string]any `json:"endpoint_sip"`
	EndpointSCCP   *map[string]any `json:"endpoint_sccp"`
	EndpointCustom *map[string]any `json:"endpoint_custom"`
}

// UserLineEvent is the payload of line association events
type UserLineEvent struct {
	User struct {
		UUID       uuid.UUID `json:"uuid"`
		TenantUUID uuid.UUID `json:"tenant_uuid"`
	} `json:"user"`
	Line LinePayload `json:"line"`
}

// DNDEvent is the payload of do-not-disturb updates
type DNDEvent struct {
	UserUUID uuid.UUID `json:"user_uuid"`
	Enabled  bool      `json:"enabled"`
}

// DeviceStateEvent is the AMI DeviceStateChange payload
type DeviceStateEvent struct {
	Device string `json:"Device"`
	State  string `json:"State"`
}

// ChannelEvent covers the AMI channel lifecycle payloads
type ChannelEvent struct {
	Channel          string `json:"Channel"`
	ChannelStateDesc string `json:"ChannelStateDesc"`
}

// ExternalAuthEvent is the payload of external auth lifecycle events
type ExternalAuthEvent struct {
	UserUUID         uuid.UUID `json:"user_uuid"`
	ExternalAuthName string    `json:"external_auth_name"`
}
