package dto

// UserPresenceDTO is the serialized presence of one user, including the
// derived fields recomputed at serialization time.
type UserPresenceDTO struct {
	UUID         string               `json:"uuid"`
	TenantUUID   string               `json:"tenant_uuid"`
	State        string               `json:"state"`
	Status       *string              `json:"status"`
	LastActivity *string              `json:"last_activity"`
	LineState    string               `json:"line_state"`
	DoNotDisturb bool                 `json:"do_not_disturb"`
	Mobile       bool                 `json:"mobile"`
	Connected    bool                 `json:"connected"`
	Sessions     []SessionPresenceDTO `json:"sessions"`
	Lines        []LinePresenceDTO    `json:"lines"`
}

// SessionPresenceDTO is a session as exposed in presence documents
type SessionPresenceDTO struct {
	UUID   string `json:"uuid"`
	Mobile bool   `json:"mobile"`
}

// LinePresenceDTO is a line with its derived call state
type LinePresenceDTO struct {
	ID    int    `json:"id"`
	State string `json:"state"`
}

// PresenceListResponse wraps a presence listing
type PresenceListResponse struct {
	Items []UserPresenceDTO `json:"items"`
	Total int               `json:"total"`
}

// PutPresenceRequest is the body of PUT /1.0/users/{uuid}/presences
type PutPresenceRequest struct {
	UUID   string  `json:"uuid" validate:"required,uuid"`
	State  string  `json:"state" validate:"required,oneof=available away invisible unavailable"`
	Status *string `json:"status" validate:"omitempty,max=255"`
}
