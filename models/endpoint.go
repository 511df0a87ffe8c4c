package models

// Endpoint reachability states
const (
	EndpointStateAvailable   = "available"
	EndpointStateUnavailable = "unavailable"
)

// Endpoint is a telephony device identity (e.g. "PJSIP/alice"). Its
// lifecycle is independent of lines; it appears on first reference.
type Endpoint struct {
	Name  string `gorm:"size:255;primaryKey" json:"name"`
	State string `gorm:"size:24;not null;default:'unavailable';check:state IN ('available','unavailable')" json:"state"`
}

func (Endpoint) TableName() string {
	return "chatd_endpoint"
}

// EndpointFilter represents filter criteria for endpoint queries
type EndpointFilter struct {
	Name  *string
	State *string
}
