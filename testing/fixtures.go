package testing

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/callwatch/presenced/models"
	"github.com/callwatch/presenced/utils"
)

// NewTenant inserts a tenant
func NewTenant(db *gorm.DB) (*models.Tenant, error) {
	tenant := &models.Tenant{UUID: uuid.New()}
	if err := db.Create(tenant).Error; err != nil {
		return nil, err
	}
	return tenant, nil
}

// NewUser inserts an unavailable user under the tenant
func NewUser(db *gorm.DB, tenantUUID uuid.UUID) (*models.User, error) {
	user := &models.User{
		UUID:         uuid.New(),
		TenantUUID:   tenantUUID,
		State:        models.UserStateUnavailable,
		DoNotDisturb: utils.ToPtr(false),
	}
	if err := db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// NewSession inserts a session for the user
func NewSession(db *gorm.DB, userUUID uuid.UUID, mobile bool) (*models.Session, error) {
	session := &models.Session{UUID: uuid.New(), UserUUID: userUUID, Mobile: mobile}
	if err := db.Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

// NewLine inserts a line attached to the user, optionally bound to an
// endpoint that is created on the fly.
func NewLine(db *gorm.DB, id int, userUUID uuid.UUID, endpointName string) (*models.Line, error) {
	line := &models.Line{ID: id, UserUUID: userUUID}
	if endpointName != "" {
		endpoint := &models.Endpoint{Name: endpointName, State: models.EndpointStateUnavailable}
		if err := db.Where(models.Endpoint{Name: endpointName}).FirstOrCreate(endpoint).Error; err != nil {
			return nil, err
		}
		line.EndpointName = &endpointName
	}
	if err := db.Create(line).Error; err != nil {
		return nil, err
	}
	return line, nil
}

// NewChannel inserts a channel on the line
func NewChannel(db *gorm.DB, name string, lineID int, state string) (*models.Channel, error) {
	channel := &models.Channel{Name: name, LineID: lineID, State: state}
	if err := db.Create(channel).Error; err != nil {
		return nil, err
	}
	return channel, nil
}
