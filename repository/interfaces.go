// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/callwatch/presenced/models"
	"github.com/google/uuid"
)

// TenantRepository defines operations for tenants
type TenantRepository interface {
	ByUUID(ctx context.Context, uuid uuid.UUID) (*models.Tenant, error)
	List(ctx context.Context) ([]*models.Tenant, error)
	Save(ctx context.Context, tenant *models.Tenant) error
	FindOrCreate(ctx context.Context, uuid uuid.UUID) (*models.Tenant, error)
	Delete(ctx context.Context, uuid uuid.UUID) error
}

// UserRepository defines operations for users and their child collections
type UserRepository interface {
	ByUUID(ctx context.Context, uuid uuid.UUID) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]*models.User, error)
	Save(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, uuid uuid.UUID) error
	UpdatePresence(ctx context.Context, uuid uuid.UUID, state string, status *string, lastActivity *time.Time) error
	SetDoNotDisturb(ctx context.Context, uuid uuid.UUID, enabled bool) error

	AddSession(ctx context.Context, session *models.Session) error
	RemoveSession(ctx context.Context, userUUID, sessionUUID uuid.UUID) error
	AddRefreshToken(ctx context.Context, token *models.RefreshToken) error
	RemoveRefreshToken(ctx context.Context, userUUID uuid.UUID, clientID string) error
}

// SessionRepository defines read operations for sessions
type SessionRepository interface {
	ByUUID(ctx context.Context, uuid uuid.UUID) (*models.Session, error)
	List(ctx context.Context) ([]*models.Session, error)
}

// RefreshTokenRepository defines read operations for refresh tokens
type RefreshTokenRepository interface {
	ByKey(ctx context.Context, userUUID uuid.UUID, clientID string) (*models.RefreshToken, error)
	List(ctx context.Context) ([]*models.RefreshToken, error)
}

// LineRepository defines operations for lines
type LineRepository interface {
	ByID(ctx context.Context, id int) (*models.Line, error)
	ByEndpointName(ctx context.Context, endpointName string) (*models.Line, error)
	List(ctx context.Context) ([]*models.Line, error)
	Save(ctx context.Context, line *models.Line) error
	Delete(ctx context.Context, id int) error
	AssociateEndpoint(ctx context.Context, id int, endpointName string) error
}

// EndpointRepository defines operations for endpoints
type EndpointRepository interface {
	ByName(ctx context.Context, name string) (*models.Endpoint, error)
	FindOrCreate(ctx context.Context, name string) (*models.Endpoint, error)
	Save(ctx context.Context, endpoint *models.Endpoint) error
	// UpdateState reports whether the stored state actually changed.
	UpdateState(ctx context.Context, name, state string) (bool, error)
	DeleteAll(ctx context.Context) error
}

// ChannelRepository defines operations for channels
type ChannelRepository interface {
	ByName(ctx context.Context, name string) (*models.Channel, error)
	Save(ctx context.Context, channel *models.Channel) error
	UpdateState(ctx context.Context, name, state string) error
	Delete(ctx context.Context, name string) error
	DeleteAll(ctx context.Context) error
}
