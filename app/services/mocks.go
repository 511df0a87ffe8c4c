package services

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MockAuthClient implements AuthClient for testing. Unset function fields
// fall back to empty answers.
type MockAuthClient struct {
	NewTokenFunc               func(ctx context.Context) (*Token, error)
	TenantsFunc                func(ctx context.Context, token string) ([]uuid.UUID, error)
	SessionsFunc               func(ctx context.Context, token string) ([]SessionItem, error)
	RefreshTokensFunc          func(ctx context.Context, token string) ([]RefreshTokenItem, error)
	ExternalTokenDataFunc      func(ctx context.Context, token string, userUUID uuid.UUID) (string, error)
	ExternalConnectedUsersFunc func(ctx context.Context, token string) ([]uuid.UUID, error)
}

func (m *MockAuthClient) NewToken(ctx context.Context) (*Token, error) {
	if m.NewTokenFunc != nil {
		return m.NewTokenFunc(ctx)
	}
	return &Token{Token: "mock-token", TenantUUID: uuid.Nil}, nil
}

func (m *MockAuthClient) ListTenants(ctx context.Context, token string) ([]uuid.UUID, error) {
	if m.TenantsFunc != nil {
		return m.TenantsFunc(ctx, token)
	}
	return nil, nil
}

func (m *MockAuthClient) ListSessions(ctx context.Context, token string) ([]SessionItem, error) {
	if m.SessionsFunc != nil {
		return m.SessionsFunc(ctx, token)
	}
	return nil, nil
}

func (m *MockAuthClient) ListRefreshTokens(ctx context.Context, token string) ([]RefreshTokenItem, error) {
	if m.RefreshTokensFunc != nil {
		return m.RefreshTokensFunc(ctx, token)
	}
	return nil, nil
}

func (m *MockAuthClient) ExternalTokenData(ctx context.Context, token string, userUUID uuid.UUID) (string, error) {
	if m.ExternalTokenDataFunc != nil {
		return m.ExternalTokenDataFunc(ctx, token, userUUID)
	}
	return "mock-access-token", nil
}

func (m *MockAuthClient) ListExternalConnectedUsers(ctx context.Context, token string) ([]uuid.UUID, error) {
	if m.ExternalConnectedUsersFunc != nil {
		return m.ExternalConnectedUsersFunc(ctx, token)
	}
	return nil, nil
}

// MockConfdClient implements ConfdClient for testing
type MockConfdClient struct {
	UsersFunc     func(ctx context.Context, token string) ([]ConfdUser, error)
	IngressesFunc func(ctx context.Context, token string, tenantUUID uuid.UUID) ([]IngressHTTP, error)
	GetDNDFunc    func(ctx context.Context, token string, userUUID uuid.UUID) (bool, error)
	UpdateDNDFunc func(ctx context.Context, token string, userUUID uuid.UUID, enabled bool) error
	UpdatedDNDs   []MockDNDUpdate
}

// MockDNDUpdate records one UpdateUserDND call
type MockDNDUpdate struct {
	UserUUID uuid.UUID
	Enabled  bool
}

func (m *MockConfdClient) ListUsers(ctx context.Context, token string) ([]ConfdUser, error) {
	if m.UsersFunc != nil {
		return m.UsersFunc(ctx, token)
	}
	return nil, nil
}

func (m *MockConfdClient) ListIngressHTTP(ctx context.Context, token string, tenantUUID uuid.UUID) ([]IngressHTTP, error) {
	if m.IngressesFunc != nil {
		return m.IngressesFunc(ctx, token, tenantUUID)
	}
	return []IngressHTTP{{URI: "https://mock.example.com"}}, nil
}

func (m *MockConfdClient) GetUserDND(ctx context.Context, token string, userUUID uuid.UUID) (bool, error) {
	if m.GetDNDFunc != nil {
		return m.GetDNDFunc(ctx, token, userUUID)
	}
	return false, nil
}

func (m *MockConfdClient) UpdateUserDND(ctx context.Context, token string, userUUID uuid.UUID, enabled bool) error {
	m.UpdatedDNDs = append(m.UpdatedDNDs, MockDNDUpdate{UserUUID: userUUID, Enabled: enabled})
	if m.UpdateDNDFunc != nil {
		return m.UpdateDNDFunc(ctx, token, userUUID, enabled)
	}
	return nil
}

// MockAmidClient implements AmidClient for testing
type MockAmidClient struct {
	ActionFunc func(ctx context.Context, token, action string) ([]AMIDEvent, error)
}

func (m *MockAmidClient) Action(ctx context.Context, token, action string) ([]AMIDEvent, error) {
	if m.ActionFunc != nil {
		return m.ActionFunc(ctx, token, action)
	}
	return nil, nil
}

// MockGraphClient implements GraphClient for testing
type MockGraphClient struct {
	UserIDFunc   func(ctx context.Context, accessToken string) (string, error)
	CreateFunc   func(ctx context.Context, accessToken string, sub Subscription) (*Subscription, error)
	ListFunc     func(ctx context.Context, accessToken string) ([]Subscription, error)
	RenewFunc    func(ctx context.Context, accessToken, subscriptionID string, expiration time.Time) (*Subscription, error)
	DeleteFunc   func(ctx context.Context, accessToken, subscriptionID string) error
	PresenceFunc func(ctx context.Context, accessToken, microsoftUserID string) (*TeamsPresence, error)
	Deleted      []string
}

func (m *MockGraphClient) GetUserID(ctx context.Context, accessToken string) (string, error) {
	if m.UserIDFunc != nil {
		return m.UserIDFunc(ctx, accessToken)
	}
	return "mock-microsoft-user-id", nil
}

func (m *MockGraphClient) CreateSubscription(ctx context.Context, accessToken string, sub Subscription) (*Subscription, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, accessToken, sub)
	}
	created := sub
	created.ID = uuid.NewString()
	return &created, nil
}

func (m *MockGraphClient) ListSubscriptions(ctx context.Context, accessToken string) ([]Subscription, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, accessToken)
	}
	return nil, nil
}

func (m *MockGraphClient) RenewSubscription(ctx context.Context, accessToken, subscriptionID string, expiration time.Time) (*Subscription, error) {
	if m.RenewFunc != nil {
		return m.RenewFunc(ctx, accessToken, subscriptionID, expiration)
	}
	return &Subscription{ID: subscriptionID, ExpirationDateTime: expiration}, nil
}

func (m *MockGraphClient) DeleteSubscription(ctx context.Context, accessToken, subscriptionID string) error {
	m.Deleted = append(m.Deleted, subscriptionID)
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, accessToken, subscriptionID)
	}
	return nil
}

func (m *MockGraphClient) GetPresence(ctx context.Context, accessToken, microsoftUserID string) (*TeamsPresence, error) {
	if m.PresenceFunc != nil {
		return m.PresenceFunc(ctx, accessToken, microsoftUserID)
	}
	return &TeamsPresence{Availability: "Available", Activity: "Available"}, nil
}
