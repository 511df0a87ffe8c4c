package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/callwatch/presenced/config"
	"github.com/google/uuid"
)

// Token is a service token minted against the auth service. Its metadata
// carries the tenant behind the service's own credentials, which becomes the
// master tenant.
type Token struct {
	Token      string
	TenantUUID uuid.UUID
}

// SessionItem is one session as listed by the auth service
type SessionItem struct {
	UUID       uuid.UUID `json:"uuid"`
	UserUUID   uuid.UUID `json:"user_uuid"`
	TenantUUID uuid.UUID `json:"tenant_uuid"`
	Mobile     bool      `json:"mobile"`
}

// RefreshTokenItem is one refresh token as listed by the auth service
type RefreshTokenItem struct {
	ClientID string    `json:"client_id"`
	UserUUID uuid.UUID `json:"user_uuid"`
	Mobile   bool      `json:"mobile"`
}

// AuthClient talks to the authentication service
type AuthClient interface {
	NewToken(ctx context.Context) (*Token, error)
	ListTenants(ctx context.Context, token string) ([]uuid.UUID, error)
	ListSessions(ctx context.Context, token string) ([]SessionItem, error)
	ListRefreshTokens(ctx context.Context, token string) ([]RefreshTokenItem, error)
	// ExternalTokenData fetches the user's Microsoft access token.
	ExternalTokenData(ctx context.Context, token string, userUUID uuid.UUID) (string, error)
	// ListExternalConnectedUsers lists users with a connected Microsoft account.
	ListExternalConnectedUsers(ctx context.Context, token string) ([]uuid.UUID, error)
}

type authClient struct {
	config     *config.AuthConfig
	pageSize   int
	httpClient *http.Client
}

// NewAuthClient creates an auth service client
func NewAuthClient(cfg *config.AuthConfig, pageSize int) AuthClient {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &authClient{
		config:     cfg,
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (c *authClient) baseURL() string {
	return strings.TrimRight(c.config.BaseURL, "/")
}

type tokenResponse struct {
	Data struct {
		Token    string `json:"token"`
		Metadata struct {
			TenantUUID uuid.UUID `json:"tenant_uuid"`
		} `json:"metadata"`
	} `json:"data"`
}

func (c *authClient) NewToken(ctx context.Context) (*Token, error) {
	url := c.baseURL() + "/token"
	payload := map[string]any{"expiration": int(c.config.TokenExpiry.Seconds())}

	var resp tokenResponse
	err := doJSONBasicAuth(ctx, c.httpClient, "auth", http.MethodPost, url, c.config.ServiceID, c.config.ServiceKey, payload, &resp)
	if err != nil {
		return nil, err
	}
	return &Token{Token: resp.Data.Token, TenantUUID: resp.Data.Metadata.TenantUUID}, nil
}

type uuidItem struct {
	UUID uuid.UUID `json:"uuid"`
}

type tenantListResponse struct {
	Items []uuidItem `json:"items"`
	Total int        `json:"total"`
}

func (c *authClient) ListTenants(ctx context.Context, token string) ([]uuid.UUID, error) {
	var out []uuid.UUID
	offset := 0
	for {
		url := fmt.Sprintf("%s/tenants?limit=%d&offset=%d", c.baseURL(), c.pageSize, offset)
		var page tenantListResponse
		if err := doJSON(ctx, c.httpClient, "auth", http.MethodGet, url, authHeaders(token), nil, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			out = append(out, item.UUID)
		}
		offset += len(page.Items)
		if offset >= page.Total || len(page.Items) == 0 {
			return out, nil
		}
	}
}

type sessionListResponse struct {
	Items []SessionItem `json:"items"`
	Total int           `json:"total"`
}

func (c *authClient) ListSessions(ctx context.Context, token string) ([]SessionItem, error) {
	var out []SessionItem
	offset := 0
	for {
		url := fmt.Sprintf("%s/sessions?recurse=true&limit=%d&offset=%d", c.baseURL(), c.pageSize, offset)
		var page sessionListResponse
		if err := doJSON(ctx, c.httpClient, "auth", http.MethodGet, url, authHeaders(token), nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		offset += len(page.Items)
		if offset >= page.Total || len(page.Items) == 0 {
			return out, nil
		}
	}
}

type refreshTokenListResponse struct {
	Items []RefreshTokenItem `json:"items"`
	Total int                `json:"total"`
}

func (c *authClient) ListRefreshTokens(ctx context.Context, token string) ([]RefreshTokenItem, error) {
	var out []RefreshTokenItem
	offset := 0
	for {
		url := fmt.Sprintf("%s/tokens?limit=%d&offset=%d", c.baseURL(), c.pageSize, offset)
		var page refreshTokenListResponse
		if err := doJSON(ctx, c.httpClient, "auth", http.MethodGet, url, authHeaders(token), nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		offset += len(page.Items)
		if offset >= page.Total || len(page.Items) == 0 {
			return out, nil
		}
	}
}

type externalTokenResponse struct {
	AccessToken string `json:"access_token"`
}

func (c *authClient) ExternalTokenData(ctx context.Context, token string, userUUID uuid.UUID) (string, error) {
	url := fmt.Sprintf("%s/users/%s/external/microsoft", c.baseURL(), userUUID)
	var resp externalTokenResponse
	if err := doJSON(ctx, c.httpClient, "auth", http.MethodGet, url, authHeaders(token), nil, &resp); err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

type externalUserListResponse struct {
	Items []uuidItem `json:"items"`
	Total int        `json:"total"`
}

func (c *authClient) ListExternalConnectedUsers(ctx context.Context, token string) ([]uuid.UUID, error) {
	var out []uuid.UUID
	offset := 0
	for {
		url := fmt.Sprintf("%s/external/microsoft/users?limit=%d&offset=%d", c.baseURL(), c.pageSize, offset)
		var page externalUserListResponse
		if err := doJSON(ctx, c.httpClient, "auth", http.MethodGet, url, authHeaders(token), nil, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			out = append(out, item.UUID)
		}
		offset += len(page.Items)
		if offset >= page.Total || len(page.Items) == 0 {
			return out, nil
		}
	}
}

func authHeaders(token string) map[string]string {
	return map[string]string{"X-Auth-Token": token}
}
