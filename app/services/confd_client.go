package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/callwatch/presenced/config"
	"github.com/google/uuid"
)

// ConfdUser is one user as listed by the configuration service
type ConfdUser struct {
	UUID       uuid.UUID   `json:"uuid"`
	TenantUUID uuid.UUID   `json:"tenant_uuid"`
	Lines      []ConfdLine `json:"lines"`
	Services   struct {
		DND struct {
			Enabled bool `json:"enabled"`
		} `json:"dnd"`
	} `json:"services"`
}

// ConfdLine is one line attachment with its technology-specific endpoint.
// Exactly one of the endpoint fields is set.
type ConfdLine struct {
	ID             int             `json:"id"`
	Name           string          `json:"name"`
	EndpointSIP    *map[string]any `json:"endpoint_sip"`
	EndpointSCCP   *map[string]any `json:"endpoint_sccp"`
	EndpointCustom *map[string]any `json:"endpoint_custom"`
}

// IngressHTTP is a tenant's public ingress entry
type IngressHTTP struct {
	URI string `json:"uri"`
}

// ConfdClient talks to the configuration service
type ConfdClient interface {
	ListUsers(ctx context.Context, token string) ([]ConfdUser, error)
	ListIngressHTTP(ctx context.Context, token string, tenantUUID uuid.UUID) ([]IngressHTTP, error)
	GetUserDND(ctx context.Context, token string, userUUID uuid.UUID) (bool, error)
	UpdateUserDND(ctx context.Context, token string, userUUID uuid.UUID, enabled bool) error
}

type confdClient struct {
	config     *config.ConfdConfig
	pageSize   int
	httpClient *http.Client
}

// NewConfdClient creates a configuration service client
func NewConfdClient(cfg *config.ConfdConfig, pageSize int) ConfdClient {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &confdClient{
		config:     cfg,
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (c *confdClient) baseURL() string {
	return strings.TrimRight(c.config.BaseURL, "/")
}

type confdUserListResponse struct {
	Items []ConfdUser `json:"items"`
	Total int         `json:"total"`
}

func (c *confdClient) ListUsers(ctx context.Context, token string) ([]ConfdUser, error) {
	var out []ConfdUser
	offset := 0
	for {
		url := fmt.Sprintf("%s/users?recurse=true&limit=%d&offset=%d", c.baseURL(), c.pageSize, offset)
		var page confdUserListResponse
		if err := doJSON(ctx, c.httpClient, "confd", http.MethodGet, url, authHeaders(token), nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		offset += len(page.Items)
		if offset >= page.Total || len(page.Items) == 0 {
			return out, nil
		}
	}
}

type ingressListResponse struct {
	Items []IngressHTTP `json:"items"`
	Total int           `json:"total"`
}

func (c *confdClient) ListIngressHTTP(ctx context.Context, token string, tenantUUID uuid.UUID) ([]IngressHTTP, error) {
	url := c.baseURL() + "/ingresses/http"
	headers := authHeaders(token)
	headers["Wazo-Tenant"] = tenantUUID.String()

	var resp ingressListResponse
	if err := doJSON(ctx, c.httpClient, "confd", http.MethodGet, url, headers, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

type dndBody struct {
	Enabled bool `json:"enabled"`
}

func (c *confdClient) GetUserDND(ctx context.Context, token string, userUUID uuid.UUID) (bool, error) {
	url := fmt.Sprintf("%s/users/%s/services/dnd", c.baseURL(), userUUID)
	var resp dndBody
	if err := doJSON(ctx, c.httpClient, "confd", http.MethodGet, url, authHeaders(token), nil, &resp); err != nil {
		return false, err
	}
	return resp.Enabled, nil
}

func (c *confdClient) UpdateUserDND(ctx context.Context, token string, userUUID uuid.UUID, enabled bool) error {
	url := fmt.Sprintf("%s/users/%s/services/dnd", c.baseURL(), userUUID)
	return doJSON(ctx, c.httpClient, "confd", http.MethodPut, url, authHeaders(token), dndBody{Enabled: enabled}, nil)
}
