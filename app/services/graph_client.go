package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/callwatch/presenced/config"
)

// Microsoft Graph sentinel errors
var (
	ErrGraphUnauthorized = errors.New("graph: access token rejected")
	ErrGraphConflict     = errors.New("graph: subscription already exists")
)

// Subscription is a Microsoft Graph change-notification subscription
type Subscription struct {
	ID                 string    `json:"id,omitempty"`
	Resource           string    `json:"resource"`
	ChangeType         string    `json:"changeType"`
	NotificationURL    string    `json:"notificationUrl"`
	ExpirationDateTime time.Time `json:"expirationDateTime"`
	ClientState        string    `json:"clientState,omitempty"`
}

// TeamsPresence is a user presence document from Microsoft Graph
type TeamsPresence struct {
	Availability string `json:"availability"`
	Activity     string `json:"activity"`
}

// GraphClient talks to Microsoft Graph on behalf of one user's access token
type GraphClient interface {
	GetUserID(ctx context.Context, accessToken string) (string, error)
	CreateSubscription(ctx context.Context, accessToken string, sub Subscription) (*Subscription, error)
	ListSubscriptions(ctx context.Context, accessToken string) ([]Subscription, error)
	RenewSubscription(ctx context.Context, accessToken, subscriptionID string, expiration time.Time) (*Subscription, error)
	DeleteSubscription(ctx context.Context, accessToken, subscriptionID string) error
	GetPresence(ctx context.Context, accessToken, microsoftUserID string) (*TeamsPresence, error)
}

type graphClient struct {
	config     *config.GraphConfig
	httpClient *http.Client
}

// NewGraphClient creates a Microsoft Graph client
func NewGraphClient(cfg *config.GraphConfig) GraphClient {
	return &graphClient{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (c *graphClient) baseURL() string {
	return strings.TrimRight(c.config.BaseURL, "/")
}

func bearerHeaders(accessToken string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + accessToken}
}

// mapGraphError converts 401 and 409 answers into their sentinels so callers
// can branch on them.
func mapGraphError(err error) error {
	if err == nil {
		return nil
	}
	if IsStatus(err, http.StatusUnauthorized) {
		return ErrGraphUnauthorized
	}
	if IsStatus(err, http.StatusConflict) {
		return ErrGraphConflict
	}
	return err
}

type graphUserResponse struct {
	ID string `json:"id"`
}

func (c *graphClient) GetUserID(ctx context.Context, accessToken string) (string, error) {
	var resp graphUserResponse
	err := doJSON(ctx, c.httpClient, "graph", http.MethodGet, c.baseURL()+"/me", bearerHeaders(accessToken), nil, &resp)
	if err != nil {
		return "", mapGraphError(err)
	}
	return resp.ID, nil
}

func (c *graphClient) CreateSubscription(ctx context.Context, accessToken string, sub Subscription) (*Subscription, error) {
	var created Subscription
	err := doJSON(ctx, c.httpClient, "graph", http.MethodPost, c.baseURL()+"/subscriptions", bearerHeaders(accessToken), sub, &created)
	if err != nil {
		return nil, mapGraphError(err)
	}
	return &created, nil
}

type subscriptionListResponse struct {
	Value []Subscription `json:"value"`
}

func (c *graphClient) ListSubscriptions(ctx context.Context, accessToken string) ([]Subscription, error) {
	var resp subscriptionListResponse
	err := doJSON(ctx, c.httpClient, "graph", http.MethodGet, c.baseURL()+"/subscriptions", bearerHeaders(accessToken), nil, &resp)
	if err != nil {
		return nil, mapGraphError(err)
	}
	return resp.Value, nil
}

func (c *graphClient) RenewSubscription(ctx context.Context, accessToken, subscriptionID string, expiration time.Time) (*Subscription, error) {
	url := fmt.Sprintf("%s/subscriptions/%s", c.baseURL(), subscriptionID)
	payload := map[string]string{"expirationDateTime": expiration.UTC().Format(time.RFC3339)}

	var renewed Subscription
	err := doJSON(ctx, c.httpClient, "graph", http.MethodPatch, url, bearerHeaders(accessToken), payload, &renewed)
	if err != nil {
		return nil, mapGraphError(err)
	}
	return &renewed, nil
}

func (c *graphClient) DeleteSubscription(ctx context.Context, accessToken, subscriptionID string) error {
	url := fmt.Sprintf("%s/subscriptions/%s", c.baseURL(), subscriptionID)
	err := doJSON(ctx, c.httpClient, "graph", http.MethodDelete, url, bearerHeaders(accessToken), nil, nil)
	return mapGraphError(err)
}

func (c *graphClient) GetPresence(ctx context.Context, accessToken, microsoftUserID string) (*TeamsPresence, error) {
	url := fmt.Sprintf("%s/users/%s/presence", c.baseURL(), microsoftUserID)
	var presence TeamsPresence
	err := doJSON(ctx, c.httpClient, "graph", http.MethodGet, url, bearerHeaders(accessToken), nil, &presence)
	if err != nil {
		return nil, mapGraphError(err)
	}
	return &presence, nil
}
