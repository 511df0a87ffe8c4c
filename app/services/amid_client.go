package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/callwatch/presenced/config"
)

// AMI actions used by the bootstrap sweep
const (
	ActionDeviceStateList  = "DeviceStateList"
	ActionCoreShowChannels = "CoreShowChannels"
)

// AMIDEvent is one event from an AMI action response. Only the fields the
// sweep reads are mapped; everything else stays in the raw answer.
type AMIDEvent struct {
	Event            string            `json:"Event"`
	Device           string            `json:"Device"`
	State            string            `json:"State"`
	Channel          string            `json:"Channel"`
	ChannelStateDesc string            `json:"ChannelStateDesc"`
	ChanVariable     map[string]string `json:"ChanVariable"`
}

// AmidClient talks to the AMI gateway
type AmidClient interface {
	Action(ctx context.Context, token, action string) ([]AMIDEvent, error)
}

type amidClient struct {
	config     *config.AmidConfig
	httpClient *http.Client
}

// NewAmidClient creates an AMI gateway client
func NewAmidClient(cfg *config.AmidConfig) AmidClient {
	return &amidClient{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (c *amidClient) Action(ctx context.Context, token, action string) ([]AMIDEvent, error) {
	url := fmt.Sprintf("%s/action/%s", strings.TrimRight(c.config.BaseURL, "/"), action)
	var events []AMIDEvent
	if err := doJSON(ctx, c.httpClient, "amid", http.MethodPost, url, authHeaders(token), map[string]any{}, &events); err != nil {
		return nil, err
	}
	return events, nil
}
