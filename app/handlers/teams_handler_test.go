package handlers

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/callwatch/presenced/app/federation"
	"github.com/callwatch/presenced/config"
)

func newTeamsTestApp(t *testing.T) *fiber.App {
	t.Helper()
	fed := federation.NewFederation(&config.TeamsConfig{}, nil, nil, nil, nil, nil, nil, zap.NewNop())
	handler := NewTeamsHandler(fed, zap.NewNop())

	app := fiber.New()
	app.Post("/1.0/users/:user_uuid/teams/presence", handler.Notify)
	return app
}

func TestTeamsNotifyInvalidUUID(t *testing.T) {
	app := newTeamsTestApp(t)

	req := httptest.NewRequest("POST", "/1.0/users/not-a-uuid/teams/presence", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestTeamsNotifyValidationTokenWithoutSynchronization(t *testing.T) {
	app := newTeamsTestApp(t)

	url := "/1.0/users/" + uuid.NewString() + "/teams/presence?validationToken=probe"
	req := httptest.NewRequest("POST", url, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestTeamsNotifyWithoutSynchronization(t *testing.T) {
	app := newTeamsTestApp(t)

	url := "/1.0/users/" + uuid.NewString() + "/teams/presence"
	req := httptest.NewRequest("POST", url, strings.NewReader(`{"value": []}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, string(body))
}
