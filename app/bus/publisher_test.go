package bus

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	businessflow "github.com/callwatch/presenced/business_flow"
	"github.com/callwatch/presenced/models"
)

func TestPresenceUpdatedWireFormat(t *testing.T) {
	user := models.User{
		UUID:       uuid.New(),
		TenantUUID: uuid.New(),
		State:      models.UserStateAvailable,
		Sessions:   []models.Session{{UUID: uuid.New(), Mobile: true}},
	}

	body, err := json.Marshal(eventEnvelope{
		Name: EventPresenceUpdated,
		Data: businessflow.ToUserPresenceDTO(user),
	})
	require.NoError(t, err)

	var decoded struct {
		Name string `json:"name"`
		Data struct {
			UUID      string `json:"uuid"`
			Connected bool   `json:"connected"`
			Mobile    bool   `json:"mobile"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "chatd_presence_updated", decoded.Name)
	assert.Equal(t, user.UUID.String(), decoded.Data.UUID)
	assert.True(t, decoded.Data.Connected)
	assert.True(t, decoded.Data.Mobile)
}
