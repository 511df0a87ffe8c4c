package businessflow

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callwatch/presenced/models"
	"github.com/callwatch/presenced/utils"
)

func TestToUserPresenceDTO(t *testing.T) {
	userUUID := uuid.New()
	tenantUUID := uuid.New()
	sessionUUID := uuid.New()
	lastActivity := time.Date(2026, 2, 3, 14, 30, 0, 0, time.UTC)
	endpointName := "PJSIP/abc"

	user := models.User{
		UUID:         userUUID,
		TenantUUID:   tenantUUID,
		State:        models.UserStateAvailable,
		Status:       utils.ToPtr("in the office"),
		DoNotDisturb: utils.ToPtr(true),
		LastActivity: &lastActivity,
		Sessions: []models.Session{
			{UUID: sessionUUID, UserUUID: userUUID, Mobile: true},
		},
		Lines: []models.Line{
			{
				ID:           42,
				UserUUID:     userUUID,
				EndpointName: &endpointName,
				Endpoint:     &models.Endpoint{Name: endpointName, State: models.EndpointStateAvailable},
				Channels: []models.Channel{
					{Name: "PJSIP/abc-00000001", LineID: 42, State: models.ChannelStateTalking},
				},
			},
		},
	}

	presence := ToUserPresenceDTO(user)

	assert.Equal(t, userUUID.String(), presence.UUID)
	assert.Equal(t, tenantUUID.String(), presence.TenantUUID)
	assert.Equal(t, models.UserStateAvailable, presence.State)
	require.NotNil(t, presence.Status)
	assert.Equal(t, "in the office", *presence.Status)
	require.NotNil(t, presence.LastActivity)
	assert.Equal(t, "2026-02-03T14:30:00Z", *presence.LastActivity)
	assert.True(t, presence.DoNotDisturb)
	assert.True(t, presence.Mobile)
	assert.True(t, presence.Connected)
	assert.Equal(t, models.LineStateTalking, presence.LineState)

	require.Len(t, presence.Sessions, 1)
	assert.Equal(t, sessionUUID.String(), presence.Sessions[0].UUID)
	assert.True(t, presence.Sessions[0].Mobile)

	require.Len(t, presence.Lines, 1)
	assert.Equal(t, 42, presence.Lines[0].ID)
	assert.Equal(t, models.LineStateTalking, presence.Lines[0].State)
}

func TestToUserPresenceDTOEmptyUser(t *testing.T) {
	user := models.User{
		UUID:       uuid.New(),
		TenantUUID: uuid.New(),
		State:      models.UserStateUnavailable,
	}

	presence := ToUserPresenceDTO(user)

	assert.Nil(t, presence.Status)
	assert.Nil(t, presence.LastActivity)
	assert.False(t, presence.DoNotDisturb)
	assert.False(t, presence.Mobile)
	assert.False(t, presence.Connected)
	assert.Equal(t, models.LineStateUnavailable, presence.LineState)
	assert.Empty(t, presence.Sessions)
	assert.Empty(t, presence.Lines)
}
