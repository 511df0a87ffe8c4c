package federation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/callwatch/presenced/models"
)

func TestTranslateTeamsAvailability(t *testing.T) {
	tests := []struct {
		availability string
		state        string
		dnd          bool
		ok           bool
	}{
		{"Available", models.UserStateAvailable, false, true},
		{"AvailableIdle", models.UserStateAvailable, false, true},
		{"Away", models.UserStateAway, false, true},
		{"BeRightBack", models.UserStateAway, false, true},
		{"Busy", models.UserStateUnavailable, true, true},
		{"BusyIdle", models.UserStateUnavailable, true, true},
		{"DoNotDisturb", models.UserStateUnavailable, true, true},
		{"Offline", "", false, false},
		{"PresenceUnknown", "", false, false},
		{"", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.availability, func(t *testing.T) {
			state, dnd, ok := TranslateTeamsAvailability(tt.availability)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.state, state)
				assert.Equal(t, tt.dnd, dnd)
			}
		})
	}
}

func TestNotificationURL(t *testing.T) {
	userUUID := uuid.MustParse("6a7c1e10-2f3b-4b5a-9c8d-0e1f2a3b4c5d")
	url := notificationURL("stack.example.com", userUUID)
	assert.Equal(t,
		"https://stack.example.com/api/chatd/1.0/users/6a7c1e10-2f3b-4b5a-9c8d-0e1f2a3b4c5d/teams/presence",
		url)
}

func TestDomainFromIngress(t *testing.T) {
	tests := []struct {
		uri      string
		expected string
	}{
		{"https://stack.example.com", "stack.example.com"},
		{"https://stack.example.com/", "stack.example.com"},
		{"http://stack.example.com", "stack.example.com"},
		{"stack.example.com", "stack.example.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, domainFromIngress(tt.uri))
	}
}
