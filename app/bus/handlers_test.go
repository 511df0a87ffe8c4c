package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/callwatch/presenced/models"
)

func TestEndpointNameFromChannel(t *testing.T) {
	tests := []struct {
		channel  string
		expected string
	}{
		{"PJSIP/abc-00000001", "PJSIP/abc"},
		{"SCCP/1001-0000000a", "SCCP/1001"},
		{"custom-trunk-42", "custom-trunk"},
		// No suffix means no endpoint can be derived.
		{"nodash", ""},
		{"", ""},
		{"-0001", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, EndpointNameFromChannel(tt.channel))
	}
}

func TestEndpointNameFromLinePayload(t *testing.T) {
	sip := map[string]any{}

	assert.Equal(t, "PJSIP/abc",
		EndpointNameFromLinePayload(LinePayload{Name: "abc", EndpointSIP: &sip}))
	assert.Equal(t, "SCCP/1001",
		EndpointNameFromLinePayload(LinePayload{Name: "1001", EndpointSCCP: &sip}))
	assert.Equal(t, "custom/device",
		EndpointNameFromLinePayload(LinePayload{Name: "custom/device", EndpointCustom: &sip}))
	assert.Equal(t, "", EndpointNameFromLinePayload(LinePayload{Name: "orphan"}))
}

func TestDeviceStateToEndpointState(t *testing.T) {
	available := []string{"INUSE", "NOT_INUSE", "RINGING", "ONHOLD", "RINGINUSE"}
	for _, state := range available {
		assert.Equal(t, models.EndpointStateAvailable, DeviceStateToEndpointState(state), state)
	}

	unavailable := []string{"UNAVAILABLE", "UNKNOWN", "BUSY", "INVALID", ""}
	for _, state := range unavailable {
		assert.Equal(t, models.EndpointStateUnavailable, DeviceStateToEndpointState(state), state)
	}
}

func TestChannelStateFromDesc(t *testing.T) {
	tests := []struct {
		desc     string
		expected string
	}{
		{"Ring", models.ChannelStateProgressing},
		{"Ringing", models.ChannelStateRinging},
		{"Up", models.ChannelStateTalking},
		{"Busy", models.ChannelStateTalking},
		{"Down", models.ChannelStateUndefined},
		{"", models.ChannelStateUndefined},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ChannelStateFromDesc(tt.desc), tt.desc)
	}
}

func TestShouldIgnoreDevice(t *testing.T) {
	assert.True(t, ShouldIgnoreDevice("Custom:DND"))
	assert.True(t, ShouldIgnoreDevice("MWI:1001@default"))
	assert.True(t, ShouldIgnoreDevice("Queue:support"))
	assert.False(t, ShouldIgnoreDevice("PJSIP/abc"))
	assert.False(t, ShouldIgnoreDevice("SCCP/1001"))
}
