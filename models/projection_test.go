package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func lineWith(endpointState string, channelStates ...string) Line {
	line := Line{ID: 1, UserUUID: uuid.New()}
	if endpointState != "" {
		line.Endpoint = &Endpoint{Name: "PJSIP/abc", State: endpointState}
	}
	for i, state := range channelStates {
		line.Channels = append(line.Channels, Channel{Name: "PJSIP/abc-" + string(rune('0'+i)), LineID: 1, State: state})
	}
	return line
}

func TestComputeLineState(t *testing.T) {
	tests := []struct {
		name     string
		line     Line
		expected string
	}{
		{
			name:     "no endpoint and no channels",
			line:     lineWith(""),
			expected: LineStateUnavailable,
		},
		{
			name:     "endpoint available without channels",
			line:     lineWith(EndpointStateAvailable),
			expected: LineStateAvailable,
		},
		{
			name:     "endpoint unavailable without channels",
			line:     lineWith(EndpointStateUnavailable),
			expected: LineStateUnavailable,
		},
		{
			name:     "single talking channel",
			line:     lineWith(EndpointStateAvailable, ChannelStateTalking),
			expected: LineStateTalking,
		},
		{
			name:     "ringing wins over talking",
			line:     lineWith(EndpointStateAvailable, ChannelStateTalking, ChannelStateRinging),
			expected: LineStateRinging,
		},
		{
			name:     "holding wins over talking",
			line:     lineWith(EndpointStateAvailable, ChannelStateHolding, ChannelStateTalking),
			expected: LineStateHolding,
		},
		{
			name:     "progressing loses to everything",
			line:     lineWith(EndpointStateAvailable, ChannelStateProgressing, ChannelStateTalking),
			expected: LineStateTalking,
		},
		{
			name:     "undefined channels fall back to endpoint state",
			line:     lineWith(EndpointStateAvailable, ChannelStateUndefined),
			expected: LineStateAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ComputeLineState(tt.line))
		})
	}
}

func TestComputeUserLineState(t *testing.T) {
	user := User{
		Lines: []Line{
			lineWith(EndpointStateAvailable),
			lineWith(EndpointStateAvailable, ChannelStateRinging),
		},
	}
	assert.Equal(t, LineStateRinging, ComputeUserLineState(user))

	assert.Equal(t, LineStateUnavailable, ComputeUserLineState(User{}))
}

func TestComputeMobile(t *testing.T) {
	assert.False(t, ComputeMobile(User{}))

	withMobileSession := User{Sessions: []Session{{Mobile: true}}}
	assert.True(t, ComputeMobile(withMobileSession))

	withDesktopSession := User{Sessions: []Session{{Mobile: false}}}
	assert.False(t, ComputeMobile(withDesktopSession))

	// A mobile refresh token marks the user mobile even with no session.
	withMobileToken := User{RefreshTokens: []RefreshToken{{ClientID: "app", Mobile: true}}}
	assert.True(t, ComputeMobile(withMobileToken))
}

func TestComputeConnected(t *testing.T) {
	assert.False(t, ComputeConnected(User{}))
	assert.True(t, ComputeConnected(User{Sessions: []Session{{Mobile: false}}}))

	// Refresh tokens alone do not make a user connected.
	onlyToken := User{RefreshTokens: []RefreshToken{{ClientID: "app", Mobile: true}}}
	assert.False(t, ComputeConnected(onlyToken))
}

func TestIsValidUserState(t *testing.T) {
	for _, state := range UserStates {
		assert.True(t, IsValidUserState(state))
	}
	assert.False(t, IsValidUserState("offline"))
	assert.False(t, IsValidUserState(""))
}
