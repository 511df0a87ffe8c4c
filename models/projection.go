package models

// Derived state is recomputed on every read and every notification; nothing
// in this file is ever persisted.

// channelRank orders channel states by how strongly they should dominate the
// line state. "undefined" ranks zero and falls through to the endpoint state.
var channelRank = map[string]int{
	ChannelStateProgressing: 1,
	ChannelStateTalking:     2,
	ChannelStateHolding:     3,
	ChannelStateRinging:     4,
}

var lineRank = map[string]int{
	LineStateUnavailable: 0,
	LineStateAvailable:   1,
	LineStateProgressing: 2,
	LineStateTalking:     3,
	LineStateHolding:     4,
	LineStateRinging:     5,
}

// ComputeLineState folds a line's channel states with priority
// ringing > holding > talking > progressing, falling back to the endpoint
// state (or "unavailable" when the line has no endpoint).
func ComputeLineState(line Line) string {
	best := ""
	bestRank := 0
	for _, c := range line.Channels {
		if r := channelRank[c.State]; r > bestRank {
			bestRank = r
			best = c.State
		}
	}
	if best != "" {
		// Channel states share their names with line states.
		return best
	}
	if line.Endpoint != nil && line.Endpoint.State == EndpointStateAvailable {
		return LineStateAvailable
	}
	return LineStateUnavailable
}

// ComputeUserLineState folds the user's line states with priority
// ringing > holding > talking > progressing > available > unavailable.
func ComputeUserLineState(user User) string {
	state := LineStateUnavailable
	for _, line := range user.Lines {
		if s := ComputeLineState(line); lineRank[s] > lineRank[state] {
			state = s
		}
	}
	return state
}

// ComputeMobile reports whether any session or refresh token of the user is
// flagged mobile.
func ComputeMobile(user User) bool {
	for _, s := range user.Sessions {
		if s.Mobile {
			return true
		}
	}
	for _, t := range user.RefreshTokens {
		if t.Mobile {
			return true
		}
	}
	return false
}

// ComputeConnected reports whether the user has at least one session.
func ComputeConnected(user User) bool {
	return len(user.Sessions) > 0
}
