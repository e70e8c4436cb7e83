package oauth

import "strings"

const stateDelimiter = ":"

// BuildState binds an authorization redirect to a session as "<platform>:<sessionId>".
func BuildState(platform Platform, sessionID string) string {
	return string(platform) + stateDelimiter + sessionID
}

// ParseState splits a state token into its platform segment and session id.
func ParseState(state string) (platform string, sessionID string, ok bool) {
	platform, sessionID, ok = strings.Cut(strings.TrimSpace(state), stateDelimiter)
	if !ok {
		return "", "", false
	}
	return platform, sessionID, true
}

// SessionIDFromState returns the session id segment, or "" when the state is malformed.
func SessionIDFromState(state string) string {
	_, sessionID, ok := ParseState(state)
	if !ok {
		return ""
	}
	return sessionID
}
