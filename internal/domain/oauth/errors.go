package oauth

import "errors"

var (
	// ErrUnsupportedPlatform signals a platform with no registered provider.
	ErrUnsupportedPlatform = errors.New("oauth: unsupported platform")
	// ErrInvalidRequest indicates caller input validation errors.
	ErrInvalidRequest = errors.New("oauth: invalid request")
	// ErrStateMismatch indicates the callback state does not belong to the callback platform.
	ErrStateMismatch = errors.New("oauth: invalid state parameter")
	// ErrTokenExchangeFailed wraps the provider's description of a failed code exchange.
	ErrTokenExchangeFailed = errors.New("oauth: failed to exchange code for tokens")
	// ErrRefreshFailed marks a refresh grant the provider rejected.
	ErrRefreshFailed = errors.New("oauth: token refresh failed")
	// ErrSecondaryLookupFailed marks a failed Facebook page token lookup.
	ErrSecondaryLookupFailed = errors.New("oauth: page access token lookup failed")
	// ErrChannelDeliveryMiss means no channel connection was bound to the session.
	ErrChannelDeliveryMiss = errors.New("oauth: no connection for session")
)
