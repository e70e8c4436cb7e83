package client

import (
	"errors"
	"fmt"
)

var (
	ErrServerUnreachable   = errors.New("oauth server did not become reachable")
	ErrAuthTimeout         = errors.New("OAuth flow timed out")
	ErrAuthorizationFailed = errors.New("authorization failed")
	ErrChannelClosed       = errors.New("notification channel closed before authorization finished")
	// ErrUnauthorized is returned by WithTokens callbacks to request a single refresh and retry.
	ErrUnauthorized = errors.New("credentials rejected")
)

// APIError is a non-2xx answer from the broker.
type APIError struct {
	Status      int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *APIError) Error() string {
	switch {
	case e.Description != "":
		return fmt.Sprintf("broker returned %d: %s", e.Status, e.Description)
	case e.Code != "":
		return fmt.Sprintf("broker returned %d: %s", e.Status, e.Code)
	default:
		return fmt.Sprintf("broker returned %d", e.Status)
	}
}
