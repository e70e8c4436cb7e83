package repository

import (
	"context"

	"github.com/7HR4IZ3/ai-video-creator/internal/domain/oauth"
)

// CredentialStore persists per-platform token sets as independently expirable fields.
type CredentialStore interface {
	Put(ctx context.Context, platform oauth.Platform, tokens oauth.TokenSet) error
	// Get returns nil when neither an access token nor a refresh token is stored.
	Get(ctx context.Context, platform oauth.Platform) (*oauth.TokenSet, error)
}

// AttemptRecorder appends authorization attempt transitions to a ledger.
type AttemptRecorder interface {
	Record(ctx context.Context, attempt oauth.Attempt) error
}
