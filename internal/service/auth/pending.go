package auth

import (
	"sync"
	"time"

	domainoauth "github.com/7HR4IZ3/ai-video-creator/internal/domain/oauth"
)

// pendingSessions is the in-memory set of authorization attempts awaiting a callback.
type pendingSessions struct {
	mu       sync.Mutex
	sessions map[string]domainoauth.PendingSession
}

func newPendingSessions() *pendingSessions {
	return &pendingSessions{sessions: make(map[string]domainoauth.PendingSession)}
}

func (p *pendingSessions) put(session domainoauth.PendingSession) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[session.SessionID] = session
}

func (p *pendingSessions) get(sessionID string) (domainoauth.PendingSession, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	session, ok := p.sessions[sessionID]
	return session, ok
}

// take removes the session and reports whether it was present.
func (p *pendingSessions) take(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.sessions[sessionID]; !ok {
		return false
	}
	delete(p.sessions, sessionID)
	return true
}

// sweep drops sessions created before cutoff and returns them.
func (p *pendingSessions) sweep(cutoff time.Time) []domainoauth.PendingSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	var expired []domainoauth.PendingSession
	for id, session := range p.sessions {
		if session.CreatedAt.Before(cutoff) {
			expired = append(expired, session)
			delete(p.sessions, id)
		}
	}
	return expired
}

func (p *pendingSessions) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}
