package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/7HR4IZ3/ai-video-creator/internal/domain/oauth"
)

const (
	inboxSize           = 16
	defaultWriteTimeout = 10 * time.Second
)

var errPeerClosed = errors.New("notify: connection closed")

// peer serializes writes to one websocket connection.
type peer struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func (p *peer) send(ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPeerClosed
	}
	if p.writeTimeout > 0 {
		_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	}
	return websocket.JSON.Send(p.conn, ev)
}

func (p *peer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	_ = p.conn.Close()
}

type inbound struct {
	event Event
	err   error
}

// Hub routes completion and failure events to the connection registered for a session.
type Hub struct {
	mu       sync.Mutex
	conns    map[string]*peer
	sessions map[string]string // session id -> connection id

	node         *snowflake.Node
	resolve      SessionResolver
	writeTimeout time.Duration
	logger       *zap.Logger
}

// SessionResolver looks up a pending authorization by session id.
type SessionResolver func(sessionID string) (oauth.PendingSession, bool)

// HubOption customises a Hub.
type HubOption func(*Hub)

// WithSessionResolver makes the hub answer a registration with the session's authorization URL.
func WithSessionResolver(resolve SessionResolver) HubOption {
	return func(h *Hub) {
		h.resolve = resolve
	}
}

// WithWriteTimeout bounds every write to a connection. Zero disables the deadline.
func WithWriteTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		h.writeTimeout = d
	}
}

// NewHub constructs a Hub. A nil node falls back to snowflake node 1.
func NewHub(node *snowflake.Node, logger *zap.Logger, opts ...HubOption) (*Hub, error) {
	if node == nil {
		var err error
		node, err = snowflake.NewNode(1)
		if err != nil {
			return nil, err
		}
	}
	h := &Hub{
		conns:        make(map[string]*peer),
		sessions:     make(map[string]string),
		node:         node,
		writeTimeout: defaultWriteTimeout,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handler upgrades requests to the channel. Origins are not checked; the CLI is not a browser.
func (h *Hub) Handler() http.Handler {
	return websocket.Server{Handler: h.serve}
}

func (h *Hub) serve(conn *websocket.Conn) {
	p := &peer{id: h.node.Generate().String(), conn: conn, writeTimeout: h.writeTimeout}
	h.mu.Lock()
	h.conns[p.id] = p
	h.mu.Unlock()
	h.log().Info("channel connected", zap.String("connection_id", p.id))

	defer func() {
		p.close()
		h.remove(p.id)
		h.log().Info("channel closed", zap.String("connection_id", p.id))
	}()

	if err := p.send(Event{Type: EventPing}); err != nil {
		return
	}

	inbox := make(chan inbound, inboxSize)
	go readLoop(conn, inbox)
	for in := range inbox {
		h.dispatch(p, in)
	}
}

// readLoop decodes frames onto inbox until the connection fails, then closes inbox.
func readLoop(conn *websocket.Conn, inbox chan<- inbound) {
	defer close(inbox)
	for {
		var raw []byte
		if err := websocket.Message.Receive(conn, &raw); err != nil {
			return
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			inbox <- inbound{err: err}
			continue
		}
		inbox <- inbound{event: ev}
	}
}

func (h *Hub) dispatch(p *peer, in inbound) {
	if in.err != nil {
		h.log().Warn("malformed channel message", zap.String("connection_id", p.id), zap.Error(in.err))
		_ = p.send(Event{Type: EventAuthError, Error: MsgInvalidFormat})
		return
	}

	switch in.event.Type {
	case EventPong:
	case EventPing:
		_ = p.send(Event{Type: EventPong})
	case EventAuthRequest:
		if in.event.SessionID == "" {
			h.log().Warn("auth_request without session id", zap.String("connection_id", p.id))
			return
		}
		h.bind(in.event.SessionID, p.id)
		h.sendAuthURL(p, in.event.SessionID)
	default:
		h.log().Warn("unknown channel message type",
			zap.String("connection_id", p.id),
			zap.String("type", string(in.event.Type)),
		)
	}
}

func (h *Hub) bind(sessionID, connID string) {
	h.mu.Lock()
	h.sessions[sessionID] = connID
	h.mu.Unlock()
	h.log().Info("session bound",
		zap.String("session_id", sessionID),
		zap.String("connection_id", connID),
	)
}

// remove drops the connection and every session still routed to it.
// sendAuthURL echoes the registration with the URL the user has to visit.
func (h *Hub) sendAuthURL(p *peer, sessionID string) {
	if h.resolve == nil {
		return
	}
	session, ok := h.resolve(sessionID)
	if !ok || session.AuthURL == "" {
		return
	}
	err := p.send(Event{
		Type:      EventAuthRequest,
		Platform:  session.Platform,
		SessionID: sessionID,
		AuthURL:   session.AuthURL,
	})
	if err != nil {
		h.log().Warn("send auth url", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (h *Hub) remove(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, connID)
	for sessionID, id := range h.sessions {
		if id == connID {
			delete(h.sessions, sessionID)
		}
	}
}

// claim removes the session mapping and returns its connection, if still open.
func (h *Hub) claim(sessionID string) (*peer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	connID, ok := h.sessions[sessionID]
	if !ok {
		return nil, false
	}
	delete(h.sessions, sessionID)
	p, ok := h.conns[connID]
	return p, ok
}

// NotifyCompletion delivers tokens to the session's connection once. It reports whether
// the event was sent.
func (h *Hub) NotifyCompletion(sessionID string, platform oauth.Platform, tokens *oauth.TokenSet) bool {
	return h.deliver(sessionID, Event{
		Type:      EventAuthComplete,
		Platform:  platform,
		SessionID: sessionID,
		Tokens:    tokens,
	})
}

// NotifyFailure delivers a failure to the session's connection once.
func (h *Hub) NotifyFailure(sessionID string, platform oauth.Platform, errText string) bool {
	return h.deliver(sessionID, Event{
		Type:      EventAuthError,
		Platform:  platform,
		SessionID: sessionID,
		Error:     errText,
	})
}

func (h *Hub) deliver(sessionID string, ev Event) bool {
	p, ok := h.claim(sessionID)
	if !ok {
		h.log().Warn("dropping channel event",
			zap.String("session_id", sessionID),
			zap.String("type", string(ev.Type)),
			zap.Error(oauth.ErrChannelDeliveryMiss),
		)
		return false
	}
	if err := p.send(ev); err != nil {
		h.log().Warn("channel send failed",
			zap.String("session_id", sessionID),
			zap.String("connection_id", p.id),
			zap.Error(err),
		)
		p.close()
		h.remove(p.id)
		return false
	}
	h.log().Info("channel event delivered",
		zap.String("session_id", sessionID),
		zap.String("type", string(ev.Type)),
	)
	return true
}

// BroadcastHeartbeat pings every connection and drops the ones that can no longer be written.
func (h *Hub) BroadcastHeartbeat() int {
	h.mu.Lock()
	peers := make([]*peer, 0, len(h.conns))
	for _, p := range h.conns {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	alive := 0
	for _, p := range peers {
		if err := p.send(Event{Type: EventPing}); err != nil {
			p.close()
			h.remove(p.id)
			continue
		}
		alive++
	}
	return alive
}

// Run broadcasts a heartbeat every interval until ctx is done. onTick, when set, runs after
// each broadcast.
func (h *Hub) Run(ctx context.Context, interval time.Duration, onTick func(time.Time)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.BroadcastHeartbeat()
			if onTick != nil {
				onTick(now)
			}
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	peers := make([]*peer, 0, len(h.conns))
	for _, p := range h.conns {
		peers = append(peers, p)
	}
	h.mu.Unlock()
	for _, p := range peers {
		p.close()
	}
}

// Connections reports the number of open connections.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) bound(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.sessions[sessionID]
	return ok
}

func (h *Hub) log() *zap.Logger {
	if h != nil && h.logger != nil {
		return h.logger
	}
	return zap.L()
}
