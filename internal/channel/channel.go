package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/snapwall-app/snapwall/internal/models"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB
)

// errUnauthorized marks handshake/credential failures that are fatal for
// the current channel. Never retried without a fresh credential.
var errUnauthorized = errors.New("channel unauthorized")

// ErrCredentialExpired is returned by Connect when the supplied
// credential is already past its expiry. Fail closed, no dial attempt.
var ErrCredentialExpired = errors.New("credential expired")

// Config tunes one Channel instance
type Config struct {
	// URL is the websocket base, e.g. wss://host; the event stream lives
	// at {URL}/ws/events/{eventID}
	URL string

	DialTimeout      time.Duration
	HeartbeatTimeout time.Duration
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	BackoffJitter    float64
	// MaxRetries is the consecutive-failure ceiling past which a single
	// Unreachable error is emitted. Reconnection continues regardless
	// until Disconnect.
	MaxRetries    int
	ReorderWindow int
}

func (c *Config) applyDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 45 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 10
	}
	if c.ReorderWindow <= 0 {
		c.ReorderWindow = 32
	}
}

// Handler receives dispatched channel messages. Photo events arrive in
// non-decreasing sequence order; duplicates are never re-delivered.
type Handler func(models.WallMessage)

// StateHandler observes state transitions
type StateHandler func(from, to State)

// Channel maintains at most one live event stream per instance: dial,
// authenticate, watch liveness, reconnect with backoff, and deliver an
// ordered, deduplicated event sequence to subscribers.
type Channel struct {
	cfg Config

	mu         sync.RWMutex
	state      State
	cred       *models.ShareCredential
	conn       *websocket.Conn
	cancel     context.CancelFunc
	reorder    *reorderBuffer
	subs       map[string]Handler
	stateSubs  map[string]StateHandler
	generation uint64
	// unreachableSent gates the one-shot Unreachable error per outage
	unreachableSent bool
}

// New creates an idle channel
func New(cfg Config) *Channel {
	cfg.applyDefaults()
	return &Channel{
		cfg:       cfg,
		state:     StateIdle,
		reorder:   newReorderBuffer(cfg.ReorderWindow),
		subs:      make(map[string]Handler),
		stateSubs: make(map[string]StateHandler),
	}
}

// State returns the current lifecycle state
func (c *Channel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// EventID returns the event the channel is bound to, if any
func (c *Channel) EventID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cred == nil {
		return ""
	}
	return c.cred.EventID
}

// Subscribe registers a handler for the domain-event sequence and returns
// its unsubscribe func. Handlers run on the channel's read goroutine, so
// they must not block.
func (c *Channel) Subscribe(fn Handler) func() {
	id := uuid.New().String()
	c.mu.Lock()
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// OnStateChange registers an observer for state transitions and returns
// its unsubscribe func.
func (c *Channel) OnStateChange(fn StateHandler) func() {
	id := uuid.New().String()
	c.mu.Lock()
	c.stateSubs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.stateSubs, id)
		c.mu.Unlock()
	}
}

// Connect starts (or keeps) the event stream for the credential's event.
// No-op when the channel is already live for the same event. Connecting
// to a different event tears the prior stream down first; there is at
// most one live stream per channel instance.
func (c *Channel) Connect(cred *models.ShareCredential) error {
	if cred == nil {
		return errors.New("nil credential")
	}

	c.mu.Lock()
	if c.state.active() && c.cred != nil && c.cred.EventID == cred.EventID {
		c.mu.Unlock()
		return nil
	}
	// Fail closed before touching any live stream: an expired credential
	// must not cost us the transport we already have.
	if cred.Expired(time.Now()) {
		c.mu.Unlock()
		return ErrCredentialExpired
	}
	if c.state.active() {
		c.teardownLocked()
	}

	c.cred = cred
	c.generation++
	gen := c.generation
	c.reorder = newReorderBuffer(c.cfg.ReorderWindow)
	c.unreachableSent = false

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	c.setState(gen, StateConnecting)
	go c.run(ctx, gen, cred)
	return nil
}

// Disconnect tears down the transport, cancels any in-flight connect or
// backoff timer, and moves to Closed. Idempotent and non-throwing; stale
// completions from the old generation are discarded.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.reorder = newReorderBuffer(c.cfg.ReorderWindow)
	from := c.state
	c.state = StateClosed
	c.cred = nil
	handlers := c.stateHandlersLocked()
	c.mu.Unlock()

	if from != StateClosed {
		log.Printf("📴 Channel closed")
		for _, fn := range handlers {
			fn(from, StateClosed)
		}
	}
}

// Advance raises the dedup floor to seq. Called after a snapshot hydrate
// so events the snapshot already covers are not replayed onto the wall.
func (c *Channel) Advance(seq int64) {
	c.mu.Lock()
	var ready []models.WallMessage
	if c.reorder != nil {
		ready = c.reorder.advance(seq)
	}
	gen := c.generation
	c.mu.Unlock()

	for _, m := range ready {
		c.dispatch(gen, m)
	}
}

// teardownLocked kills the current stream without notifying state
// subscribers; the caller transitions state afterwards.
func (c *Channel) teardownLocked() {
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Channel) isCurrent(gen uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return gen == c.generation
}

// setState applies a transition if gen is still current and notifies
// observers outside the lock. Returns false when the completion is stale.
func (c *Channel) setState(gen uint64, to State) bool {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return false
	}
	from := c.state
	c.state = to
	handlers := c.stateHandlersLocked()
	c.mu.Unlock()

	if from == to {
		return true
	}
	for _, fn := range handlers {
		fn(from, to)
	}
	return true
}

func (c *Channel) stateHandlersLocked() []StateHandler {
	out := make([]StateHandler, 0, len(c.stateSubs))
	for _, fn := range c.stateSubs {
		out = append(out, fn)
	}
	return out
}

// run owns the dial/auth/read/reconnect cycle for one generation
func (c *Channel) run(ctx context.Context, gen uint64, cred *models.ShareCredential) {
	attempt := 0
	for {
		conn, err := c.dialAndAuth(ctx, gen, cred)
		if err != nil {
			if errors.Is(err, errUnauthorized) {
				c.fail(gen, models.KindUnauthorized, err)
				return
			}
			if ctx.Err() != nil || !c.isCurrent(gen) {
				return
			}

			attempt++
			if !c.setState(gen, StateReconnecting) {
				return
			}
			if attempt > c.cfg.MaxRetries && c.markUnreachable(gen) {
				log.Printf("🛑 Channel unreachable after %d attempts: event=%s", attempt, cred.EventID)
				c.emitError(gen, models.KindUnreachable, "retry ceiling reached")
			}

			delay := backoffDelay(c.cfg.BackoffBase, c.cfg.BackoffMax, c.cfg.BackoffJitter, attempt)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		c.mu.Lock()
		if gen != c.generation {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.unreachableSent = false
		c.mu.Unlock()

		attempt = 0
		if !c.setState(gen, StateOpen) {
			conn.Close()
			return
		}
		log.Printf("📡 Channel open: event=%s", cred.EventID)

		err = c.readLoop(ctx, gen, conn)
		conn.Close()
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()

		if ctx.Err() != nil || !c.isCurrent(gen) {
			return
		}
		if errors.Is(err, errUnauthorized) {
			c.fail(gen, models.KindUnauthorized, err)
			return
		}

		log.Printf("📴 Channel transport drop: event=%s err=%v", cred.EventID, err)
		reconnectsTotal.Inc()
		if !c.setState(gen, StateReconnecting) {
			return
		}
	}
}

// dialAndAuth opens the websocket and performs the AUTH handshake.
// Authorization failures come back as errUnauthorized; anything else is
// a transient transport error subject to backoff.
func (c *Channel) dialAndAuth(ctx context.Context, gen uint64, cred *models.ShareCredential) (*websocket.Conn, error) {
	// A credential that expired while we were backing off must not be
	// presented; the channel closes and waits for a fresh one.
	if cred.Expired(time.Now()) {
		return nil, fmt.Errorf("%w: expired before dial", errUnauthorized)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.DialTimeout,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
	url := fmt.Sprintf("%s/ws/events/%s", strings.TrimRight(c.cfg.URL, "/"), cred.EventID)

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake rejected", errUnauthorized)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}

	// Initial connects walk Connecting -> Authenticating -> Open; during
	// reconnects the channel stays in Reconnecting until Open.
	if c.State() == StateConnecting {
		c.setState(gen, StateAuthenticating)
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(models.WallMessage{Type: models.MsgAuth, Token: cred.AccessToken}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("auth send: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.cfg.DialTimeout))
	var reply models.WallMessage
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close()
		return nil, fmt.Errorf("auth reply: %w", err)
	}

	switch reply.Type {
	case models.MsgAuthOK:
		return conn, nil
	case models.MsgAuthFail:
		conn.Close()
		return nil, fmt.Errorf("%w: auth rejected", errUnauthorized)
	default:
		conn.Close()
		return nil, fmt.Errorf("unexpected handshake reply %q", reply.Type)
	}
}

// readLoop pumps frames until the transport drops or liveness times out.
// Any server frame (data or heartbeat) proves liveness and re-arms the
// watchdog; a silent-but-open socket is treated as a drop.
func (c *Channel) readLoop(ctx context.Context, gen uint64, conn *websocket.Conn) error {
	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go c.pingLoop(pingCtx, conn)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(c.cfg.HeartbeatTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.HeartbeatTimeout))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(c.cfg.HeartbeatTimeout))

		var msg models.WallMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Invalid channel frame: %v", err)
			continue
		}

		switch {
		case msg.Type == models.MsgAuthFail:
			// Server revoked the credential mid-stream
			return fmt.Errorf("%w: revoked", errUnauthorized)

		case msg.Type == models.EventHeartbeat:
			c.dispatch(gen, msg)

		case msg.IsPhotoEvent():
			c.mu.Lock()
			if gen != c.generation || c.reorder == nil {
				c.mu.Unlock()
				return nil
			}
			ready, dropped := c.reorder.add(msg)
			c.mu.Unlock()
			if dropped {
				droppedTotal.Inc()
			}
			for _, m := range ready {
				c.dispatch(gen, m)
			}
		}
	}
}

// pingLoop keeps the transport warm the same way the server expects:
// pings at 9/10 of the liveness window.
func (c *Channel) pingLoop(ctx context.Context, conn *websocket.Conn) {
	pingPeriod := c.cfg.HeartbeatTimeout * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// fail surfaces a terminal error and closes the channel. Requires a
// fresh credential (external re-authentication) before any new Connect.
func (c *Channel) fail(gen uint64, kind models.ErrorKind, err error) {
	if !c.isCurrent(gen) {
		return
	}
	log.Printf("⛔ Channel terminal failure (%s): %v", kind, err)
	c.emitError(gen, kind, err.Error())
	c.setState(gen, StateClosed)
	c.mu.Lock()
	if gen == c.generation {
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		c.cred = nil
	}
	c.mu.Unlock()
}

func (c *Channel) markUnreachable(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || c.unreachableSent {
		return false
	}
	c.unreachableSent = true
	return true
}

func (c *Channel) emitError(gen uint64, kind models.ErrorKind, message string) {
	channelErrorsTotal.WithLabelValues(string(kind)).Inc()
	c.dispatch(gen, models.WallMessage{
		Type:  models.EventChannelError,
		Error: &models.ChannelError{Kind: kind, Message: message},
	})
}

// dispatch fans a message out to subscribers, dropping stale generations
func (c *Channel) dispatch(gen uint64, msg models.WallMessage) {
	c.mu.RLock()
	if gen != c.generation {
		c.mu.RUnlock()
		return
	}
	handlers := make([]Handler, 0, len(c.subs))
	for _, fn := range c.subs {
		handlers = append(handlers, fn)
	}
	c.mu.RUnlock()

	for _, fn := range handlers {
		fn(msg)
	}
}
