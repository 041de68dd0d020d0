package channel

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/snapwall-app/snapwall/internal/models"
)

// wsServer is a minimal event-stream endpoint: it performs the AUTH
// handshake and hands accepted connections to the test.
type wsServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu         sync.Mutex
	dials      int
	rejectNext int  // fail this many upcoming handshakes with 503
	authFail   bool // reply AUTH_FAIL to every handshake
	silent     bool // accept, then never read or write (watchdog tests)

	conns  chan *websocket.Conn
	closed chan *websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	s := &wsServer{
		t:      t,
		conns:  make(chan *websocket.Conn, 8),
		closed: make(chan *websocket.Conn, 8),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *wsServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.dials++
	reject := s.rejectNext > 0
	if reject {
		s.rejectNext--
	}
	authFail := s.authFail
	silent := s.silent
	s.mu.Unlock()

	if reject {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	var hello models.WallMessage
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != models.MsgAuth {
		conn.Close()
		return
	}
	if authFail {
		conn.WriteJSON(models.WallMessage{Type: models.MsgAuthFail})
		conn.Close()
		return
	}
	if err := conn.WriteJSON(models.WallMessage{Type: models.MsgAuthOK}); err != nil {
		conn.Close()
		return
	}

	if !silent {
		// Keep reading so client pings are answered with pongs; report
		// the connection's death for teardown assertions.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					s.closed <- conn
					return
				}
			}
		}()
	}
	s.conns <- conn
}

func (s *wsServer) acceptConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.conns:
		return conn
	case <-time.After(3 * time.Second):
		t.Fatal("server never accepted a connection")
		return nil
	}
}

func testCred(eventID string) *models.ShareCredential {
	exp := time.Now().Add(time.Hour)
	return &models.ShareCredential{
		ShareToken:  "tok-" + eventID,
		AccessToken: "access-" + eventID,
		EventID:     eventID,
		Permissions: models.SharePermissions{CanView: true},
		ExpiresAt:   &exp,
	}
}

func testConfig(url string) Config {
	return Config{
		URL:              url,
		DialTimeout:      2 * time.Second,
		HeartbeatTimeout: 5 * time.Second,
		BackoffBase:      20 * time.Millisecond,
		BackoffMax:       50 * time.Millisecond,
		BackoffJitter:    0,
		MaxRetries:       10,
		ReorderWindow:    16,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// collector accumulates dispatched messages for assertions
type collector struct {
	mu   sync.Mutex
	msgs []models.WallMessage
}

func (c *collector) handler(msg models.WallMessage) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
}

func (c *collector) photoSeqs() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []int64
	for _, m := range c.msgs {
		if m.IsPhotoEvent() {
			out = append(out, m.Sequence)
		}
	}
	return out
}

func (c *collector) errorsOfKind(kind models.ErrorKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.msgs {
		if m.Type == models.EventChannelError && m.Error != nil && m.Error.Kind == kind {
			n++
		}
	}
	return n
}

func sendPhoto(t *testing.T, conn *websocket.Conn, seq int64) {
	t.Helper()
	err := conn.WriteJSON(models.WallMessage{
		Type:     models.EventPhotoAdded,
		Sequence: seq,
		Photo:    &models.PhotoRecord{ID: "p", Sequence: seq},
	})
	if err != nil {
		t.Fatalf("send photo seq %d: %v", seq, err)
	}
}

func TestConnectDeliversOrderedEvents(t *testing.T) {
	srv := newWSServer(t)
	ch := New(testConfig(srv.url()))
	defer ch.Disconnect()

	var col collector
	ch.Subscribe(col.handler)

	if err := ch.Connect(testCred("ev1")); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn := srv.acceptConn(t)
	waitFor(t, "open", func() bool { return ch.State() == StateOpen })

	// 1 primes the stream, 3 is held, 2 releases 3.
	sendPhoto(t, conn, 1)
	sendPhoto(t, conn, 3)
	sendPhoto(t, conn, 2)

	waitFor(t, "three events", func() bool { return len(col.photoSeqs()) == 3 })
	got := col.photoSeqs()
	for i, want := range []int64{1, 2, 3} {
		if got[i] != want {
			t.Fatalf("delivery order %v, want [1 2 3]", got)
		}
	}
}

func TestConnectSameEventIsNoop(t *testing.T) {
	srv := newWSServer(t)
	ch := New(testConfig(srv.url()))
	defer ch.Disconnect()

	cred := testCred("ev1")
	if err := ch.Connect(cred); err != nil {
		t.Fatalf("connect: %v", err)
	}
	srv.acceptConn(t)
	waitFor(t, "open", func() bool { return ch.State() == StateOpen })

	if err := ch.Connect(cred); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if n := srv.dialCount(); n != 1 {
		t.Errorf("dials = %d, want 1 (same-event connect must be a no-op)", n)
	}
	if ch.State() != StateOpen {
		t.Errorf("state = %v, want open", ch.State())
	}
}

func TestConnectRejectsExpiredCredential(t *testing.T) {
	srv := newWSServer(t)
	ch := New(testConfig(srv.url()))

	past := time.Now().Add(-time.Minute)
	cred := testCred("ev1")
	cred.ExpiresAt = &past

	if err := ch.Connect(cred); err != ErrCredentialExpired {
		t.Fatalf("connect with expired credential: err = %v, want ErrCredentialExpired", err)
	}
	if n := srv.dialCount(); n != 0 {
		t.Errorf("dials = %d, want 0 (fail closed, no network)", n)
	}
}

func TestAuthFailureIsTerminal(t *testing.T) {
	srv := newWSServer(t)
	srv.mu.Lock()
	srv.authFail = true
	srv.mu.Unlock()

	ch := New(testConfig(srv.url()))
	var col collector
	ch.Subscribe(col.handler)

	if err := ch.Connect(testCred("ev1")); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, "closed", func() bool { return ch.State() == StateClosed })

	if n := col.errorsOfKind(models.KindUnauthorized); n != 1 {
		t.Errorf("unauthorized errors = %d, want exactly 1", n)
	}

	// No retries without a fresh credential.
	time.Sleep(150 * time.Millisecond)
	if n := srv.dialCount(); n != 1 {
		t.Errorf("dials = %d, want 1 (no retry after auth failure)", n)
	}
}

func TestReconnectWithBackoff(t *testing.T) {
	srv := newWSServer(t)
	ch := New(testConfig(srv.url()))
	defer ch.Disconnect()

	var tmu sync.Mutex
	var transitions []State
	ch.OnStateChange(func(_, to State) {
		tmu.Lock()
		transitions = append(transitions, to)
		tmu.Unlock()
	})

	if err := ch.Connect(testCred("ev1")); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn := srv.acceptConn(t)
	waitFor(t, "open", func() bool { return ch.State() == StateOpen })

	// Three attempts fail, the fourth succeeds.
	srv.mu.Lock()
	srv.rejectNext = 3
	srv.mu.Unlock()
	conn.Close()

	waitFor(t, "reconnecting", func() bool { return ch.State() == StateReconnecting })
	srv.acceptConn(t)
	waitFor(t, "reopen", func() bool { return ch.State() == StateOpen })

	// 1 initial + 3 rejected + 1 successful retry
	if n := srv.dialCount(); n != 5 {
		t.Errorf("dials = %d, want 5", n)
	}

	tmu.Lock()
	defer tmu.Unlock()
	sawDrop := false
	for i := 1; i < len(transitions); i++ {
		if transitions[i-1] == StateReconnecting && transitions[i] == StateOpen {
			sawDrop = true
		}
	}
	if !sawDrop {
		t.Errorf("transitions %v missing reconnecting->open", transitions)
	}
}

func TestUnreachableEmittedOnce(t *testing.T) {
	srv := newWSServer(t)
	cfg := testConfig(srv.url())
	cfg.MaxRetries = 2
	ch := New(cfg)
	defer ch.Disconnect()

	var col collector
	ch.Subscribe(col.handler)

	srv.mu.Lock()
	srv.rejectNext = 1000
	srv.mu.Unlock()

	if err := ch.Connect(testCred("ev1")); err != nil {
		t.Fatalf("connect: %v", err)
	}

	waitFor(t, "unreachable error", func() bool { return col.errorsOfKind(models.KindUnreachable) >= 1 })
	// More attempts keep failing but must not re-emit.
	time.Sleep(300 * time.Millisecond)
	if n := col.errorsOfKind(models.KindUnreachable); n != 1 {
		t.Errorf("unreachable errors = %d, want exactly 1", n)
	}
	if ch.State() != StateReconnecting {
		t.Errorf("state = %v, want reconnecting (never gives up by itself)", ch.State())
	}
}

func TestHeartbeatWatchdogTreatsSilenceAsDrop(t *testing.T) {
	srv := newWSServer(t)
	srv.mu.Lock()
	srv.silent = true
	srv.rejectNext = 0
	srv.mu.Unlock()

	cfg := testConfig(srv.url())
	cfg.HeartbeatTimeout = 200 * time.Millisecond
	ch := New(cfg)
	defer ch.Disconnect()

	if err := ch.Connect(testCred("ev1")); err != nil {
		t.Fatalf("connect: %v", err)
	}
	srv.acceptConn(t)
	waitFor(t, "open", func() bool { return ch.State() == StateOpen })

	// The socket stays open but nothing arrives; the watchdog must fire.
	waitFor(t, "watchdog drop", func() bool { return ch.State() == StateReconnecting })
}

func TestDisconnectIsIdempotent(t *testing.T) {
	srv := newWSServer(t)
	ch := New(testConfig(srv.url()))

	if err := ch.Connect(testCred("ev1")); err != nil {
		t.Fatalf("connect: %v", err)
	}
	srv.acceptConn(t)
	waitFor(t, "open", func() bool { return ch.State() == StateOpen })

	ch.Disconnect()
	if ch.State() != StateClosed {
		t.Fatalf("state = %v, want closed", ch.State())
	}
	ch.Disconnect() // must not panic or change anything
	if ch.State() != StateClosed {
		t.Fatalf("state after second disconnect = %v, want closed", ch.State())
	}
}

func TestDisconnectCancelsBackoff(t *testing.T) {
	srv := newWSServer(t)
	cfg := testConfig(srv.url())
	cfg.BackoffBase = 5 * time.Second // long timer that must be cancelled
	ch := New(cfg)

	srv.mu.Lock()
	srv.rejectNext = 1000
	srv.mu.Unlock()

	if err := ch.Connect(testCred("ev1")); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, "reconnecting", func() bool { return ch.State() == StateReconnecting })

	done := make(chan struct{})
	go func() {
		ch.Disconnect()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disconnect blocked on a pending backoff timer")
	}
	if ch.State() != StateClosed {
		t.Errorf("state = %v, want closed", ch.State())
	}
}

func TestSwitchingEventsTearsDownPriorStream(t *testing.T) {
	srv := newWSServer(t)
	ch := New(testConfig(srv.url()))
	defer ch.Disconnect()

	if err := ch.Connect(testCred("ev1")); err != nil {
		t.Fatalf("connect ev1: %v", err)
	}
	conn1 := srv.acceptConn(t)
	waitFor(t, "open ev1", func() bool { return ch.State() == StateOpen })

	if err := ch.Connect(testCred("ev2")); err != nil {
		t.Fatalf("connect ev2: %v", err)
	}
	srv.acceptConn(t)
	waitFor(t, "open ev2", func() bool {
		return ch.State() == StateOpen && ch.EventID() == "ev2"
	})

	// The first transport must be dead.
	select {
	case dead := <-srv.closed:
		if dead != conn1 {
			t.Logf("a different connection closed first; still counts as teardown")
		}
	case <-time.After(2 * time.Second):
		t.Error("prior event's connection still alive after switch")
	}
}

func TestSwitchToExpiredCredentialKeepsCurrentStream(t *testing.T) {
	srv := newWSServer(t)
	ch := New(testConfig(srv.url()))
	defer ch.Disconnect()

	var col collector
	ch.Subscribe(col.handler)

	if err := ch.Connect(testCred("ev1")); err != nil {
		t.Fatalf("connect ev1: %v", err)
	}
	conn := srv.acceptConn(t)
	waitFor(t, "open ev1", func() bool { return ch.State() == StateOpen })

	past := time.Now().Add(-time.Minute)
	expired := testCred("ev2")
	expired.ExpiresAt = &past

	if err := ch.Connect(expired); err != ErrCredentialExpired {
		t.Fatalf("connect ev2 expired: err = %v, want ErrCredentialExpired", err)
	}

	// The rejected switch must not have cost us the live ev1 stream.
	if ch.State() != StateOpen || ch.EventID() != "ev1" {
		t.Fatalf("state=%v event=%q after rejected switch, want open/ev1", ch.State(), ch.EventID())
	}
	sendPhoto(t, conn, 1)
	waitFor(t, "event on surviving stream", func() bool { return len(col.photoSeqs()) == 1 })

	// And a repeat connect for the live event is still the usual no-op,
	// not a no-op against a dead transport.
	if err := ch.Connect(testCred("ev1")); err != nil {
		t.Fatalf("reconnect ev1: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if n := srv.dialCount(); n != 1 {
		t.Errorf("dials = %d, want 1", n)
	}
	sendPhoto(t, conn, 2)
	waitFor(t, "second event", func() bool { return len(col.photoSeqs()) == 2 })
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	srv := newWSServer(t)
	ch := New(testConfig(srv.url()))
	defer ch.Disconnect()

	var col collector
	unsub := ch.Subscribe(col.handler)

	if err := ch.Connect(testCred("ev1")); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn := srv.acceptConn(t)
	waitFor(t, "open", func() bool { return ch.State() == StateOpen })

	sendPhoto(t, conn, 1)
	waitFor(t, "first event", func() bool { return len(col.photoSeqs()) == 1 })

	unsub()
	sendPhoto(t, conn, 2)
	time.Sleep(100 * time.Millisecond)
	if n := len(col.photoSeqs()); n != 1 {
		t.Errorf("events after unsubscribe = %d, want 1", n)
	}
}
