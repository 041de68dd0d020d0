package lifecycle

import (
	"log"
	"sync"
)

// Disconnector is the only thing the coordinator needs from a channel
type Disconnector interface {
	Disconnect()
}

// Coordinator ties authentication state transitions to channel teardown
// for the whole process, independent of which view is active. It is an
// explicitly constructed object with a lifetime bound to startup and
// shutdown, not a package global. It never creates connections: views
// connect with their own credential, the coordinator only tears down.
type Coordinator struct {
	mu       sync.Mutex
	channels []Disconnector
	onForget []func()
	shutdown bool
}

// New creates a coordinator
func New() *Coordinator {
	return &Coordinator{}
}

// BindChannel registers a channel for teardown. Binding after Shutdown
// disconnects it immediately.
func (c *Coordinator) BindChannel(ch Disconnector) {
	c.mu.Lock()
	dead := c.shutdown
	if !dead {
		c.channels = append(c.channels, ch)
	}
	c.mu.Unlock()

	if dead {
		ch.Disconnect()
	}
}

// OnForgetCredentials registers a callback run when the session logs out,
// so views can drop their cached credentials.
func (c *Coordinator) OnForgetCredentials(fn func()) {
	c.mu.Lock()
	c.onForget = append(c.onForget, fn)
	c.mu.Unlock()
}

// LoggedOut force-disconnects every bound channel and clears credentials.
// Channels stay bound; a later login may reconnect them with a fresh
// credential.
func (c *Coordinator) LoggedOut() {
	c.mu.Lock()
	channels := append([]Disconnector(nil), c.channels...)
	forget := append([]func(){}, c.onForget...)
	c.mu.Unlock()

	log.Printf("🔒 Logged out: tearing down %d channel(s)", len(channels))
	for _, ch := range channels {
		ch.Disconnect()
	}
	for _, fn := range forget {
		fn()
	}
}

// Shutdown force-disconnects unconditionally at process teardown.
// Idempotent.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return
	}
	c.shutdown = true
	channels := append([]Disconnector(nil), c.channels...)
	c.channels = nil
	c.mu.Unlock()

	log.Printf("🛑 Shutdown: tearing down %d channel(s)", len(channels))
	for _, ch := range channels {
		ch.Disconnect()
	}
}
