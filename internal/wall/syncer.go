package wall

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/snapwall-app/snapwall/internal/api"
	"github.com/snapwall-app/snapwall/internal/auth"
	"github.com/snapwall-app/snapwall/internal/channel"
	"github.com/snapwall-app/snapwall/internal/models"
)

// Syncer wires the channel into the engine: it applies the event stream
// and re-hydrates from a REST snapshot on every transition to Open.
// Ordering holds within one transport; across a reconnect it does not,
// which is why the snapshot, not replay, reconciles the gap.
type Syncer struct {
	engine *Engine
	ch     *channel.Channel
	api    *api.Client
	auth   *auth.Authenticator

	mu       sync.Mutex
	cred     *models.ShareCredential
	password string

	hydrate   chan struct{}
	retryBase time.Duration
}

const hydrateRetryMax = 30 * time.Second

// NewSyncer builds a syncer. auth may be nil; without it an authorization
// failure is surfaced but not self-healed.
func NewSyncer(engine *Engine, ch *channel.Channel, client *api.Client, authn *auth.Authenticator, cred *models.ShareCredential, password string) *Syncer {
	return &Syncer{
		engine:    engine,
		ch:        ch,
		api:       client,
		auth:      authn,
		cred:      cred,
		password:  password,
		hydrate:   make(chan struct{}, 1),
		retryBase: 2 * time.Second,
	}
}

// Credential returns the credential currently in use
func (s *Syncer) Credential() *models.ShareCredential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred
}

func (s *Syncer) setCredential(cred *models.ShareCredential) {
	s.mu.Lock()
	s.cred = cred
	s.mu.Unlock()
}

// Run connects the channel and services hydration requests until ctx is
// done. It does not own the channel's teardown; the lifecycle
// coordinator does.
func (s *Syncer) Run(ctx context.Context) error {
	unsubEvents := s.ch.Subscribe(func(msg models.WallMessage) {
		if msg.IsPhotoEvent() {
			s.engine.Apply(msg)
		}
	})
	defer unsubEvents()

	unsubState := s.ch.OnStateChange(func(from, to channel.State) {
		if to == channel.StateOpen {
			select {
			case s.hydrate <- struct{}{}:
			default:
			}
		}
	})
	defer unsubState()

	if err := s.ch.Connect(s.Credential()); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.hydrate:
			s.hydrateOnce(ctx)
		}
	}
}

// hydrateOnce fetches a snapshot and advances the channel's dedup floor
// past everything the snapshot already covers. Reconciliation is an
// obligation, not an attempt: while the channel stays Open the fetch is
// retried with backoff for as long as it takes, because every event
// missed during the gap is lost until the snapshot lands. Only a channel
// that left Open releases the loop; its next Open re-signals hydration.
func (s *Syncer) hydrateOnce(ctx context.Context) {
	delay := s.retryBase

	for {
		if s.ch.State() != channel.StateOpen {
			return
		}

		snap, err := s.api.FetchSnapshot(ctx, s.Credential())
		if err == nil {
			s.engine.Hydrate(snap)
			s.ch.Advance(s.engine.MaxSequence())
			return
		}

		if errors.Is(err, api.ErrUnauthorized) || errors.Is(err, api.ErrCredentialExpired) {
			// The socket may well still be Open: the server can reject a
			// stale bearer token on REST before it revokes the stream. A
			// successful re-resolve feeds the next loop pass directly.
			s.refreshCredential(ctx)
		} else {
			log.Printf("⚠️ Snapshot fetch failed, retrying in %s: %v", delay, err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay < hydrateRetryMax {
			delay *= 2
			if delay > hydrateRetryMax {
				delay = hydrateRetryMax
			}
		}
	}
}

// refreshCredential re-resolves the share. When the channel closed itself
// on the authorization failure, the fresh Connect reopens it; when the
// socket survived, the hydrate retry loop picks the new credential up on
// its next pass. Without an authenticator the failure stands until the
// caller supplies a fresh credential.
func (s *Syncer) refreshCredential(ctx context.Context) {
	if s.auth == nil {
		log.Printf("⛔ Snapshot unauthorized and no authenticator bound; wall frozen until re-auth")
		return
	}

	old := s.Credential()
	if old == nil {
		return
	}
	cred, err := s.auth.Resolve(ctx, old.ShareToken, s.password)
	if err != nil {
		log.Printf("⛔ Re-resolve failed: %v", err)
		return
	}
	s.setCredential(cred)

	if err := s.ch.Connect(cred); err != nil {
		log.Printf("⛔ Reconnect after re-resolve failed: %v", err)
	}
}
