package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/snapwall-app/snapwall/internal/api"
	"github.com/snapwall-app/snapwall/internal/auth"
	"github.com/snapwall-app/snapwall/internal/models"
)

var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "snapwall_capture_queue_depth",
		Help: "Captured images waiting for a confirmed upload.",
	})
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapwall_uploads_total",
		Help: "Upload attempts from the capture queue, by outcome.",
	}, []string{"outcome"})
)

// Uploader drains the capture queue in the background: for every queued
// image it confirms the credential is still fresh, uploads, and removes
// the row only on acknowledgment. Failed uploads stay queued for the next
// sweep; nothing is dropped silently.
type Uploader struct {
	store *Store
	api   *api.Client
	auth  *auth.Authenticator

	mu       sync.Mutex
	cred     *models.ShareCredential
	password string
	running  bool
	stopChan chan struct{}

	sweepEvery time.Duration
}

// NewUploader builds an uploader over the store and REST client
func NewUploader(store *Store, client *api.Client, authn *auth.Authenticator, cred *models.ShareCredential, password string, sweepEvery time.Duration) *Uploader {
	if sweepEvery <= 0 {
		sweepEvery = 15 * time.Second
	}
	return &Uploader{
		store:      store,
		api:        client,
		auth:       authn,
		cred:       cred,
		password:   password,
		sweepEvery: sweepEvery,
	}
}

// Start begins background sweeps
func (u *Uploader) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.running {
		return fmt.Errorf("uploader already running")
	}
	u.running = true
	u.stopChan = make(chan struct{})

	log.Printf("⬆️  Uploader starting: sweep every %s", u.sweepEvery)
	go u.loop(u.stopChan)
	return nil
}

// Stop halts background sweeps. Safe to call repeatedly.
func (u *Uploader) Stop() {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.running {
		return
	}
	u.running = false
	close(u.stopChan)
}

func (u *Uploader) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(u.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), u.sweepEvery)
			if _, err := u.DrainOnce(ctx); err != nil {
				log.Printf("⚠️ Upload sweep: %v", err)
			}
			cancel()
		}
	}
}

// DrainOnce walks the queue once and returns how many images were
// acknowledged and removed. A transport error aborts the sweep (the rest
// of the queue will fail the same way); a rejected credential triggers
// one re-resolve before giving up on the sweep.
func (u *Uploader) DrainOnce(ctx context.Context) (int, error) {
	rows, err := u.store.List()
	if err != nil {
		return 0, err
	}
	queueDepth.Set(float64(len(rows)))
	if len(rows) == 0 {
		return 0, nil
	}

	uploaded := 0
	for _, row := range rows {
		cred, err := u.freshCredential(ctx)
		if err != nil {
			return uploaded, err
		}

		_, err = u.api.UploadPhoto(ctx, cred, row.Payload)
		if errors.Is(err, api.ErrUnauthorized) || errors.Is(err, api.ErrCredentialExpired) {
			// One refresh, one retry; a second rejection ends the sweep.
			if cred, err = u.refresh(ctx); err != nil {
				uploadsTotal.WithLabelValues("unauthorized").Inc()
				return uploaded, err
			}
			_, err = u.api.UploadPhoto(ctx, cred, row.Payload)
		}
		if err != nil {
			// Leave the image queued for the next sweep.
			uploadsTotal.WithLabelValues("failed").Inc()
			return uploaded, fmt.Errorf("upload capture %d: %w", row.ID, err)
		}

		if err := u.store.Remove(row.ID); err != nil {
			return uploaded, err
		}
		uploadsTotal.WithLabelValues("ok").Inc()
		uploaded++
		log.Printf("⬆️  Capture %d uploaded and cleared", row.ID)
	}

	if n, err := u.store.Count(); err == nil {
		queueDepth.Set(float64(n))
	}
	return uploaded, nil
}

func (u *Uploader) freshCredential(ctx context.Context) (*models.ShareCredential, error) {
	u.mu.Lock()
	cred := u.cred
	u.mu.Unlock()

	if cred != nil && !cred.Expired(time.Now()) {
		return cred, nil
	}
	return u.refresh(ctx)
}

func (u *Uploader) refresh(ctx context.Context) (*models.ShareCredential, error) {
	u.mu.Lock()
	cred := u.cred
	password := u.password
	u.mu.Unlock()

	if u.auth == nil || cred == nil {
		return nil, api.ErrCredentialExpired
	}
	fresh, err := u.auth.Resolve(ctx, cred.ShareToken, password)
	if err != nil {
		return nil, err
	}

	u.mu.Lock()
	u.cred = fresh
	u.mu.Unlock()
	return fresh, nil
}
