package wall

import (
	"log"
	"sort"
	"sync"

	"github.com/snapwall-app/snapwall/internal/models"
)

// Engine maintains the canonical, deduplicated photo set for one event.
// It is the only writer of its own set: the channel and the UI never
// mutate it directly, they go through Hydrate and Apply.
type Engine struct {
	mu         sync.RWMutex
	eventID    string
	photos     map[string]models.PhotoRecord
	maxSeq     int64
	hydrations int
}

// NewEngine creates an empty engine for one event
func NewEngine(eventID string) *Engine {
	return &Engine{
		eventID: eventID,
		photos:  make(map[string]models.PhotoRecord),
	}
}

// Hydrate replaces the set with a REST snapshot. Called once per channel
// open (or re-open) to resolve events missed while disconnected; the
// channel does not guarantee replay, so the snapshot is authoritative.
func (e *Engine) Hydrate(snapshot []models.PhotoRecord) {
	e.mu.Lock()
	e.photos = make(map[string]models.PhotoRecord, len(snapshot))
	e.maxSeq = 0
	for _, p := range snapshot {
		if p.ID == "" {
			continue
		}
		// Snapshots themselves may carry duplicates; higher sequence wins.
		if prev, ok := e.photos[p.ID]; ok && prev.Sequence >= p.Sequence {
			continue
		}
		e.photos[p.ID] = p
		if p.Sequence > e.maxSeq {
			e.maxSeq = p.Sequence
		}
	}
	e.hydrations++
	n := len(e.photos)
	e.mu.Unlock()

	hydrationsTotal.Inc()
	photosOnWall.Set(float64(n))
	log.Printf("🖼  Wall hydrated: event=%s photos=%d", e.eventID, n)
}

// Apply merges one channel event into the set. Conflicts resolve by
// server sequence, never wall-clock time, so client clock skew cannot
// reorder the wall.
func (e *Engine) Apply(msg models.WallMessage) {
	if !msg.IsPhotoEvent() || msg.Photo == nil || msg.Photo.ID == "" {
		return
	}

	e.mu.Lock()
	switch msg.Type {
	case models.EventPhotoAdded:
		incoming := *msg.Photo
		if prev, ok := e.photos[incoming.ID]; ok && prev.Sequence >= incoming.Sequence {
			e.mu.Unlock()
			e.logStale(msg)
			return
		}
		e.photos[incoming.ID] = incoming

	case models.EventPhotoRemoved:
		// No-op if absent; removal may race with a hydrate that already
		// dropped the photo.
		delete(e.photos, msg.Photo.ID)

	case models.EventPhotoStatusChanged:
		prev, ok := e.photos[msg.Photo.ID]
		if !ok {
			e.mu.Unlock()
			return
		}
		if msg.Photo.Sequence <= prev.Sequence {
			e.mu.Unlock()
			e.logStale(msg)
			return
		}
		prev.Status = msg.Photo.Status
		prev.Sequence = msg.Photo.Sequence
		e.photos[msg.Photo.ID] = prev
	}

	if msg.Photo.Sequence > e.maxSeq {
		e.maxSeq = msg.Photo.Sequence
	}
	n := len(e.photos)
	e.mu.Unlock()

	eventsAppliedTotal.WithLabelValues(string(msg.Type)).Inc()
	photosOnWall.Set(float64(n))
}

// logStale records a ConflictStale: expected under reordering, logged
// but never surfaced to callers as an error.
func (e *Engine) logStale(msg models.WallMessage) {
	staleEventsTotal.Inc()
	log.Printf("Stale %s ignored: photo=%s seq=%d", msg.Type, msg.Photo.ID, msg.Photo.Sequence)
}

// Current returns a fresh slice ordered by sequence ascending. Safe to
// call repeatedly; never exposes internal storage.
func (e *Engine) Current() []models.PhotoRecord {
	e.mu.RLock()
	out := make([]models.PhotoRecord, 0, len(e.photos))
	for _, p := range e.photos {
		out = append(out, p)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// CurrentDesc returns the set newest-first
func (e *Engine) CurrentDesc() []models.PhotoRecord {
	out := e.Current()
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Len returns the number of photos in the set
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.photos)
}

// MaxSequence returns the highest sequence merged so far
func (e *Engine) MaxSequence() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.maxSeq
}

// Hydrations returns how many snapshot hydrations have run
func (e *Engine) Hydrations() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hydrations
}
