package slideshow

import (
	"sync"
	"time"

	"github.com/snapwall-app/snapwall/internal/models"
)

// Config tunes the rotation: each photo is shown for Duration, and the
// host calls Tick every TickEvery on its own timer.
type Config struct {
	Duration  time.Duration
	TickEvery time.Duration
}

// Frame is what the display renders right now. Empty is the defined
// "no photos" state; Progress is the 0..1 fill of the visual timer.
type Frame struct {
	Index    int
	Progress float64
	Photo    *models.PhotoRecord
	Empty    bool
}

// Scheduler drives a fixed-duration rotation over the engine's current
// set. It is polled cooperatively (Tick) rather than running its own
// timer, so it composes with a single event loop and is trivially
// testable.
type Scheduler struct {
	mu      sync.Mutex
	cfg     Config
	source  func() []models.PhotoRecord
	index   int
	elapsed time.Duration
}

// New creates a scheduler over a snapshot source, typically
// Engine.Current.
func New(cfg Config, source func() []models.PhotoRecord) *Scheduler {
	if cfg.Duration <= 0 {
		cfg.Duration = 8 * time.Second
	}
	if cfg.TickEvery <= 0 {
		cfg.TickEvery = 100 * time.Millisecond
	}
	return &Scheduler{cfg: cfg, source: source}
}

// Tick advances the rotation by one cadence step and returns the frame
// to display. With an empty set the scheduler holds position and
// progress stays suspended at zero until photos appear.
func (s *Scheduler) Tick() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	photos := s.source()
	if len(photos) == 0 {
		s.index = 0
		s.elapsed = 0
		return Frame{Empty: true}
	}

	// The set may have shrunk under us; clamp instead of failing.
	if s.index >= len(photos) {
		s.index = len(photos) - 1
	}

	s.elapsed += s.cfg.TickEvery
	if s.elapsed >= s.cfg.Duration {
		s.elapsed = 0
		s.index = (s.index + 1) % len(photos)
	}

	return s.frameLocked(photos)
}

// Frame returns the current frame without advancing
func (s *Scheduler) Frame() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	photos := s.source()
	if len(photos) == 0 {
		return Frame{Empty: true}
	}
	if s.index >= len(photos) {
		s.index = len(photos) - 1
	}
	return s.frameLocked(photos)
}

func (s *Scheduler) frameLocked(photos []models.PhotoRecord) Frame {
	photo := photos[s.index]
	return Frame{
		Index:    s.index,
		Progress: float64(s.elapsed) / float64(s.cfg.Duration),
		Photo:    &photo,
	}
}
