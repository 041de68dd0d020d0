package slideshow

import (
	"testing"
	"time"

	"github.com/snapwall-app/snapwall/internal/models"
)

func photoSet(ids ...string) []models.PhotoRecord {
	out := make([]models.PhotoRecord, 0, len(ids))
	for i, id := range ids {
		out = append(out, models.PhotoRecord{ID: id, Sequence: int64(i + 1)})
	}
	return out
}

func TestTickProgressWithoutAdvance(t *testing.T) {
	set := photoSet("a", "b", "c")
	s := New(Config{Duration: time.Second, TickEvery: 100 * time.Millisecond}, func() []models.PhotoRecord { return set })

	var f Frame
	for i := 0; i < 5; i++ {
		f = s.Tick()
	}
	if f.Index != 0 {
		t.Errorf("index advanced to %d after half the duration", f.Index)
	}
	if f.Progress != 0.5 {
		t.Errorf("progress = %v after 5/10 ticks, want 0.5", f.Progress)
	}
	if f.Photo == nil || f.Photo.ID != "a" {
		t.Errorf("frame photo = %+v, want a", f.Photo)
	}
}

func TestTickAdvancesAfterFullDuration(t *testing.T) {
	set := photoSet("a", "b", "c")
	s := New(Config{Duration: time.Second, TickEvery: 100 * time.Millisecond}, func() []models.PhotoRecord { return set })

	var f Frame
	for i := 0; i < 10; i++ {
		f = s.Tick()
	}
	if f.Index != 1 || f.Photo.ID != "b" {
		t.Errorf("after full duration: index=%d photo=%s, want 1/b", f.Index, f.Photo.ID)
	}
	if f.Progress != 0 {
		t.Errorf("progress = %v at start of new slot, want 0", f.Progress)
	}
}

func TestTickWrapsAroundTheSet(t *testing.T) {
	set := photoSet("a", "b")
	s := New(Config{Duration: 300 * time.Millisecond, TickEvery: 100 * time.Millisecond}, func() []models.PhotoRecord { return set })

	// 3 ticks per slot, 2 slots: the 6th tick wraps back to index 0.
	var f Frame
	for i := 0; i < 6; i++ {
		f = s.Tick()
	}
	if f.Index != 0 || f.Photo.ID != "a" {
		t.Errorf("after wrap: index=%d photo=%s, want 0/a", f.Index, f.Photo.ID)
	}
}

func TestTickHoldsOnEmptySet(t *testing.T) {
	var set []models.PhotoRecord
	s := New(Config{Duration: 200 * time.Millisecond, TickEvery: 100 * time.Millisecond}, func() []models.PhotoRecord { return set })

	for i := 0; i < 4; i++ {
		if f := s.Tick(); !f.Empty {
			t.Fatalf("tick %d: frame not Empty on empty set", i)
		}
	}

	// Photos appearing later start a fresh rotation from slot zero.
	set = photoSet("a", "b")
	f := s.Tick()
	if f.Empty || f.Index != 0 {
		t.Errorf("first frame after photos appeared: %+v, want index 0", f)
	}
	if f.Progress != 0.5 {
		t.Errorf("progress = %v on first tick of fresh rotation, want 0.5", f.Progress)
	}
}

func TestTickClampsWhenSetShrinks(t *testing.T) {
	set := photoSet("a", "b", "c")
	s := New(Config{Duration: 100 * time.Millisecond, TickEvery: 100 * time.Millisecond}, func() []models.PhotoRecord { return set })

	s.Tick() // -> index 1
	s.Tick() // -> index 2

	set = photoSet("a")
	f := s.Tick()
	if f.Index != 0 || f.Photo.ID != "a" {
		t.Errorf("after shrink: index=%d, want clamped to 0", f.Index)
	}
}

func TestFrameDoesNotAdvance(t *testing.T) {
	set := photoSet("a", "b")
	s := New(Config{Duration: time.Second, TickEvery: 250 * time.Millisecond}, func() []models.PhotoRecord { return set })

	s.Tick()
	before := s.Frame()
	after := s.Frame()
	if before.Progress != after.Progress || before.Index != after.Index {
		t.Errorf("Frame advanced state: %+v vs %+v", before, after)
	}
	if before.Progress != 0.25 {
		t.Errorf("progress = %v, want 0.25", before.Progress)
	}
}
