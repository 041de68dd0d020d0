package channel

import (
	"sort"

	"github.com/snapwall-app/snapwall/internal/models"
)

// reorderBuffer restores server sequence order over a transport that may
// deliver frames out of order. Photo events pass through it before
// dispatch: in-order events flow straight out, ahead-of-gap events are
// held until the gap fills or the window overflows, and anything at or
// below the last delivered sequence is dropped.
type reorderBuffer struct {
	lastSeq int64
	primed  bool
	window  int
	pending map[int64]models.WallMessage
	dropped uint64
}

func newReorderBuffer(window int) *reorderBuffer {
	if window < 1 {
		window = 1
	}
	return &reorderBuffer{
		window:  window,
		pending: make(map[int64]models.WallMessage),
	}
}

// add ingests one photo event and returns the batch now deliverable in
// order. dropped is true when the event was a duplicate or stale.
func (b *reorderBuffer) add(msg models.WallMessage) (deliver []models.WallMessage, dropped bool) {
	seq := msg.Sequence

	if b.primed && seq <= b.lastSeq {
		b.dropped++
		return nil, true
	}

	if !b.primed || seq == b.lastSeq+1 {
		// Stream start, or exactly the next expected sequence.
		b.primed = true
		b.lastSeq = seq
		deliver = append(deliver, msg)
		deliver = append(deliver, b.drainContiguous()...)
		return deliver, false
	}

	// Ahead of a gap: hold it. If the gap never fills within the window,
	// give up on the missing sequences and flush what we have in order;
	// the wall reconciles via snapshot anyway.
	b.pending[seq] = msg
	if len(b.pending) > b.window {
		return b.flush(), false
	}
	return nil, false
}

// advance raises the dedup floor, discarding buffered events the caller
// already has (e.g. covered by a REST snapshot), and returns any buffered
// events beyond it that became deliverable.
func (b *reorderBuffer) advance(seq int64) []models.WallMessage {
	if b.primed && seq <= b.lastSeq {
		return nil
	}
	b.primed = true
	b.lastSeq = seq
	for s := range b.pending {
		if s <= seq {
			delete(b.pending, s)
		}
	}
	return b.drainContiguous()
}

func (b *reorderBuffer) drainContiguous() []models.WallMessage {
	var out []models.WallMessage
	for {
		next, ok := b.pending[b.lastSeq+1]
		if !ok {
			return out
		}
		delete(b.pending, b.lastSeq+1)
		b.lastSeq = next.Sequence
		out = append(out, next)
	}
}

// flush empties the buffer in ascending sequence order, accepting the gap
func (b *reorderBuffer) flush() []models.WallMessage {
	seqs := make([]int64, 0, len(b.pending))
	for s := range b.pending {
		seqs = append(seqs, s)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	out := make([]models.WallMessage, 0, len(seqs))
	for _, s := range seqs {
		out = append(out, b.pending[s])
		delete(b.pending, s)
	}
	if n := len(out); n > 0 {
		b.lastSeq = out[n-1].Sequence
	}
	return out
}
