package table

import (
	"sync"

	"ratscramble.ai/internal/protocol"
)

// Journal is the ordered, append-only event stream. Appends never block:
// observers catch up through cursor-based reads and a best-effort nudge
// channel, so a slow consumer can never stall the table goroutine.
type Journal struct {
	mu     sync.RWMutex
	items  []protocol.EventBatchItem
	notify chan struct{}
}

func NewJournal() *Journal {
	return &Journal{notify: make(chan struct{}, 1)}
}

// Append stamps the event with the next cursor and stores it.
func (j *Journal) Append(ev protocol.Event) uint64 {
	j.mu.Lock()
	cursor := uint64(len(j.items)) + 1
	j.items = append(j.items, protocol.EventBatchItem{Cursor: cursor, Event: ev})
	j.mu.Unlock()
	select {
	case j.notify <- struct{}{}:
	default:
	}
	return cursor
}

// Since returns up to limit events after the given cursor, plus the cursor
// to resume from.
func (j *Journal) Since(cursor uint64, limit int) ([]protocol.EventBatchItem, uint64) {
	if limit <= 0 {
		limit = 256
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if cursor >= uint64(len(j.items)) {
		return nil, cursor
	}
	end := cursor + uint64(limit)
	if end > uint64(len(j.items)) {
		end = uint64(len(j.items))
	}
	out := make([]protocol.EventBatchItem, end-cursor)
	copy(out, j.items[cursor:end])
	return out, end
}

// Notify signals that new events may be available. One pending signal is
// kept at most; readers must still poll Since.
func (j *Journal) Notify() <-chan struct{} { return j.notify }

func (j *Journal) Len() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return uint64(len(j.items))
}
