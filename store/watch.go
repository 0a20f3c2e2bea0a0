package store

import "github.com/rowgrid/rowgrid/model"

// EventType identifies a change-feed event.
type EventType uint8

const (
	// EventMetaUpdated fires after PutMeta completes (an import finished).
	EventMetaUpdated EventType = iota
	// EventRowUpdated fires after a single row's data mapping was replaced.
	EventRowUpdated
	// EventCleared fires after the row collection was cleared.
	EventCleared
)

// Event is a push-based change notification.
type Event struct {
	Type  EventType
	RowID model.RowID     // set for EventRowUpdated
	Meta  model.TableMeta // set for EventMetaUpdated
}

// Watch subscribes to the change feed. The returned cancel function must be
// called to release the subscription; the channel is closed on cancel or
// store close.
//
// Delivery is best-effort: events beyond the subscriber's buffer are dropped.
// The feed guarantees eventual delivery of a notification after a successful
// write, not a complete event history; consumers re-read store state on
// receipt rather than folding events.
func (s *Store) Watch() (<-chan Event, func()) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	id := s.watchNext
	s.watchNext++
	ch := make(chan Event, s.opts.WatchBuffer)
	s.watchers[id] = ch

	cancel := func() {
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		if c, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(c)
		}
	}
	return ch, cancel
}

func (s *Store) notify(ev Event) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- ev:
		default:
			// Subscriber is behind; it re-reads state on the next event.
		}
	}
}
