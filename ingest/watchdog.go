package ingest

import (
	"sync"
	"time"
)

// stallWatchdog fires onStall if stop is not called before the timeout.
// It arms at construction (import invocation) and is stopped the moment the
// first data row is observed. Firing and stopping are mutually exclusive;
// stop after firing is a no-op, as is a second stop.
type stallWatchdog struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func newStallWatchdog(timeout time.Duration, onStall func()) *stallWatchdog {
	w := &stallWatchdog{}
	if timeout <= 0 {
		w.stopped = true
		return w
	}
	w.timer = time.AfterFunc(timeout, func() {
		w.mu.Lock()
		fired := !w.stopped
		w.stopped = true
		w.mu.Unlock()
		if fired {
			onStall()
		}
	})
	return w
}

func (w *stallWatchdog) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	w.timer.Stop()
}
