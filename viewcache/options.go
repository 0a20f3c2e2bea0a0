package viewcache

import (
	"log/slog"

	"github.com/rowgrid/rowgrid/model"
)

// Options configures a Window.
type Options struct {
	// Prefetch is the margin added on both sides of the visible range when
	// computing the needed range. It dampens fetch churn on small scroll
	// deltas.
	Prefetch uint64

	// KeepBefore/KeepAfter extend the needed range into the safety window:
	// cached entries inside it are exempt from eviction.
	KeepBefore uint64
	KeepAfter  uint64

	// MaxEntries is the hard cache-size cap enforced after every merge.
	// Entries in the needed range are never evicted, so the cap can only be
	// exceeded when the needed range alone is larger than it.
	MaxEntries int

	// ErrorBuffer is the capacity of the error feed; errors beyond it are
	// dropped (the affected rows simply stay in loading state).
	ErrorBuffer int

	// OnRowSaved, if set, is invoked after an edit persisted successfully.
	OnRowSaved func(model.Row)

	// Logger receives structured cache logs. Nil disables logging.
	Logger *slog.Logger
}

// DefaultOptions returns the default window options.
var DefaultOptions = Options{
	Prefetch:    10,
	KeepBefore:  50,
	KeepAfter:   50,
	MaxEntries:  500,
	ErrorBuffer: 8,
}

// WithPrefetch sets the prefetch margin.
func WithPrefetch(n uint64) func(*Options) {
	return func(o *Options) {
		o.Prefetch = n
	}
}

// WithSafetyMargins sets the keep-before/keep-after eviction margins.
func WithSafetyMargins(before, after uint64) func(*Options) {
	return func(o *Options) {
		o.KeepBefore = before
		o.KeepAfter = after
	}
}

// WithMaxEntries sets the hard cache-size cap.
func WithMaxEntries(n int) func(*Options) {
	return func(o *Options) {
		o.MaxEntries = n
	}
}

// WithOnRowSaved sets the edit-persisted notification callback.
func WithOnRowSaved(fn func(model.Row)) func(*Options) {
	return func(o *Options) {
		o.OnRowSaved = fn
	}
}

// WithLogger sets the window logger.
func WithLogger(logger *slog.Logger) func(*Options) {
	return func(o *Options) {
		o.Logger = logger
	}
}
