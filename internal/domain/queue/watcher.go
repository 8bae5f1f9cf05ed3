package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type DisplaySource interface {
	Display(ctx context.Context) (*Entry, error)
}

// DisplayFunc receives the newly displayed entry, or nil when the screen
// empties.
type DisplayFunc func(ctx context.Context, e *Entry)

// Watcher polls a DisplaySource and calls onChange whenever the displayed
// entry or its status differs from the previous poll. Announcements hang off
// onChange.
type Watcher struct {
	src      DisplaySource
	interval time.Duration
	onChange DisplayFunc
	logger   zerolog.Logger

	seen   bool
	lastID uuid.UUID
	lastSt Status
}

func NewWatcher(src DisplaySource, interval time.Duration, onChange DisplayFunc, logger zerolog.Logger) *Watcher {
	return &Watcher{
		src:      src,
		interval: interval,
		onChange: onChange,
		logger:   logger.With().Str("component", "display-watcher").Logger(),
	}
}

// Run polls until ctx is cancelled. The first successful poll always fires
// onChange so a fresh screen shows the current state.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll runs a single check and reports whether onChange fired.
func (w *Watcher) Poll(ctx context.Context) bool {
	e, err := w.src.Display(ctx)
	if err != nil {
		w.logger.Warn().Err(err).Msg("display poll failed")
		return false
	}

	id, st := uuid.Nil, Status("")
	if e != nil {
		id, st = e.ID, e.Status
	}
	if w.seen && id == w.lastID && st == w.lastSt {
		return false
	}
	w.seen, w.lastID, w.lastSt = true, id, st
	w.onChange(ctx, e)
	return true
}
