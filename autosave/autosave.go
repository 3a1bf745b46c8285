// Package autosave debounces source-buffer writes to a store.
package autosave

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/caffeineduck/codearena/store"
)

const (
	DefaultDelay     = time.Second
	DefaultIndicator = 500 * time.Millisecond
	writeTimeout     = 5 * time.Second
)

var ErrClosed = errors.New("autosave: closed")

type config struct {
	delay     time.Duration
	indicator time.Duration
	logger    *slog.Logger
	onSave    func(text string, err error)
}

type Option func(*config)

// WithDelay sets the idle time before a scheduled write fires.
func WithDelay(d time.Duration) Option {
	return func(c *config) { c.delay = d }
}

// WithIndicator sets how long Saving reports true after a write.
func WithIndicator(d time.Duration) Option {
	return func(c *config) { c.indicator = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithOnSave registers a callback invoked after every write attempt.
func WithOnSave(fn func(text string, err error)) Option {
	return func(c *config) { c.onSave = fn }
}

// Saver writes the latest scheduled text once edits have been quiet for the
// configured delay. There is at most one pending write.
type Saver struct {
	store store.Store
	key   string
	cfg   config
	log   *slog.Logger

	// wmu serializes store writes. Writes for generations at or below
	// settled are dropped.
	wmu     sync.Mutex
	settled uint64

	mu          sync.Mutex
	timer       *time.Timer
	gen         uint64
	pending     string
	hasPending  bool
	savingUntil time.Time
	closed      bool
}

// NewSaver saves to key in s.
func NewSaver(s store.Store, key string, opts ...Option) *Saver {
	cfg := config{delay: DefaultDelay, indicator: DefaultIndicator}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.logger
	if log == nil {
		log = slog.Default()
	}
	return &Saver{store: s, key: key, cfg: cfg, log: log.With("component", "autosave", "key", key)}
}

// Schedule replaces any pending write with text and restarts the timer.
func (s *Saver) Schedule(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending, s.hasPending = text, true
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
	}
	gen := s.gen
	s.timer = time.AfterFunc(s.cfg.delay, func() { s.fire(gen) })
}

// Cancel drops the pending write, if any. A write that already reached the
// store is not undone; use Clear for that.
func (s *Saver) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

func (s *Saver) cancelLocked() {
	s.stopLocked()
	s.settled = s.gen
}

// Clear cancels pending writes and deletes the stored text once any
// in-flight write has finished.
func (s *Saver) Clear(ctx context.Context) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.Cancel()
	return s.store.Delete(ctx, s.key)
}

func (s *Saver) stopLocked() {
	s.gen++
	s.hasPending = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Saver) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.hasPending {
		s.mu.Unlock()
		return
	}
	text := s.pending
	s.hasPending = false
	s.timer = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	s.write(ctx, text, gen)
}

// write stores text scheduled at generation gen. It is a no-op when the text
// was cancelled or a newer generation has already been written.
func (s *Saver) write(ctx context.Context, text string, gen uint64) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	if gen <= s.settled {
		s.mu.Unlock()
		return nil
	}
	s.settled = gen
	s.savingUntil = time.Now().Add(s.cfg.indicator)
	s.mu.Unlock()

	err := s.store.Set(ctx, s.key, text)
	if err != nil {
		s.log.Error("autosave failed", "error", err)
	} else {
		s.log.Debug("autosaved", "bytes", len(text))
	}
	if s.cfg.onSave != nil {
		s.cfg.onSave(text, err)
	}
	return err
}

// Flush writes the pending text now.
func (s *Saver) Flush(ctx context.Context) error {
	s.mu.Lock()
	if !s.hasPending {
		s.mu.Unlock()
		return nil
	}
	text, gen := s.pending, s.gen
	s.stopLocked()
	s.mu.Unlock()

	return s.write(ctx, text, gen)
}

// Pending reports whether a write is scheduled.
func (s *Saver) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasPending
}

// Saving reports whether the auto-saving indicator is raised.
func (s *Saver) Saving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().Before(s.savingUntil)
}

// Close flushes and stops accepting new text.
func (s *Saver) Close(ctx context.Context) error {
	err := s.Flush(ctx)
	s.mu.Lock()
	s.closed = true
	s.stopLocked()
	s.mu.Unlock()
	return err
}
