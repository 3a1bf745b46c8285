package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/caffeineduck/codearena/store"
)

// Buffer is one question's source text. Storage is read once, on Mount, so
// a stale stored copy never overwrites newer text in memory.
type Buffer struct {
	store    store.Store
	key      string
	template string
	saver    *Saver

	mu     sync.Mutex
	text   string
	loaded bool
}

// NewBuffer creates the buffer for questionID, falling back to template.
func NewBuffer(s store.Store, questionID, template string, opts ...Option) *Buffer {
	key := store.Key(questionID)
	return &Buffer{
		store:    s,
		key:      key,
		template: template,
		saver:    NewSaver(s, key, opts...),
	}
}

// Mount loads the stored text, or the template when nothing is stored.
// Later calls return the in-memory text without touching storage.
func (b *Buffer) Mount(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loaded {
		return b.text, nil
	}

	text, err := b.store.Get(ctx, b.key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		text = b.template
	case err != nil:
		return "", fmt.Errorf("load %s: %w", b.key, err)
	}
	b.text, b.loaded = text, true
	return text, nil
}

// Edit replaces the text and schedules an autosave.
func (b *Buffer) Edit(text string) {
	b.mu.Lock()
	b.text, b.loaded = text, true
	b.mu.Unlock()
	b.saver.Schedule(text)
}

func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.loaded {
		return b.template
	}
	return b.text
}

// Reset restores the template and removes the stored copy.
func (b *Buffer) Reset(ctx context.Context) (string, error) {
	b.saver.Cancel()
	b.mu.Lock()
	b.text, b.loaded = b.template, true
	b.mu.Unlock()
	if err := b.saver.Clear(ctx); err != nil {
		return b.template, fmt.Errorf("reset %s: %w", b.key, err)
	}
	return b.template, nil
}

// Saving reports whether the auto-saving indicator is raised.
func (b *Buffer) Saving() bool {
	return b.saver.Saving()
}

// Close flushes any pending write.
func (b *Buffer) Close(ctx context.Context) error {
	return b.saver.Close(ctx)
}
