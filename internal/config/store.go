package config

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/e7canasta/chroma-compositor/internal/chroma"
)

// Store is the single owner of the keying options.
//
// Readers get an immutable snapshot through an atomic pointer load, so the
// compositing loop never observes a half-applied update. Writers are
// serialized and publish a fresh value on every change.
type Store struct {
	current atomic.Pointer[chroma.Options]
	version atomic.Uint64

	mu        sync.Mutex
	listeners []func(chroma.Options)
}

// NewStore creates a store holding initial. Invalid options are rejected.
func NewStore(initial chroma.Options) (*Store, error) {
	if err := ValidateOptions(initial); err != nil {
		return nil, fmt.Errorf("config: invalid initial options: %w", err)
	}
	s := &Store{}
	s.current.Store(&initial)
	return s, nil
}

// NewDefaultStore creates a store holding the default options.
func NewDefaultStore() *Store {
	s, _ := NewStore(chroma.DefaultOptions())
	return s
}

// Snapshot returns a copy of the current options.
func (s *Store) Snapshot() chroma.Options {
	return *s.current.Load()
}

// Version increments on every accepted change.
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// OnChange registers a listener called after every accepted change.
func (s *Store) OnChange(fn func(chroma.Options)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Set replaces all options.
func (s *Store) Set(o chroma.Options) error {
	if err := ValidateOptions(o); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(o)
	return nil
}

// Update applies a partial update (see ApplyUpdate) and returns the new
// options and the list of changes. An update that changes nothing is not an
// error and does not bump the version.
func (s *Store) Update(update map[string]interface{}, clamp bool) (chroma.Options, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, changes, err := ApplyUpdate(*s.current.Load(), update, clamp)
	if err != nil {
		return s.Snapshot(), nil, fmt.Errorf("config: %w", err)
	}
	if len(changes) == 0 {
		return next, changes, nil
	}

	s.publish(next)

	for _, change := range changes {
		slog.Info("config: option changed", "change", change)
	}
	return next, changes, nil
}

// Reset restores the default options.
func (s *Store) Reset() chroma.Options {
	defaults := chroma.DefaultOptions()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(defaults)

	slog.Info("config: options reset to defaults")
	return defaults
}

// publish stores o and notifies listeners. Caller holds mu.
func (s *Store) publish(o chroma.Options) {
	v := o
	s.current.Store(&v)
	s.version.Add(1)
	for _, fn := range s.listeners {
		fn(v)
	}
}
