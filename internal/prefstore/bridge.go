package prefstore

import (
	"fmt"
	"log/slog"

	"github.com/cfilipov/blogd/internal/theme"
)

// Scheduler runs callbacks on the owner's thread of execution.
type Scheduler interface {
	Post(fn func()) bool
}

// Bridge is one context's view of the theme preference slot.
type Bridge struct {
	store  *Store
	origin string
	source string
	sched  Scheduler
}

// NewBridge binds the preference key of origin for the context named source.
// Remote-change callbacks are delivered through sched; a nil sched runs them
// inline while the store is locked.
func NewBridge(store *Store, origin, source string, sched Scheduler) *Bridge {
	return &Bridge{store: store, origin: origin, source: source, sched: sched}
}

func (b *Bridge) Origin() string { return b.origin }

// Read returns the stored preference. Absent, invalid and unreadable values
// all read as System.
func (b *Bridge) Read() theme.Preference {
	v, ok, err := b.store.Get(b.origin, theme.StorageKey)
	if err != nil {
		slog.Debug("preference unreadable, using system", "origin", b.origin, "err", err)
		return theme.System
	}
	if !ok {
		return theme.System
	}
	return theme.ParsePreference(v)
}

// Write persists p. The writing context is not notified; callers repaint
// themselves right after.
func (b *Bridge) Write(p theme.Preference) error {
	if !p.Valid() {
		return fmt.Errorf("write preference: invalid value %q", p)
	}
	return b.store.Set(b.origin, b.source, theme.StorageKey, p.String())
}

// Clear removes the slot, which is the same as choosing System.
func (b *Bridge) Clear() error {
	return b.store.Remove(b.origin, b.source, theme.StorageKey)
}

// OnRemoteChange calls fn whenever another context changes the preference
// slot. fn receives System when the slot was cleared or holds garbage.
func (b *Bridge) OnRemoteChange(fn func(theme.Preference)) (cancel func()) {
	return b.store.Subscribe(b.origin, b.source, func(ev Event) {
		if ev.Key != theme.StorageKey {
			return
		}
		p := theme.System
		if ev.NewValue != nil {
			p = theme.ParsePreference(*ev.NewValue)
		}
		if b.sched == nil {
			fn(p)
			return
		}
		b.sched.Post(func() { fn(p) })
	})
}
