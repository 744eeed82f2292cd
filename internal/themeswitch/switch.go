// Package themeswitch is the interactive light/dark/system control. It is
// the only user-facing writer of the stored preference.
package themeswitch

import (
	"context"
	"log/slog"
	"time"

	"github.com/cfilipov/blogd/internal/bootstrap"
	"github.com/cfilipov/blogd/internal/theme"
)

// PollInterval is the retry delay when the apply source offers no readiness signal.
const PollInterval = 100 * time.Millisecond

type State int

const (
	Unmounted State = iota
	Mounting
	Ready
)

func (s State) String() string {
	switch s {
	case Mounting:
		return "mounting"
	case Ready:
		return "ready"
	default:
		return "unmounted"
	}
}

// Store is the preference slot as seen by one context.
type Store interface {
	Read() theme.Preference
	Write(theme.Preference) error
	OnRemoteChange(fn func(theme.Preference)) (cancel func())
}

// ApplySource hands out the resolver's apply routine. A nil Ready channel
// means the source cannot signal and the switch polls Lookup instead.
type ApplySource interface {
	Lookup() (bootstrap.ApplyFunc, bool)
	Ready() <-chan struct{}
}

// Scheduler is the owning context's event loop.
type Scheduler interface {
	Post(fn func()) bool
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
}

// Switch must only be used from its scheduler's goroutine.
type Switch struct {
	store Store
	apply ApplySource
	sched Scheduler

	state    State
	detached bool
	mode     theme.Preference
	applyFn  bootstrap.ApplyFunc

	cancelRemote func()
	stopWait     func() bool
	onChange     func()
}

// New builds an unmounted switch. onChange, if set, runs after every state
// or mode change so the owner can re-render.
func New(store Store, apply ApplySource, sched Scheduler, onChange func()) *Switch {
	return &Switch{
		store:    store,
		apply:    apply,
		sched:    sched,
		mode:     theme.System,
		onChange: onChange,
	}
}

func (s *Switch) State() State           { return s.state }
func (s *Switch) Mode() theme.Preference { return s.mode }

// Mount reads the store, subscribes to remote changes and waits for the
// shared apply routine. A switch can be mounted once.
func (s *Switch) Mount() {
	if s.state != Unmounted || s.detached {
		return
	}
	s.state = Mounting
	s.mode = s.store.Read()
	s.cancelRemote = s.store.OnRemoteChange(s.remoteChange)
	s.changed()
	s.awaitApply()
}

func (s *Switch) awaitApply() {
	if s.state != Mounting {
		return
	}
	if fn, ok := s.apply.Lookup(); ok {
		s.becomeReady(fn)
		return
	}

	ready := s.apply.Ready()
	if ready == nil {
		s.stopWait = s.sched.AfterFunc(PollInterval, s.awaitApply)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopWait = func() bool {
		cancel()
		return true
	}
	go func() {
		select {
		case <-ready:
			s.sched.Post(s.awaitApply)
		case <-ctx.Done():
		}
	}()
}

func (s *Switch) becomeReady(fn bootstrap.ApplyFunc) {
	s.applyFn = fn
	s.stopWait = nil
	s.state = Ready
	// The store may have moved on since the bootstrap painted.
	s.applyFn()
	s.changed()
}

// Click advances the cycle, persists it and repaints right away. Clicks
// before Ready are ignored, matching the disabled placeholder.
func (s *Switch) Click() {
	if s.state != Ready {
		return
	}
	next := s.mode.Next()
	if err := s.store.Write(next); err != nil {
		slog.Warn("theme switch: write preference", "mode", next, "err", err)
		return
	}
	s.mode = next
	s.applyFn()
	s.changed()
}

// remoteChange follows another context's write. It never writes back.
// Notifications can be older than the slot by the time they run, so the
// mode is re-read rather than taken from the event.
func (s *Switch) remoteChange(theme.Preference) {
	if s.detached || s.state == Unmounted {
		return
	}
	s.mode = s.store.Read()
	if s.state == Ready {
		s.applyFn()
	}
	s.changed()
}

// Unmount releases the subscription and any pending wait. Terminal.
func (s *Switch) Unmount() {
	if s.detached {
		return
	}
	s.detached = true
	if s.cancelRemote != nil {
		s.cancelRemote()
		s.cancelRemote = nil
	}
	if s.stopWait != nil {
		s.stopWait()
		s.stopWait = nil
	}
	s.state = Unmounted
}

func (s *Switch) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}
