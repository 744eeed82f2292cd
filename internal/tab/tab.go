// Package tab wires one browser tab's execution context: its event loop,
// root document, media query, bootstrap resolver, store bridge and switch.
package tab

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/cfilipov/blogd/internal/bootstrap"
	"github.com/cfilipov/blogd/internal/page"
	"github.com/cfilipov/blogd/internal/prefstore"
	"github.com/cfilipov/blogd/internal/theme"
	"github.com/cfilipov/blogd/internal/themeswitch"
)

const closeTimeout = 2 * time.Second

// Sink receives what the browser must apply, in order, once per task.
type Sink interface {
	SendDOM(ops []page.Op)
	SendSwitch(html string)
}

type Options struct {
	ID     string // context identity, used as the store source
	Origin string // origin scope shared by tabs of the same profile
	Signal theme.Signal
	Store  *prefstore.Store
	Sink   Sink

	// Classes and Attrs seed the root element with what the browser is
	// currently showing, so the first patches are relative to it.
	Classes []string
	Attrs   map[string]string
}

// Snapshot is a consistent read of a tab's visible state.
type Snapshot struct {
	Classes []string
	Mode    string // raw data-mode attribute
	Switch  themeswitch.State
	Pref    theme.Preference
	Styles  int
}

// Dark reports whether the dark marker is present.
func (s Snapshot) Dark() bool {
	for _, c := range s.Classes {
		if c == theme.DarkClass {
			return true
		}
	}
	return false
}

type Tab struct {
	id   string
	sink Sink

	loop     *page.Loop
	doc      *page.Document
	media    *page.MediaQuery
	registry *bootstrap.Registry
	resolver *bootstrap.Resolver
	bridge   *prefstore.Bridge
	sw       *themeswitch.Switch

	pending     []page.Op
	switchDirty bool
}

func New(opts Options) *Tab {
	t := &Tab{
		id:       opts.ID,
		sink:     opts.Sink,
		loop:     page.NewLoop(),
		doc:      page.NewDocument(),
		media:    page.NewMediaQuery(opts.Signal),
		registry: bootstrap.NewRegistry(),
	}
	t.bridge = prefstore.NewBridge(opts.Store, opts.Origin, opts.ID, t.loop)
	t.resolver = bootstrap.New(t.doc, t.media, t.bridge)
	t.sw = themeswitch.New(t.bridge, t.registry, t.loop, func() { t.switchDirty = true })

	for _, c := range opts.Classes {
		t.doc.ToggleClass(c, true)
	}
	for k, v := range opts.Attrs {
		t.doc.SetAttribute(k, v)
	}
	t.doc.Observe(func(op page.Op) { t.pending = append(t.pending, op) })
	t.loop.AfterTask(t.flush)
	return t
}

func (t *Tab) ID() string { return t.id }

// Attach runs the bootstrap against the document, marks it interactive and
// mounts the switch, in that order.
func (t *Tab) Attach() {
	t.loop.Post(func() {
		t.resolver.Install(t.registry)
		t.doc.MarkInteractive()
		t.sw.Mount()
	})
}

// Click forwards a user click on the switch.
func (t *Tab) Click() {
	t.loop.Post(t.sw.Click)
}

// SetSystem mirrors a color-scheme change reported by the browser.
func (t *Tab) SetSystem(s theme.Signal) {
	t.loop.Post(func() { t.media.Set(s) })
}

// Snapshot reads the tab state on its loop.
func (t *Tab) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := t.loop.Do(ctx, func() {
		mode, _ := t.doc.Attr(theme.ModeAttribute)
		snap = Snapshot{
			Classes: t.doc.Classes(),
			Mode:    mode,
			Switch:  t.sw.State(),
			Pref:    t.sw.Mode(),
			Styles:  len(t.doc.Styles()),
		}
	})
	return snap, err
}

// Close unmounts the switch, drops the system listener and stops the loop.
func (t *Tab) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := t.loop.Do(ctx, func() {
		t.sw.Unmount()
		t.resolver.Close()
	}); err != nil {
		slog.Debug("tab close", "tab", t.id, "err", err)
	}
	t.loop.Close()
}

// flush runs after every task: frame callbacks first, then one batch of
// patches for the browser.
func (t *Tab) flush() {
	t.doc.RunFrames()

	if len(t.pending) > 0 {
		ops := t.pending
		t.pending = nil
		if t.sink != nil {
			t.sink.SendDOM(ops)
		}
	}
	if t.switchDirty {
		t.switchDirty = false
		if t.sink != nil {
			var buf bytes.Buffer
			if err := t.sw.Render().Render(&buf); err != nil {
				slog.Warn("render switch", "tab", t.id, "err", err)
				return
			}
			t.sink.SendSwitch(buf.String())
		}
	}
}
