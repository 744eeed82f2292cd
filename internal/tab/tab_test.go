package tab

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cfilipov/blogd/internal/db"
	"github.com/cfilipov/blogd/internal/page"
	"github.com/cfilipov/blogd/internal/prefstore"
	"github.com/cfilipov/blogd/internal/theme"
	"github.com/cfilipov/blogd/internal/themeswitch"
)

type recordingSink struct {
	mu       sync.Mutex
	batches  [][]page.Op
	switches []string
}

func (s *recordingSink) SendDOM(ops []page.Op) {
	s.mu.Lock()
	s.batches = append(s.batches, ops)
	s.mu.Unlock()
}

func (s *recordingSink) SendSwitch(html string) {
	s.mu.Lock()
	s.switches = append(s.switches, html)
	s.mu.Unlock()
}

func (s *recordingSink) lastSwitch() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.switches) == 0 {
		return ""
	}
	return s.switches[len(s.switches)-1]
}

func openStore(t *testing.T) *prefstore.Store {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	return prefstore.NewStore(database)
}

func openTab(t *testing.T, store *prefstore.Store, id, origin string, signal theme.Signal) (*Tab, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	tb := New(Options{ID: id, Origin: origin, Signal: signal, Store: store, Sink: sink})
	t.Cleanup(tb.Close)
	tb.Attach()
	waitFor(t, tb, func(s Snapshot) bool { return s.Switch == themeswitch.Ready })
	return tb, sink
}

func snapshot(t *testing.T, tb *Tab) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := tb.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return snap
}

// waitFor polls the tab until cond holds. Remote changes arrive through the
// loop asynchronously.
func waitFor(t *testing.T, tb *Tab, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := snapshot(t, tb)
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met, last snapshot %+v", snap)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestAttachEmptyStoreDarkSystem(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	tb, sink := openTab(t, store, "a", "p1", theme.SignalDark)

	snap := snapshot(t, tb)
	if !snap.Dark() || snap.Mode != "system" {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Styles != 0 {
		t.Errorf("transition override still present after frame: %d", snap.Styles)
	}
	if !strings.Contains(sink.lastSwitch(), "Switch to dark mode") {
		t.Errorf("switch html = %s", sink.lastSwitch())
	}
}

func TestAttachSendsSuppressedBatch(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	_, sink := openTab(t, store, "a", "p1", theme.SignalDark)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.batches) == 0 {
		t.Fatal("no dom batch sent")
	}
	first := sink.batches[0]
	if first[0].Kind != page.OpStyleAdd || first[len(first)-1].Kind != page.OpStyleRemove {
		t.Errorf("batch not wrapped in transition suppression: %+v", first)
	}
}

func TestClickFromLightToSystemWithDarkSignal(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	prefstore.NewBridge(store, "p1", "seed", nil).Write(theme.Light)

	tb, _ := openTab(t, store, "a", "p1", theme.SignalDark)
	if snapshot(t, tb).Dark() {
		t.Fatal("light preference rendered dark")
	}

	tb.Click()
	snap := waitFor(t, tb, func(s Snapshot) bool { return s.Pref == theme.System })
	if !snap.Dark() || snap.Mode != "system" {
		t.Errorf("after click: %+v", snap)
	}
}

func TestThreeClicksReturnToStart(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	tb, _ := openTab(t, store, "a", "p1", theme.SignalLight)

	for i := 0; i < 3; i++ {
		tb.Click()
	}
	snap := snapshot(t, tb)
	if snap.Pref != theme.System || snap.Mode != "system" {
		t.Errorf("after three clicks: %+v", snap)
	}
}

func TestCrossTabConvergence(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	a, _ := openTab(t, store, "a", "p1", theme.SignalLight)
	b, sinkB := openTab(t, store, "b", "p1", theme.SignalLight)

	if snapshot(t, b).Dark() {
		t.Fatal("b starts dark")
	}

	a.Click() // system -> dark

	snap := waitFor(t, b, func(s Snapshot) bool { return s.Dark() })
	if snap.Pref != theme.Dark || snap.Mode != "dark" {
		t.Errorf("b after remote change: %+v", snap)
	}
	if !strings.Contains(sinkB.lastSwitch(), "Switch to light mode") {
		t.Errorf("b switch not re-rendered: %s", sinkB.lastSwitch())
	}
}

func TestRemoteChangeDoesNotEcho(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	a, _ := openTab(t, store, "a", "p1", theme.SignalLight)
	b, _ := openTab(t, store, "b", "p1", theme.SignalLight)

	var events atomic.Int32
	cancel := store.Subscribe("p1", "observer", func(prefstore.Event) { events.Add(1) })
	defer cancel()

	a.Click()
	waitFor(t, b, func(s Snapshot) bool { return s.Pref == theme.Dark })
	// Flush a's and b's loops once more so any echo would have happened.
	snapshot(t, a)
	snapshot(t, b)

	if n := events.Load(); n != 1 {
		t.Errorf("store saw %d writes, want exactly 1", n)
	}
}

func TestOtherProfileNotOverridden(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	prefstore.NewBridge(store, "p2", "seed", nil).Write(theme.Light)

	a, _ := openTab(t, store, "a", "p1", theme.SignalDark)
	b, _ := openTab(t, store, "b", "p2", theme.SignalDark)

	a.Click() // p1: system -> dark
	waitFor(t, a, func(s Snapshot) bool { return s.Pref == theme.Dark })

	time.Sleep(20 * time.Millisecond)
	snap := snapshot(t, b)
	if snap.Pref != theme.Light || snap.Dark() {
		t.Errorf("p2 tab was overridden: %+v", snap)
	}
}

func TestQueuedClickWinsOverOlderRemoteEvents(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	a, _ := openTab(t, store, "a", "p1", theme.SignalLight)
	b, _ := openTab(t, store, "b", "p1", theme.SignalLight)

	release := make(chan struct{})
	b.loop.Post(func() { <-release })
	b.Click() // queued: system -> dark, behind the block

	a.Click() // system -> dark
	a.Click() // dark -> light
	waitFor(t, a, func(s Snapshot) bool { return s.Pref == theme.Light })
	close(release)

	bridge := prefstore.NewBridge(store, "p1", "observer", nil)
	snap := waitFor(t, b, func(s Snapshot) bool { return s.Pref == bridge.Read() && s.Mode == s.Pref.String() })
	if snap.Pref != theme.Dark || !snap.Dark() {
		t.Errorf("b = %+v, want dark", snap)
	}
	waitFor(t, a, func(s Snapshot) bool { return s.Pref == theme.Dark && s.Mode == "dark" })

	// Drain anything still queued and check b did not drift.
	snap = snapshot(t, b)
	if snap.Pref != bridge.Read() || snap.Mode != snap.Pref.String() {
		t.Errorf("b drifted from store: %+v, store %s", snap, bridge.Read())
	}
}

func TestSystemSignalChange(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	tb, _ := openTab(t, store, "a", "p1", theme.SignalLight)

	tb.SetSystem(theme.SignalDark)
	waitFor(t, tb, func(s Snapshot) bool { return s.Dark() })

	tb.SetSystem(theme.SignalUnknown)
	waitFor(t, tb, func(s Snapshot) bool { return !s.Dark() })
}

func TestRemoteClearActsAsSystem(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	prefstore.NewBridge(store, "p1", "seed", nil).Write(theme.Light)
	tb, _ := openTab(t, store, "a", "p1", theme.SignalDark)

	prefstore.NewBridge(store, "p1", "cli", nil).Clear()
	snap := waitFor(t, tb, func(s Snapshot) bool { return s.Pref == theme.System })
	if !snap.Dark() || snap.Mode != "system" {
		t.Errorf("after clear: %+v", snap)
	}
}

func TestSeededRootOnlyPatchesDifferences(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	sink := &recordingSink{}
	tb := New(Options{
		ID: "a", Origin: "p1", Signal: theme.SignalLight, Store: store, Sink: sink,
		Classes: []string{theme.DarkClass},
		Attrs:   map[string]string{theme.ModeAttribute: "system"},
	})
	t.Cleanup(tb.Close)
	tb.Attach()
	waitFor(t, tb, func(s Snapshot) bool { return s.Switch == themeswitch.Ready })

	sink.mu.Lock()
	defer sink.mu.Unlock()
	var marker []page.Op
	for _, batch := range sink.batches {
		for _, op := range batch {
			if op.Kind != page.OpStyleAdd && op.Kind != page.OpStyleRemove {
				marker = append(marker, op)
			}
		}
	}
	if len(marker) != 1 || marker[0].Kind != page.OpClassRemove || marker[0].Name != theme.DarkClass {
		t.Errorf("marker ops = %+v, want a single dark removal", marker)
	}
}

func TestCloseReleasesSubscription(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	tb := New(Options{ID: "a", Origin: "p1", Signal: theme.SignalLight, Store: store})
	tb.Attach()
	waitFor(t, tb, func(s Snapshot) bool { return s.Switch == themeswitch.Ready })

	if store.SubscriberCount("p1") != 1 {
		t.Fatalf("subscribers = %d", store.SubscriberCount("p1"))
	}
	tb.Close()
	if store.SubscriberCount("p1") != 0 {
		t.Error("subscription leaked after Close")
	}
	if _, err := tb.Snapshot(context.Background()); err != page.ErrLoopClosed {
		t.Errorf("snapshot after close err = %v", err)
	}
}
