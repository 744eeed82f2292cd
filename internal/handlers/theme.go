package handlers

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/cfilipov/blogd/internal/page"
	"github.com/cfilipov/blogd/internal/tab"
	"github.com/cfilipov/blogd/internal/theme"
	"github.com/cfilipov/blogd/internal/ws"
)

// Events pushed to the browser.
const (
	EventDOM    = "dom"
	EventSwitch = "switch"
)

// connSink streams a tab's patches over its websocket.
type connSink struct {
	c *ws.Conn
}

func (s connSink) SendDOM(ops []page.Op) {
	ws.SendEvent(s.c, EventDOM, ops)
}

func (s connSink) SendSwitch(html string) {
	ws.SendEvent(s.c, EventSwitch, html)
}

// RegisterThemeHandlers wires the per-tab theme events. A connection mounts
// at most one tab; it is closed when the connection goes away.
func RegisterThemeHandlers(app *App) {
	app.tabsMu.Lock()
	if app.tabs == nil {
		app.tabs = make(map[string]*tab.Tab)
	}
	app.tabsMu.Unlock()

	app.WS.Handle("tab.mount", app.handleTabMount)
	app.WS.Handle("switch.cycle", app.handleSwitchCycle)
	app.WS.Handle("system.scheme", app.handleSystemScheme)
	app.WS.OnDisconnect(app.closeTab)
}

// MountRoot is the root element state the browser reports when mounting.
type MountRoot struct {
	Classes []string          `json:"classes"`
	Attrs   map[string]string `json:"attrs"`
}

// tab.mount [signal, root]
func (app *App) handleTabMount(c *ws.Conn, msg *ws.ClientMessage) {
	args := parseArgs(msg)
	signal := theme.ParseSignal(argString(args, 0))
	var root MountRoot
	argObject(args, 1, &root)

	app.tabsMu.Lock()
	if _, ok := app.tabs[c.ID()]; ok {
		app.tabsMu.Unlock()
		if msg.ID != nil {
			ws.SendAck(c, *msg.ID, ws.ErrorResponse{OK: false, Msg: "tab already mounted"})
		}
		return
	}
	t := tab.New(tab.Options{
		ID:     "tab-" + uuid.NewString(),
		Origin: c.Profile(),
		Signal: signal,
		Store:  app.Prefs,
		Sink:   connSink{c: c},

		Classes: root.Classes,
		Attrs:   root.Attrs,
	})
	app.tabs[c.ID()] = t
	app.tabsMu.Unlock()

	t.Attach()
	slog.Debug("tab mounted", "conn", c.ID(), "tab", t.ID(), "profile", c.Profile(), "signal", signal)
	ackOK(c, msg)
}

// switch.cycle
func (app *App) handleSwitchCycle(c *ws.Conn, msg *ws.ClientMessage) {
	t := app.tabFor(c, msg)
	if t == nil {
		return
	}
	t.Click()
	ackOK(c, msg)
}

// system.scheme [signal]
func (app *App) handleSystemScheme(c *ws.Conn, msg *ws.ClientMessage) {
	t := app.tabFor(c, msg)
	if t == nil {
		return
	}
	t.SetSystem(theme.ParseSignal(argString(parseArgs(msg), 0)))
	ackOK(c, msg)
}

func (app *App) closeTab(c *ws.Conn) {
	app.tabsMu.Lock()
	t := app.tabs[c.ID()]
	delete(app.tabs, c.ID())
	app.tabsMu.Unlock()

	if t != nil {
		t.Close()
		slog.Debug("tab closed", "conn", c.ID(), "tab", t.ID())
	}
}

// CloseTabs closes every attached tab. Used on shutdown.
func (app *App) CloseTabs() {
	app.tabsMu.Lock()
	all := app.tabs
	app.tabs = make(map[string]*tab.Tab)
	app.tabsMu.Unlock()

	for _, t := range all {
		t.Close()
	}
}
