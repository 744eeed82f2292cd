package handlers

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/cfilipov/blogd/internal/models"
	"github.com/cfilipov/blogd/internal/posts"
	"github.com/cfilipov/blogd/internal/prefstore"
	"github.com/cfilipov/blogd/internal/tab"
	"github.com/cfilipov/blogd/internal/ws"
)

// App holds shared dependencies for all handlers.
type App struct {
	Prefs    *prefstore.Store
	Settings *models.SettingStore
	Profiles *models.ProfileStore
	WS       *ws.Server
	Posts    *posts.Index

	ProfileSecret string
	SecureCookies bool
	Version       string

	tabsMu sync.Mutex
	tabs   map[string]*tab.Tab // ws conn ID → tab

	bcastState *broadcastState
}

// tabFor returns the tab attached to the connection, or nil and an error ack.
func (app *App) tabFor(c *ws.Conn, msg *ws.ClientMessage) *tab.Tab {
	app.tabsMu.Lock()
	t := app.tabs[c.ID()]
	app.tabsMu.Unlock()
	if t == nil && msg != nil && msg.ID != nil {
		ws.SendAck(c, *msg.ID, ws.ErrorResponse{OK: false, Msg: "tab not mounted"})
	}
	return t
}

// TabCount returns the number of attached tabs.
func (app *App) TabCount() int {
	app.tabsMu.Lock()
	defer app.tabsMu.Unlock()
	return len(app.tabs)
}

func ackOK(c *ws.Conn, msg *ws.ClientMessage) {
	if msg != nil && msg.ID != nil {
		ws.SendAck(c, *msg.ID, ws.OkResponse{OK: true})
	}
}

// parseArgs unmarshals the Args JSON array into a slice of json.RawMessage.
func parseArgs(msg *ws.ClientMessage) []json.RawMessage {
	if msg == nil || len(msg.Args) == 0 {
		return nil
	}
	var args []json.RawMessage
	if err := json.Unmarshal(msg.Args, &args); err != nil {
		slog.Warn("parse args", "err", err)
		return nil
	}
	return args
}

// argString extracts a string from args at the given index.
func argString(args []json.RawMessage, index int) string {
	if index >= len(args) {
		return ""
	}
	var s string
	if err := json.Unmarshal(args[index], &s); err != nil {
		return ""
	}
	return s
}

// argObject extracts a JSON object from args at the given index into dst.
func argObject(args []json.RawMessage, index int, dst interface{}) bool {
	if index >= len(args) {
		return false
	}
	return json.Unmarshal(args[index], dst) == nil
}
