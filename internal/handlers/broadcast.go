package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"hash"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/cfilipov/blogd/internal/posts"
	"github.com/cfilipov/blogd/internal/ui"
	"github.com/cfilipov/blogd/internal/ws"
)

// EventPosts carries the re-rendered stories section.
const EventPosts = "posts"

// broadcastState holds per-channel FNV hashes for deduplication.
type broadcastState struct {
	mu       sync.Mutex
	lastHash map[string]uint64
	hasher   hash.Hash64
}

func newBroadcastState() *broadcastState {
	return &broadcastState{
		lastHash: make(map[string]uint64),
		hasher:   fnv.New64a(),
	}
}

// broadcastIfChanged marshals data, computes FNV-1a hash, and broadcasts to
// every connection only if the hash differs from the last broadcast on this
// channel. Returns true if a broadcast was sent.
func (bs *broadcastState) broadcastIfChanged(wss *ws.Server, channel string, data any) bool {
	// Marshal the full envelope once, used for both hashing and sending.
	msg, err := json.Marshal(ws.ServerMessage[any]{
		Event: channel,
		Data:  data,
	})
	if err != nil {
		slog.Error("broadcast marshal", "channel", channel, "err", err)
		return false
	}

	bs.mu.Lock()
	bs.hasher.Reset()
	bs.hasher.Write(msg)
	sum := bs.hasher.Sum64()
	changed := sum != bs.lastHash[channel]
	if changed {
		bs.lastHash[channel] = sum
	}
	bs.mu.Unlock()

	if !changed {
		slog.Debug("broadcast skipped (unchanged)", "channel", channel)
		return false
	}

	wss.BroadcastBytes(msg)
	slog.Debug("broadcast sent", "channel", channel, "bytes", len(msg))
	return true
}

// forget drops the channel's hash so the next broadcast is always sent.
func (bs *broadcastState) forget(channel string) {
	bs.mu.Lock()
	delete(bs.lastHash, channel)
	bs.mu.Unlock()
}

// PostsPayload is the posts event body.
type PostsPayload struct {
	Count int    `json:"count"`
	HTML  string `json:"html"`
}

// RegisterPostHandlers seeds the dedup state with the current post list and
// sends that list to every new connection, so reconnecting tabs catch up on
// changes made while they were away.
func RegisterPostHandlers(app *App) {
	app.bcastState = newBroadcastState()
	if payload, err := app.postsPayload(); err == nil {
		app.bcastState.broadcastIfChanged(app.WS, EventPosts, payload)
	}
	app.WS.HandleConnect(app.sendPosts)
}

func (app *App) sendPosts(c *ws.Conn) {
	payload, err := app.postsPayload()
	if err != nil {
		slog.Error("render posts", "conn", c.ID(), "err", err)
		return
	}
	ws.SendEvent(c, EventPosts, payload)
}

func (app *App) postsPayload() (PostsPayload, error) {
	hero, more, ok := app.Posts.Split()
	count := len(more)
	if ok {
		count++
	}
	var buf bytes.Buffer
	if err := ui.Stories(hero, more, ok).Render(&buf); err != nil {
		return PostsPayload{}, err
	}
	return PostsPayload{Count: count, HTML: buf.String()}, nil
}

// BroadcastPosts pushes the current post list to every connected tab if it
// changed since the last push.
func (app *App) BroadcastPosts() bool {
	if app.bcastState == nil {
		app.bcastState = newBroadcastState()
	}
	if !app.WS.HasConns() {
		// New connections are sent the list on connect.
		app.bcastState.forget(EventPosts)
		return false
	}
	payload, err := app.postsPayload()
	if err != nil {
		slog.Error("render posts", "err", err)
		return false
	}
	return app.bcastState.broadcastIfChanged(app.WS, EventPosts, payload)
}

// StartPostsWatcher reloads the index on file changes and broadcasts the
// result.
func (app *App) StartPostsWatcher(ctx context.Context) error {
	return posts.StartWatcher(ctx, app.Posts, func() { app.BroadcastPosts() })
}
