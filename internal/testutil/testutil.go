package testutil

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/cfilipov/blogd/internal/db"
	"github.com/cfilipov/blogd/internal/handlers"
	"github.com/cfilipov/blogd/internal/models"
	"github.com/cfilipov/blogd/internal/posts"
	"github.com/cfilipov/blogd/internal/prefstore"
	"github.com/cfilipov/blogd/internal/ws"
)

var msgIDCounter int64

// SamplePost is written to the posts dir of every test environment.
const SamplePost = `---
title: "Hello World"
excerpt: "The first post."
date: "2020-03-16T05:35:07.322Z"
author:
  name: Tim Neutkens
  picture: "/assets/blog/authors/tim.jpeg"
---

Welcome.
`

// TestEnv holds a fully wired test application with a temp DB and posts dir.
type TestEnv struct {
	App      *handlers.App
	Server   *httptest.Server
	WSServer *ws.Server
	DataDir  string
	PostsDir string
	cancel   context.CancelFunc
}

// Setup creates a test environment with a real HTTP server and BoltDB.
func Setup(t testing.TB) *TestEnv {
	t.Helper()

	tmpDir := t.TempDir()
	dataDir := filepath.Join(tmpDir, "data")
	postsDir := filepath.Join(tmpDir, "posts")
	if err := os.MkdirAll(postsDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(postsDir, "hello-world.md"), []byte(SamplePost), 0644); err != nil {
		t.Fatal(err)
	}

	database, err := db.Open(dataDir)
	if err != nil {
		t.Fatal(err)
	}

	settings := models.NewSettingStore(database)
	secret, err := settings.EnsureProfileSecret()
	if err != nil {
		t.Fatal(err)
	}

	index := posts.NewIndex(postsDir)
	if err := index.Reload(); err != nil {
		t.Fatal(err)
	}

	wss := ws.NewServer()
	app := &handlers.App{
		Prefs:         prefstore.NewStore(database),
		Settings:      settings,
		Profiles:      models.NewProfileStore(database),
		WS:            wss,
		Posts:         index,
		ProfileSecret: secret,
		Version:       "test",
	}
	wss.Authenticate(app.AuthenticateWS)
	handlers.RegisterThemeHandlers(app)
	handlers.RegisterPostHandlers(app)

	ctx, cancel := context.WithCancel(context.Background())
	if err := app.StartPostsWatcher(ctx); err != nil {
		t.Log("posts watcher:", err)
	}

	server := httptest.NewServer(handlers.NewRouter(app, nil))

	t.Cleanup(func() {
		cancel()
		wss.CloseAll()
		server.Close()
		app.CloseTabs()
		database.Close()
	})

	return &TestEnv{
		App:      app,
		Server:   server,
		WSServer: wss,
		DataDir:  dataDir,
		PostsDir: postsDir,
		cancel:   cancel,
	}
}

// NewClient returns an HTTP client with its own cookie jar, i.e. its own
// browser profile. Redirects are not followed.
func (e *TestEnv) NewClient(t testing.TB) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{
		Jar:     jar,
		Timeout: 10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Get issues a GET with an optional color-scheme client hint.
func (e *TestEnv) Get(t testing.TB, client *http.Client, path, scheme string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.Server.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if scheme != "" {
		req.Header.Set(handlers.ColorSchemeHint, `"`+scheme+`"`)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal("read body:", err)
	}
	return resp, string(body)
}

// DialWS opens a WebSocket connection carrying the client's cookies. The
// client must have loaded a page first so it holds a profile.
func (e *TestEnv) DialWS(t testing.TB, client *http.Client) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(e.Server.URL, "http") + "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The dialer rejects clients with a Timeout; only the jar is needed.
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPClient: &http.Client{Jar: client.Jar}})
	if err != nil {
		t.Fatal("dial ws:", err)
	}
	conn.SetReadLimit(1 << 20)

	t.Cleanup(func() {
		conn.Close(websocket.StatusNormalClosure, "")
	})

	return conn
}

// Message is one decoded server push.
type Message struct {
	ID    *int64          `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// SendAndReceive sends a WS event with an ack ID and returns the parsed ack
// data. Pushes read while waiting are returned in skipped.
func (e *TestEnv) SendAndReceive(t testing.TB, conn *websocket.Conn, event string, args ...interface{}) (ack map[string]interface{}, skipped []Message) {
	t.Helper()

	id := atomic.AddInt64(&msgIDCounter, 1)
	e.write(t, conn, map[string]interface{}{
		"id":    id,
		"event": event,
		"args":  args,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		msg := readMessage(ctx, t, conn)
		if msg.ID != nil && *msg.ID == id {
			if err := json.Unmarshal(msg.Data, &ack); err != nil {
				t.Fatal("unmarshal ack:", err)
			}
			return ack, skipped
		}
		skipped = append(skipped, msg)
	}
}

// SendEvent sends a WS event without waiting for an ack.
func (e *TestEnv) SendEvent(t testing.TB, conn *websocket.Conn, event string, args ...interface{}) {
	t.Helper()
	e.write(t, conn, map[string]interface{}{
		"event": event,
		"args":  args,
	})
}

// WaitFor reads pushes until match accepts one, and returns it.
func (e *TestEnv) WaitFor(t testing.TB, conn *websocket.Conn, match func(Message) bool) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		msg := readMessage(ctx, t, conn)
		if match(msg) {
			return msg
		}
	}
}

func (e *TestEnv) write(t testing.TB, conn *websocket.Conn, msg map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal("marshal msg:", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatal("write:", err)
	}
}

func readMessage(ctx context.Context, t testing.TB, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatal("read:", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal("unmarshal:", err)
	}
	return msg
}
