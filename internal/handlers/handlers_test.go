package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/cfilipov/blogd/internal/handlers"
	"github.com/cfilipov/blogd/internal/page"
	"github.com/cfilipov/blogd/internal/testutil"
	"github.com/cfilipov/blogd/internal/theme"
)

// waitEvent looks through already-read pushes before reading more.
func waitEvent(t *testing.T, env *testutil.TestEnv, conn *websocket.Conn, seen []testutil.Message, match func(testutil.Message) bool) testutil.Message {
	t.Helper()
	for _, m := range seen {
		if match(m) {
			return m
		}
	}
	return env.WaitFor(t, conn, match)
}

func switchSays(label string) func(testutil.Message) bool {
	return func(m testutil.Message) bool {
		if m.Event != handlers.EventSwitch {
			return false
		}
		var html string
		json.Unmarshal(m.Data, &html)
		return strings.Contains(html, label)
	}
}

func domHas(kind page.OpKind, name string) func(testutil.Message) bool {
	return func(m testutil.Message) bool {
		if m.Event != handlers.EventDOM {
			return false
		}
		var ops []page.Op
		json.Unmarshal(m.Data, &ops)
		for _, op := range ops {
			if op.Kind == kind && op.Name == name {
				return true
			}
		}
		return false
	}
}

func mount(t *testing.T, env *testutil.TestEnv, client *http.Client, signal string) (*websocket.Conn, []testutil.Message) {
	t.Helper()
	conn := env.DialWS(t, client)
	ack, skipped := env.SendAndReceive(t, conn, "tab.mount", signal, handlers.MountRoot{})
	if ok, _ := ack["ok"].(bool); !ok {
		t.Fatalf("mount ack = %v", ack)
	}
	return conn, skipped
}

func TestIndexPrerendersFromClientHint(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)
	client := env.NewClient(t)

	resp, body := env.Get(t, client, "/", "dark")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, `class="dark" data-mode="system" data-signal="dark"`) {
		t.Errorf("root not prerendered dark: %.300s", body)
	}
	if !strings.Contains(body, "Hello World") {
		t.Error("post missing from index")
	}
	if resp.Header.Get("Accept-CH") != handlers.ColorSchemeHint {
		t.Errorf("Accept-CH = %q", resp.Header.Get("Accept-CH"))
	}

	_, body = env.Get(t, client, "/", "")
	if !strings.Contains(body, `data-mode="system" data-signal="unknown"`) || strings.Contains(body, `class="dark"`) {
		t.Errorf("unknown signal should render light: %.300s", body)
	}
}

func TestIssuesProfileCookieOnce(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)
	client := env.NewClient(t)

	resp, _ := env.Get(t, client, "/", "")
	if len(resp.Cookies()) != 1 || resp.Cookies()[0].Name != handlers.ProfileCookie {
		t.Fatalf("cookies = %v", resp.Cookies())
	}
	resp, _ = env.Get(t, client, "/", "")
	if len(resp.Cookies()) != 0 {
		t.Error("profile reissued for a known client")
	}
	if n, _ := env.App.Profiles.Count(); n != 0 {
		t.Errorf("profiles saved by page loads = %d", n)
	}
}

func TestProfilesSavedOnFirstUse(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)

	for i := 0; i < 50; i++ {
		env.Get(t, env.NewClient(t), "/", "")
	}
	if n, _ := env.App.Profiles.Count(); n != 0 {
		t.Fatalf("cookie-less page loads saved %d profiles", n)
	}

	wsClient := env.NewClient(t)
	env.Get(t, wsClient, "/", "")
	env.DialWS(t, wsClient)
	if n, _ := env.App.Profiles.Count(); n != 1 {
		t.Errorf("profiles after websocket attach = %d, want 1", n)
	}

	formClient := env.NewClient(t)
	env.Get(t, formClient, "/", "")
	req, _ := http.NewRequest(http.MethodPost, env.Server.URL+"/theme", nil)
	resp, err := formClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if n, _ := env.App.Profiles.Count(); n != 2 {
		t.Errorf("profiles after theme cycle = %d, want 2", n)
	}

	_, body := env.Get(t, formClient, "/api/theme", "")
	if !strings.Contains(body, `"mode":"dark"`) {
		t.Errorf("unsaved profile lost its preference: %s", body)
	}
}

func TestPostPage(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)
	client := env.NewClient(t)

	resp, body := env.Get(t, client, "/posts/hello-world", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "March 16, 2020") {
		t.Errorf("status = %d body = %.200s", resp.StatusCode, body)
	}
	resp, _ = env.Get(t, client, "/posts/missing", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing post status = %d", resp.StatusCode)
	}
}

func TestThemeCycleWithoutScript(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)
	client := env.NewClient(t)
	env.Get(t, client, "/", "")

	for _, want := range []string{"dark", "light", "system"} {
		req, _ := http.NewRequest(http.MethodPost, env.Server.URL+"/theme", nil)
		req.Header.Set("Referer", env.Server.URL+"/posts/hello-world")
		resp, err := client.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/posts/hello-world" {
			t.Errorf("redirect = %d %q", resp.StatusCode, resp.Header.Get("Location"))
		}

		_, body := env.Get(t, client, "/api/theme", "dark")
		var got handlers.ThemeResponse
		if err := json.Unmarshal([]byte(body), &got); err != nil {
			t.Fatal(err)
		}
		if got.Mode != want {
			t.Errorf("mode = %q, want %q", got.Mode, want)
		}
		wantResolved := theme.Resolve(theme.ParsePreference(want), theme.SignalDark).String()
		if got.Resolved != wantResolved {
			t.Errorf("resolved = %q, want %q", got.Resolved, wantResolved)
		}
	}
}

func TestBackTargetRejectsForeignReferer(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)
	client := env.NewClient(t)
	env.Get(t, client, "/", "")

	for _, ref := range []string{"https://evil.example/x", "//evil.example", ""} {
		req, _ := http.NewRequest(http.MethodPost, env.Server.URL+"/theme", nil)
		if ref != "" {
			req.Header.Set("Referer", ref)
		}
		resp, err := client.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if loc := resp.Header.Get("Location"); loc != "/" {
			t.Errorf("referer %q redirected to %q", ref, loc)
		}
	}
}

func TestWebSocketRequiresProfile(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(env.Server.URL, "http")+"/ws", nil)
	if err == nil {
		t.Fatal("dial without profile succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("resp = %v", resp)
	}
}

func TestMountRendersSwitch(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)
	client := env.NewClient(t)
	env.Get(t, client, "/", "dark")

	conn, seen := mount(t, env, client, "dark")
	waitEvent(t, env, conn, seen, domHas(page.OpClassAdd, theme.DarkClass))
	waitEvent(t, env, conn, seen, switchSays("Switch to dark mode"))

	ack, _ := env.SendAndReceive(t, conn, "tab.mount", "dark")
	if ok, _ := ack["ok"].(bool); ok {
		t.Error("second mount on the same connection accepted")
	}
}

func TestCycleBeforeMountFails(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)
	client := env.NewClient(t)
	env.Get(t, client, "/", "")

	conn := env.DialWS(t, client)
	ack, _ := env.SendAndReceive(t, conn, "switch.cycle")
	if ok, _ := ack["ok"].(bool); ok {
		t.Error("cycle without a tab accepted")
	}
}

func TestCrossTabSync(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)
	client := env.NewClient(t)
	env.Get(t, client, "/", "light")

	a, seenA := mount(t, env, client, "light")
	waitEvent(t, env, a, seenA, switchSays("Switch to dark mode"))
	b, seenB := mount(t, env, client, "light")
	waitEvent(t, env, b, seenB, switchSays("Switch to dark mode"))

	env.SendEvent(t, a, "switch.cycle")

	env.WaitFor(t, b, domHas(page.OpClassAdd, theme.DarkClass))
	env.WaitFor(t, b, switchSays("Switch to light mode"))
	env.WaitFor(t, a, switchSays("Switch to light mode"))

	// A different profile keeps its own preference.
	other := env.NewClient(t)
	_, body := env.Get(t, other, "/api/theme", "light")
	if !strings.Contains(body, `"mode":"system"`) {
		t.Errorf("other profile = %s", body)
	}
}

func TestHTTPCycleReachesOpenTabs(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)
	client := env.NewClient(t)
	env.Get(t, client, "/", "light")

	conn, seen := mount(t, env, client, "light")
	waitEvent(t, env, conn, seen, switchSays("Switch to dark mode"))

	req, _ := http.NewRequest(http.MethodPost, env.Server.URL+"/theme", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	env.WaitFor(t, conn, domHas(page.OpClassAdd, theme.DarkClass))
}

func TestSystemSchemeFollowsSignal(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)
	client := env.NewClient(t)
	env.Get(t, client, "/", "light")

	conn, seen := mount(t, env, client, "light")
	waitEvent(t, env, conn, seen, switchSays("Switch to dark mode"))

	env.SendEvent(t, conn, "system.scheme", "dark")
	env.WaitFor(t, conn, domHas(page.OpClassAdd, theme.DarkClass))
}

func TestDisconnectClosesTab(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)
	client := env.NewClient(t)
	env.Get(t, client, "/", "")

	conn, _ := mount(t, env, client, "light")
	if env.App.TabCount() != 1 {
		t.Fatalf("tabs = %d", env.App.TabCount())
	}
	conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(5 * time.Second)
	for env.App.TabCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("tab not closed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPostsBroadcastOnNewFile(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)
	client := env.NewClient(t)
	env.Get(t, client, "/", "")
	conn, _ := mount(t, env, client, "light")

	post := "---\ntitle: Fresh Post\ndate: 2024-01-01T00:00:00Z\n---\nhi\n"
	if err := os.WriteFile(filepath.Join(env.PostsDir, "fresh.md"), []byte(post), 0644); err != nil {
		t.Fatal(err)
	}

	msg := env.WaitFor(t, conn, func(m testutil.Message) bool { return m.Event == handlers.EventPosts })
	var payload handlers.PostsPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Count != 2 || !strings.Contains(payload.HTML, "Fresh Post") {
		t.Errorf("payload = %+v", payload)
	}
}

func TestNewConnectionReceivesPosts(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)
	client := env.NewClient(t)
	env.Get(t, client, "/", "")

	conn := env.DialWS(t, client)
	msg := env.WaitFor(t, conn, func(m testutil.Message) bool { return m.Event == handlers.EventPosts })
	var payload handlers.PostsPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Count != 1 || !strings.Contains(payload.HTML, `id="stories"`) {
		t.Errorf("payload = %+v", payload)
	}
}

func TestPostsBroadcastSkippedWithoutListeners(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)

	if env.App.BroadcastPosts() {
		t.Error("broadcast sent with no connections")
	}

	client := env.NewClient(t)
	env.Get(t, client, "/", "")
	conn := env.DialWS(t, client)
	// The connect push is sent once the connection is registered.
	env.WaitFor(t, conn, func(m testutil.Message) bool { return m.Event == handlers.EventPosts })
	if !env.App.BroadcastPosts() {
		t.Error("unchanged list after a skipped broadcast should still be sent once")
	}
	if env.App.BroadcastPosts() {
		t.Error("duplicate broadcast sent")
	}
}
