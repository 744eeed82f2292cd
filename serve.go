package main

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	netpprof "net/http/pprof"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cfilipov/blogd/internal/config"
	"github.com/cfilipov/blogd/internal/db"
	"github.com/cfilipov/blogd/internal/handlers"
	"github.com/cfilipov/blogd/internal/models"
	"github.com/cfilipov/blogd/internal/posts"
	"github.com/cfilipov/blogd/internal/prefstore"
	"github.com/cfilipov/blogd/internal/ws"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the blog server",
	}
	cfg := config.AddFlags(cmd.Flags())
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Finish(os.Getenv); err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	}
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})))

	slog.Info("starting blogd",
		"version", version,
		"port", cfg.Port,
		"dataDir", cfg.DataDir,
		"postsDir", cfg.PostsDir,
		"dev", cfg.Dev,
		"pprof", cfg.Dev || cfg.Pprof,
		"logLevel", cfg.LogLevel,
	)

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer database.Close()

	settings := models.NewSettingStore(database)
	secret, err := settings.EnsureProfileSecret()
	if err != nil {
		return fmt.Errorf("profile secret: %w", err)
	}

	index := posts.NewIndex(cfg.PostsDir)
	if err := index.Reload(); err != nil {
		slog.Warn("load posts", "err", err)
	}

	wss := ws.NewServer()
	app := &handlers.App{
		Prefs:         prefstore.NewStore(database),
		Settings:      settings,
		Profiles:      models.NewProfileStore(database),
		WS:            wss,
		Posts:         index,
		ProfileSecret: secret,
		SecureCookies: cfg.SecureCookies,
		Version:       version,
	}
	wss.Authenticate(app.AuthenticateWS)
	handlers.RegisterThemeHandlers(app)
	handlers.RegisterPostHandlers(app)

	if err := app.StartPostsWatcher(ctx); err != nil {
		slog.Warn("posts watcher failed to start", "err", err)
	}

	staticFS, err := assetsFS(cfg.Dev)
	if err != nil {
		return err
	}
	router := handlers.NewRouter(app, http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	// Enable pprof endpoints in dev mode or via BLOGD_PPROF=1
	if cfg.Dev || cfg.Pprof {
		mountPprof(router)
		slog.Info("pprof enabled at /debug/pprof/")
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           gzipMiddleware(router),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		wss.CloseAll()
		app.CloseTabs()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// assetsFS serves static/ from disk in dev mode, from the binary otherwise.
func assetsFS(dev bool) (fs.FS, error) {
	if dev {
		slog.Info("dev mode: serving static assets from filesystem", "path", "static")
		return os.DirFS("static"), nil
	}
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("embed static: %w", err)
	}
	return sub, nil
}

// mountPprof registers the net/http/pprof handlers, which only attach
// themselves to DefaultServeMux on their own.
func mountPprof(r chi.Router) {
	r.HandleFunc("/debug/pprof/cmdline", netpprof.Cmdline)
	r.HandleFunc("/debug/pprof/profile", netpprof.Profile)
	r.HandleFunc("/debug/pprof/symbol", netpprof.Symbol)
	r.HandleFunc("/debug/pprof/trace", netpprof.Trace)
	r.HandleFunc("/debug/pprof/*", netpprof.Index)
}

// gzipPool reuses gzip.Writer instances (~256KB internal state each).
var gzipPool = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(nil, gzip.DefaultCompression)
		return w
	},
}

// gzipMiddleware compresses responses on the fly for clients that accept it.
// Websocket upgrades pass through untouched.
func gzipMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") ||
			strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}

		// Skip compression for already-compressed responses
		switch filepath.Ext(r.URL.Path) {
		case ".png", ".jpg", ".jpeg", ".gif", ".ico", ".woff", ".woff2", ".br", ".gz":
			next.ServeHTTP(w, r)
			return
		}

		gz := gzipPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			gz.Close()
			gzipPool.Put(gz)
		}()

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		w.Header().Del("Content-Length")

		next.ServeHTTP(&gzipResponseWriter{Writer: gz, ResponseWriter: w}, r)
	})
}

type gzipResponseWriter struct {
	io.Writer
	http.ResponseWriter
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}
