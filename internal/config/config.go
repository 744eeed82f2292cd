package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

type Config struct {
	Port          int
	DataDir       string
	PostsDir      string
	Dev           bool
	LogLevel      slog.Level // Parsed log level (debug, info, warn, error)
	Pprof         bool       // Enable /debug/pprof/ endpoints
	SecureCookies bool       // Mark the profile cookie Secure

	logLevel string
}

// AddFlags registers the server flags on fs and returns the config they fill.
// Call Finish once fs has been parsed.
func AddFlags(fs *pflag.FlagSet) *Config {
	cfg := &Config{}
	fs.IntVarP(&cfg.Port, "port", "p", 3000, "HTTP server port")
	fs.StringVar(&cfg.DataDir, "data-dir", "./data", "Path to data directory (bolt DB)")
	fs.StringVar(&cfg.PostsDir, "posts-dir", "./_posts", "Path to markdown posts")
	fs.BoolVar(&cfg.Dev, "dev", false, "Development mode (serve static assets from filesystem)")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.Pprof, "pprof", false, "Enable /debug/pprof/ endpoints")
	fs.BoolVar(&cfg.SecureCookies, "secure-cookies", false, "Set the Secure attribute on the profile cookie")
	return cfg
}

// Finish applies environment overrides and parses the log level.
// Env vars override flags (if set).
func (c *Config) Finish(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv("BLOGD_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BLOGD_PORT: %w", err)
		}
		c.Port = p
	}
	if v := getenv("BLOGD_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := getenv("BLOGD_POSTS_DIR"); v != "" {
		c.PostsDir = v
	}
	if v := getenv("BLOGD_LOG_LEVEL"); v != "" {
		c.logLevel = v
	}
	if isTrue(getenv("BLOGD_DEV")) {
		c.Dev = true
	}
	if isTrue(getenv("BLOGD_PPROF")) {
		c.Pprof = true
	}
	if isTrue(getenv("BLOGD_SECURE_COOKIES")) {
		c.SecureCookies = true
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	c.LogLevel = parseLogLevel(c.logLevel)
	return nil
}

// Addr is the listen address for Port.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func isTrue(v string) bool {
	return v == "1" || v == "true"
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
