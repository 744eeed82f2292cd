package main

import "embed"

// staticFiles embeds the client runtime and stylesheet for single-binary
// deployment. In dev mode (--dev flag), files are served from the filesystem.
//
//go:embed static
var staticFiles embed.FS
