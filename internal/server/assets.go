package server

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed web/*
var WebFS embed.FS

// AssetsHandler serves the embedded API overview page.
func AssetsHandler() http.Handler {
	sub, _ := fs.Sub(WebFS, "web")
	return http.FileServer(http.FS(sub))
}
