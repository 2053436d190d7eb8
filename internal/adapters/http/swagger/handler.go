// Package swagger serves the OpenAPI document and a ReDoc page for it.
package swagger

import (
	"bytes"
	"context"
	"net/http"
	"time"
)

// Paths the docs are served at.
const (
	DocsPath = "/api-docs"
	SpecPath = "/openapi.yaml"
)

// started is the Last-Modified time of the embedded document; it only
// changes with a new build.
var started = time.Now().UTC().Truncate(time.Second)

// Register attaches the API docs routes to mux.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.HandleFunc("GET "+DocsPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(docsPage))
	})

	mux.HandleFunc("GET "+SpecPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=300")
		http.ServeContent(w, r, "openapi.yaml", started, bytes.NewReader(OpenAPI))
	})
}

const docsPage = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>Scoreboard API</title>
    <style>body{margin:0;padding:0}</style>
  </head>
  <body>
    <redoc id="redoc-container"></redoc>
    <script src="https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"></script>
    <script>Redoc.init('` + SpecPath + `', { suppressWarnings: true }, document.getElementById('redoc-container'));</script>
  </body>
</html>`
