// Package site serves the embedded public scoreboard page.
package site

import (
	"context"
	"net/http"
)

// Register attaches the embedded scoreboard page to mux at the root.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.Handle("GET /", http.FileServer(FS()))
}
