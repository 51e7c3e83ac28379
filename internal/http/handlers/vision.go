package handlers

import (
	"net/http"
)

// VisionModels lists the curated caption models with their availability on
// the configured backend.
func (a *App) VisionModels(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"items": a.Models(r.Context())})
}
