package services

import (
	"github.com/go-chi/chi/v5"
)

// newTestRouter gives handlers that read chi URL params a real chi context.
func newTestRouter() chi.Router {
	return chi.NewRouter()
}
