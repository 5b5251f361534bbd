package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/quickchat/internal/media"
)

type FileHandler struct {
	store *media.Store
}

func NewFileHandler(store *media.Store) *FileHandler {
	return &FileHandler{store: store}
}

func (h *FileHandler) Serve(w http.ResponseWriter, r *http.Request) {
	h.store.Serve(w, r, chi.URLParam(r, "filename"))
}
