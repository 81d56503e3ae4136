package api

import (
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/starford/agora/internal/social"
)

const maxAvatarBytes = 5 << 20 // 5 MB

// AvatarHandler serves and accepts profile avatars.
type AvatarHandler struct {
	svc *social.Service
}

// NewAvatarHandler creates a handler over the social service.
func NewAvatarHandler(svc *social.Service) *AvatarHandler {
	return &AvatarHandler{svc: svc}
}

// Serve handles GET /api/profiles/{origin}/avatar.
func (h *AvatarHandler) Serve(w http.ResponseWriter, r *http.Request) {
	origin, ok := originOrFail(w, r, "origin")
	if !ok {
		return
	}
	name, data, err := h.svc.Avatar(r.Context(), origin)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctype := mime.TypeByExtension(path.Ext(name))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", ctype)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Upload handles PUT /api/profiles/{origin}/avatar. The image is either the
// raw request body with ?ext=png, or a multipart form with a "file" field
// whose filename supplies the extension.
func (h *AvatarHandler) Upload(w http.ResponseWriter, r *http.Request) {
	origin, ok := originOrFail(w, r, "origin")
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes)

	ext := r.URL.Query().Get("ext")
	var data []byte
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
			return
		}
		defer file.Close()
		if ext == "" {
			ext = path.Ext(header.Filename)
		}
		if data, err = io.ReadAll(file); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
			return
		}
	} else {
		var err error
		if data, err = io.ReadAll(r.Body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("body too large"))
			return
		}
	}

	if err := h.svc.SetAvatar(r.Context(), origin, data, ext); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
