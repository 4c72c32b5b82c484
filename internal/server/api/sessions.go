package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/gaitpose/internal/gaitlog"
	"github.com/ayusman/gaitpose/internal/pose"
	"github.com/ayusman/gaitpose/internal/store"
)

// SessionHandler handles HTTP requests for recorded sessions.
type SessionHandler struct {
	store *store.Store
}

// NewSessionHandler creates a new SessionHandler with the given store.
func NewSessionHandler(s *store.Store) *SessionHandler {
	return &SessionHandler{store: s}
}

// ServeHTTP routes /api/sessions, /api/sessions/{id} and
// /api/sessions/{id}/export.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	path = strings.Trim(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	id, rest, _ := strings.Cut(path, "/")
	switch rest {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, id)
		case http.MethodDelete:
			h.delete(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "export":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.export(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type sessionResponse struct {
	ID             string              `json:"id"`
	Source         string              `json:"source"`
	Mode           string              `json:"mode"`
	ImageWidth     int                 `json:"image_width"`
	ImageHeight    int                 `json:"image_height"`
	IntervalMs     int64               `json:"interval_ms"`
	Config         pose.Config         `json:"config"`
	ExportLocation string              `json:"export_location,omitempty"`
	Frames         int                 `json:"frames"`
	CreatedAt      string              `json:"created_at"`
	Results        []*pose.FrameResult `json:"results,omitempty"`
}

type listSessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

func toSessionResponse(s *store.Session) sessionResponse {
	return sessionResponse{
		ID:             s.ID,
		Source:         s.Source,
		Mode:           s.Mode.String(),
		ImageWidth:     s.ImageWidth,
		ImageHeight:    s.ImageHeight,
		IntervalMs:     s.IntervalMs,
		Config:         s.Config,
		ExportLocation: s.ExportLocation,
		Frames:         s.Frames,
		CreatedAt:      s.CreatedAt.Format(time.RFC3339),
	}
}

// list handles GET /api/sessions.
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.Sessions().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	response := listSessionsResponse{
		Sessions: make([]sessionResponse, 0, len(sessions)),
	}
	for _, s := range sessions {
		response.Sessions = append(response.Sessions, toSessionResponse(s))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/sessions/{id}. With ?frames=true the stored frame
// results are included.
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := h.store.Sessions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	response := toSessionResponse(sess)

	if withFrames, _ := strconv.ParseBool(r.URL.Query().Get("frames")); withFrames {
		response.Results, err = h.store.Frames().ListBySession(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load frames")
			return
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// delete handles DELETE /api/sessions/{id}.
func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Sessions().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// export handles GET /api/sessions/{id}/export?format=columns|blocks and
// returns the session as a CSV attachment.
func (h *SessionHandler) export(w http.ResponseWriter, r *http.Request, id string) {
	format := gaitlog.FormatColumns
	if f := r.URL.Query().Get("format"); f != "" {
		var err error
		if format, err = gaitlog.ParseFormat(f); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	sess, err := h.store.Sessions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	frames, err := h.store.Frames().ListBySession(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load frames")
		return
	}

	var buf bytes.Buffer
	exporter := gaitlog.Exporter{Format: format, Start: sess.CreatedAt}
	if err := exporter.Encode(&buf, frames); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode CSV")
		return
	}

	w.Header().Set("Content-Type", gaitlog.CSVContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", gaitlog.FileName(time.Now())))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
