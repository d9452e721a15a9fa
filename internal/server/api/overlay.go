package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/humanverify/internal/geometry"
	"github.com/ayusman/humanverify/internal/overlay"
)

// OverlaySource is the overlay state the handler exposes.
type OverlaySource interface {
	Snapshot() overlay.State
	ViewSize() geometry.Size
	SetViewSize(size geometry.Size) error
	Mirrored() bool
	SetMirrored(mirrored bool)
}

// OverlayHandler handles HTTP requests for the overlay resource.
type OverlayHandler struct {
	source OverlaySource
}

// NewOverlayHandler creates a new OverlayHandler backed by source.
func NewOverlayHandler(source OverlaySource) *OverlayHandler {
	return &OverlayHandler{source: source}
}

// ServeHTTP routes /api/overlay and /api/overlay/view.
func (h *OverlayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/overlay")
	path = strings.TrimPrefix(path, "/")

	switch path {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.get(w, r)
	case "view":
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, toViewResponse(h.source.ViewSize(), h.source.Mirrored()))
		case http.MethodPut:
			h.setView(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type rectResponse struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// OverlayResponse is the JSON form of an overlay state. It is also pushed over
// the overlay websocket.
type OverlayResponse struct {
	Visible   bool          `json:"visible"`
	Rect      *rectResponse `json:"rect,omitempty"`
	Label     string        `json:"label,omitempty"`
	Seq       uint64        `json:"seq"`
	UpdatedAt string        `json:"updated_at,omitempty"`
}

type viewRequest struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	// Mirrored is optional; the current setting is kept when it is absent.
	Mirrored *bool `json:"mirrored,omitempty"`
}

type viewResponse struct {
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Mirrored bool    `json:"mirrored"`
}

func toViewResponse(s geometry.Size, mirrored bool) viewResponse {
	return viewResponse{Width: s.Width, Height: s.Height, Mirrored: mirrored}
}

// ToOverlayResponse converts an overlay state to its JSON form.
func ToOverlayResponse(s overlay.State) OverlayResponse {
	resp := OverlayResponse{
		Visible: s.Visible(),
		Label:   s.Label,
		Seq:     s.Seq,
	}
	if s.Rect != nil {
		resp.Rect = &rectResponse{X: s.Rect.X, Y: s.Rect.Y, Width: s.Rect.Width, Height: s.Rect.Height}
	}
	if !s.UpdatedAt.IsZero() {
		resp.UpdatedAt = s.UpdatedAt.Format("2006-01-02T15:04:05.000Z07:00")
	}
	return resp
}

// get handles GET /api/overlay and returns the current overlay.
func (h *OverlayHandler) get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ToOverlayResponse(h.source.Snapshot()))
}

// setView handles PUT /api/overlay/view and changes the view size detections
// are mapped into, and optionally whether they are mirrored.
func (h *OverlayHandler) setView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	size := geometry.Size{Width: req.Width, Height: req.Height}
	if err := h.source.SetViewSize(size); err != nil {
		if errors.Is(err, geometry.ErrInvalidSize) {
			writeError(w, http.StatusBadRequest, "Width and height must be positive")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to set view size")
		return
	}

	if req.Mirrored != nil {
		h.source.SetMirrored(*req.Mirrored)
	}

	writeJSON(w, http.StatusOK, toViewResponse(size, h.source.Mirrored()))
}
