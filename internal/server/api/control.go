package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ayusman/humanverify/internal/app"
	"github.com/ayusman/humanverify/internal/capture"
)

// Pipeline is the part of the application the control API drives.
type Pipeline interface {
	IsEnabled() bool
	SetEnabled(enabled bool)
	SetOrientation(o capture.Orientation)
	Stats() app.Stats
}

// ControlHandler handles /api/capture, /api/orientation and /api/stats.
type ControlHandler struct {
	pipeline Pipeline
}

// NewControlHandler creates a new ControlHandler for p.
func NewControlHandler(p Pipeline) *ControlHandler {
	return &ControlHandler{pipeline: p}
}

type captureRequest struct {
	Enabled *bool `json:"enabled"`
}

type captureResponse struct {
	Enabled   bool   `json:"enabled"`
	Running   bool   `json:"running"`
	SessionID string `json:"session_id,omitempty"`
}

type orientationRequest struct {
	Orientation string `json:"orientation"`
}

type orientationResponse struct {
	Orientation string `json:"orientation"`
	Exif        int    `json:"exif"`
}

// ServeHTTP implements the http.Handler interface and routes requests by path.
func (h *ControlHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch strings.TrimSuffix(r.URL.Path, "/") {
	case "/api/capture":
		switch r.Method {
		case http.MethodGet:
			h.capture(w, r)
		case http.MethodPut:
			h.setCapture(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "/api/orientation":
		if r.Method != http.MethodPut {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.setOrientation(w, r)
	case "/api/stats":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, h.pipeline.Stats())
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (h *ControlHandler) captureState() captureResponse {
	st := h.pipeline.Stats()
	return captureResponse{
		Enabled:   h.pipeline.IsEnabled(),
		Running:   st.Running,
		SessionID: st.SessionID,
	}
}

// capture handles GET /api/capture.
func (h *ControlHandler) capture(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.captureState())
}

// setCapture handles PUT /api/capture and pauses or resumes detection.
func (h *ControlHandler) setCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "Enabled is required")
		return
	}

	h.pipeline.SetEnabled(*req.Enabled)
	writeJSON(w, http.StatusOK, h.captureState())
}

// setOrientation handles PUT /api/orientation.
func (h *ControlHandler) setOrientation(w http.ResponseWriter, r *http.Request) {
	var req orientationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	o, err := capture.ParseOrientation(req.Orientation)
	if err != nil || req.Orientation == "" {
		writeError(w, http.StatusBadRequest, "Invalid orientation")
		return
	}

	h.pipeline.SetOrientation(o)
	writeJSON(w, http.StatusOK, orientationResponse{Orientation: o.String(), Exif: o.ExifOrientation()})
}
