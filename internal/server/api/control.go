package api

import (
	"encoding/json"
	"net/http"

	"github.com/bernardo/visionups/internal/overlay"
	"github.com/bernardo/visionups/internal/pipeline"
)

// Controller is the runtime state adjustable over HTTP.
type Controller interface {
	IsEnabled() bool
	SetEnabled(enabled bool)
	DisplaySize() pipeline.DisplaySize
	SetDisplaySize(size pipeline.DisplaySize) error
	ScaleMode() overlay.ScaleMode
	SetScaleMode(mode overlay.ScaleMode)
}

// ControlHandler handles /api/control, the detection on/off switch.
type ControlHandler struct {
	ctl Controller
}

// NewControlHandler creates a new ControlHandler.
func NewControlHandler(ctl Controller) *ControlHandler {
	return &ControlHandler{ctl: ctl}
}

type controlRequest struct {
	Enabled *bool `json:"enabled"`
}

type controlResponse struct {
	Enabled bool `json:"enabled"`
}

func (h *ControlHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req controlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Enabled == nil {
			writeError(w, http.StatusBadRequest, "enabled is required")
			return
		}
		h.ctl.SetEnabled(*req.Enabled)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, controlResponse{Enabled: h.ctl.IsEnabled()})
}

// DisplayHandler handles /api/display. Render clients report the size of
// their drawing surface so boxes are mapped to it.
type DisplayHandler struct {
	ctl Controller
}

// NewDisplayHandler creates a new DisplayHandler.
func NewDisplayHandler(ctl Controller) *DisplayHandler {
	return &DisplayHandler{ctl: ctl}
}

type displayRequest struct {
	Width     *float64 `json:"width"`
	Height    *float64 `json:"height"`
	ScaleMode string   `json:"scale_mode"`
}

type displayResponse struct {
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	ScaleMode string  `json:"scale_mode"`
}

func (h *DisplayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req displayRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		var mode overlay.ScaleMode
		if req.ScaleMode != "" {
			m, err := overlay.ParseScaleMode(req.ScaleMode)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			mode = m
		}

		if req.Width != nil || req.Height != nil {
			if req.Width == nil || req.Height == nil {
				writeError(w, http.StatusBadRequest, "width and height must be set together")
				return
			}
			if err := h.ctl.SetDisplaySize(pipeline.DisplaySize{Width: *req.Width, Height: *req.Height}); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		if mode != "" {
			h.ctl.SetScaleMode(mode)
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	size := h.ctl.DisplaySize()
	writeJSON(w, http.StatusOK, displayResponse{
		Width:     size.Width,
		Height:    size.Height,
		ScaleMode: string(h.ctl.ScaleMode()),
	})
}
