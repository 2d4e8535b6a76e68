package layerserver

import (
	"context"
	"encoding/json"
	"image/png"
	"log"
	"net/http"
	"strings"
	"time"

	"timeglobe/internal/layer"
	"timeglobe/internal/resource"
	"timeglobe/internal/timeseq"
)

// renderableLayer is the capability the server requires from a layer:
// slot enumeration, prefetch, and render-to-sink frame selection.
// *layer.TimeSeriesLayer satisfies it.
type renderableLayer interface {
	Slots() ([]timeseq.Slot, error)
	SlotState(key string) (resource.State, error)
	IsPrePopulated() bool
	PrePopulate(ctx context.Context) error
	RenderTo(ctx context.Context, query time.Time, sink layer.RenderSink) (layer.RenderStatus, error)
}

// captureSink is a per-request render sink that records the handed-off
// resource so the handler can encode it into the response.
type captureSink struct {
	res    *resource.Resource
	params layer.DisplayParams
}

func (c *captureSink) Draw(res *resource.Resource, params layer.DisplayParams) {
	c.res = res
	c.params = params
}

// layerInfo is the JSON listing entry for one layer.
type layerInfo struct {
	Name         string    `json:"name"`
	SlotCount    int       `json:"slotCount"`
	PrePopulated bool      `json:"prePopulated"`
	CurrentTime  time.Time `json:"currentTime"`
}

// slotStatus is the per-slot readiness entry in a status response.
type slotStatus struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	State     string    `json:"state"`
}

// handleLayers lists all layers.
// URL: GET /layers
func (s *Server) handleLayers(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	order := make([]string, len(s.order))
	copy(order, s.order)
	s.mu.RUnlock()

	infos := make([]layerInfo, 0, len(order))
	for _, name := range order {
		s.mu.RLock()
		l := s.layers[name]
		s.mu.RUnlock()
		slots, err := l.Slots()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		infos = append(infos, layerInfo{
			Name:         name,
			SlotCount:    len(slots),
			PrePopulated: l.IsPrePopulated(),
			CurrentTime:  l.CurrentTime(),
		})
	}
	writeJSON(w, infos)
}

// handleLayer dispatches per-layer operations.
// URL formats:
//
//	GET  /layers/{name}/frame?time={RFC3339}
//	GET  /layers/{name}/status
//	POST /layers/{name}/prepopulate
func (s *Server) handleLayer(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/layers/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		http.Error(w, "Invalid URL format. Expected: /layers/{name}/{operation}", http.StatusBadRequest)
		return
	}

	s.mu.RLock()
	l, exists := s.layers[parts[0]]
	s.mu.RUnlock()
	if !exists {
		http.Error(w, "Unknown layer: "+parts[0], http.StatusNotFound)
		return
	}

	switch parts[1] {
	case "frame":
		s.handleFrame(w, r, l)
	case "status":
		s.handleStatus(w, r, l)
	case "prepopulate":
		s.handlePrepopulate(w, r, l)
	default:
		http.Error(w, "Unknown operation: "+parts[1], http.StatusNotFound)
	}
}

// handleFrame serves the image for the slot nearest the query time as PNG.
// A slot whose fetch has not completed yet answers 204 so the client can
// retry on its own schedule.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request, l renderableLayer) {
	queryParam := r.URL.Query().Get("time")
	query := time.Now().UTC()
	if queryParam != "" {
		parsed, err := time.Parse(time.RFC3339, queryParam)
		if err != nil {
			http.Error(w, "Invalid time parameter (want RFC 3339)", http.StatusBadRequest)
			return
		}
		query = parsed
	}

	sink := &captureSink{}
	status, err := l.RenderTo(r.Context(), query, sink)
	if err != nil {
		log.Printf("[LayerServer] Render failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("X-Slot-Key", status.SlotKey)
	w.Header().Set("X-Slot-Time", status.SlotTime.Format(time.RFC3339))
	if !status.Ready || sink.res == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if err := png.Encode(w, sink.res.Image); err != nil {
		log.Printf("[LayerServer] Failed to encode frame: %v", err)
	}
}

// handleStatus reports per-slot fetch states and the aggregate
// prepopulation flag.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, l renderableLayer) {
	slots, err := l.Slots()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	statuses := make([]slotStatus, 0, len(slots))
	for _, slot := range slots {
		state, err := l.SlotState(slot.Key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		statuses = append(statuses, slotStatus{
			Key:       slot.Key,
			Timestamp: slot.Timestamp,
			State:     state.String(),
		})
	}

	writeJSON(w, map[string]interface{}{
		"prePopulated": l.IsPrePopulated(),
		"slots":        statuses,
	})
}

// handlePrepopulate issues prefetches for every slot and returns
// immediately; completion is observed via /status polling.
func (s *Server) handlePrepopulate(w http.ResponseWriter, r *http.Request, l renderableLayer) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := l.PrePopulate(s.ctx); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleCacheStats reports resource cache statistics.
// URL: GET /cache/stats
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	entries, sizeBytes, maxBytes := s.cache.Stats()
	writeJSON(w, map[string]interface{}{
		"entries":   entries,
		"sizeBytes": sizeBytes,
		"maxBytes":  maxBytes,
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[LayerServer] Failed to encode response: %v", err)
	}
}
