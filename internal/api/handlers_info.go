package api

import (
	"net/http"
	"time"

	"github.com/jobstr/harvester/internal/harvest"
	"github.com/jobstr/harvester/internal/util"
)

// Version is reported by /v1/info.
const Version = "0.1"

func (h *handlers) GetHealth(w http.ResponseWriter, r *http.Request) {
	snap := h.status.Snapshot()
	if snap.State == harvest.StateTerminated {
		util.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "terminated",
			"error":  snap.LastError,
		})
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *handlers) GetInfo(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"name":         "jobstr harvester",
		"version":      Version,
		"service_time": time.Now().UTC().Format(time.RFC3339),
		"uptime":       time.Since(h.started).Round(time.Second).String(),
		"npub":         h.npub,
		"relays":       h.cfg.Relays,
		"query": map[string]any{
			"kind":          1,
			"hashtag":       h.cfg.Hashtag,
			"lookback":      h.cfg.Lookback.String(),
			"query_timeout": h.cfg.QueryTimeout.String(),
			"interval":      h.cfg.Interval.String(),
		},
		"output": map[string]any{
			"path": h.cfg.OutputPath,
			"mode": string(h.cfg.OutputMode),
		},
		"archive":        h.archive != nil,
		"canonical_json": "RFC8785-JCS",
	}
	util.WriteJSON(w, http.StatusOK, resp)
}

func (h *handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	util.WriteJSON(w, http.StatusOK, h.status.Snapshot())
}
