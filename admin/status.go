package admin

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/oracle/coherence-js-client-sub001/events"
)

// handleStatus returns session wide totals
func (h *AdminHandlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	var total events.Stats
	open := 0
	stats := h.source.Stats()
	for _, s := range stats {
		total.KeyGroups += s.KeyGroups
		total.FilterGroups += s.FilterGroups
		total.Listeners += s.Listeners
		total.PendingRequests += s.PendingRequests
		if s.Connection == events.StateOpen {
			open++
		}
	}

	writeJSONResponse(w, map[string]interface{}{
		"format":           h.source.Format(),
		"maps":             len(stats),
		"open_streams":     open,
		"key_groups":       total.KeyGroups,
		"filter_groups":    total.FilterGroups,
		"listeners":        total.Listeners,
		"pending_requests": total.PendingRequests,
	})
}

// handleHealth reports unhealthy when any map's event stream has failed
func (h *AdminHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	var failed []string
	for name, s := range h.source.Stats() {
		if s.Connection == events.StateFailed {
			failed = append(failed, name)
		}
	}

	if len(failed) > 0 {
		sort.Strings(failed)
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "degraded", "failed": failed})
		return
	}
	writeJSONResponse(w, map[string]interface{}{"status": "ok"})
}

// handleListMaps returns stats for every open map
func (h *AdminHandlers) handleListMaps(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSONResponse(w, h.sortedStats(limit))
}

// handleMap returns stats for one map
func (h *AdminHandlers) handleMap(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s, ok := h.source.Stats()[name]
	if !ok {
		writeErrorResponse(w, http.StatusNotFound, "map '"+name+"' not found")
		return
	}
	writeJSONResponse(w, statsJSON(name, s))
}
