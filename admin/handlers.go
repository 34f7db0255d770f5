package admin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/oracle/coherence-js-client-sub001/events"
	"github.com/rs/zerolog/log"
)

// StatusSource is the view of a cache session the admin endpoints expose
type StatusSource interface {
	Format() string
	Stats() map[string]events.Stats
}

// AdminHandlers serves session status over HTTP
type AdminHandlers struct {
	source StatusSource
}

// NewAdminHandlers creates a new AdminHandlers instance
func NewAdminHandlers(source StatusSource) *AdminHandlers {
	return &AdminHandlers{source: source}
}

// writeJSONResponse writes a successful JSON response
func writeJSONResponse(w http.ResponseWriter, data interface{}) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": data}); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	response := map[string]interface{}{
		"error": message,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}

// parseLimit parses limit parameter with defaults
func parseLimit(r *http.Request) (int, error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return 256, nil // default
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %w", err)
	}

	if limit < 1 {
		return 0, fmt.Errorf("limit must be positive")
	}

	if limit > 1024 {
		return 0, fmt.Errorf("limit cannot exceed 1024")
	}

	return limit, nil
}

func statsJSON(name string, s events.Stats) map[string]interface{} {
	return map[string]interface{}{
		"name":             name,
		"connection":       s.Connection.String(),
		"key_groups":       s.KeyGroups,
		"filter_groups":    s.FilterGroups,
		"listeners":        s.Listeners,
		"pending_requests": s.PendingRequests,
	}
}

// sortedStats returns per-map stats ordered by name, at most limit entries
func (h *AdminHandlers) sortedStats(limit int) []map[string]interface{} {
	stats := h.source.Stats()
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > limit {
		names = names[:limit]
	}

	resp := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		resp = append(resp, statsJSON(name, stats[name]))
	}
	return resp
}
