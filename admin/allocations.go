package admin

import (
	"net/http"
	"strconv"

	"github.com/maxpert/unitsffi/bind"
	"github.com/rs/zerolog/log"
)

// handleAllocations pages through the tracked allocation groups in id order
func (h *AdminHandlers) handleAllocations(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	from, err := parseFrom(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	all := h.runtime.Allocations()
	page := make([]bind.AllocationInfo, 0, limit)
	hasMore := false
	for _, a := range all {
		if a.ID <= from {
			continue
		}
		if len(page) == limit {
			hasMore = true
			break
		}
		page = append(page, a)
	}

	lastKey := ""
	if hasMore {
		lastKey = strconv.FormatUint(page[len(page)-1].ID, 10)
	}
	writeJSONResponse(w, page, hasMore, lastKey)
}

// handleAllocationStats counts live originated objects per type
func (h *AdminHandlers) handleAllocationStats(w http.ResponseWriter, r *http.Request) {
	stats := h.runtime.AllocationStats()
	total := 0
	for _, n := range stats {
		total += n
	}

	response := map[string]interface{}{
		"by_type": stats,
		"total":   total,
	}
	writeJSONResponse(w, response, false, "")
}

// handleReclaim releases every leaked originator
func (h *AdminHandlers) handleReclaim(w http.ResponseWriter, r *http.Request) {
	n, err := h.runtime.Reclaim()
	if err != nil {
		log.Error().Err(err).Int("objects", n).Msg("Reclaim failed")
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Int("objects", n).Msg("Reclaimed native objects via admin")
	writeJSONResponse(w, map[string]interface{}{"reclaimed": n}, false, "")
}
