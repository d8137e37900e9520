package admin

import (
	"fmt"
	"net/http"
)

// handleLibrary reports the loaded library, its interface description and the
// symbols bound so far
func (h *AdminHandlers) handleLibrary(w http.ResponseWriter, r *http.Request) {
	iface := h.registry.Interface()
	if iface == nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "library not loaded")
		return
	}

	response := map[string]interface{}{
		"path":         h.registry.LibraryPath(),
		"loads":        h.registry.Loads(),
		"header":       iface.Path,
		"digest":       fmt.Sprintf("%016x", iface.Digest()),
		"types":        iface.TypeNames(),
		"declarations": iface.Len(),
		"resolved":     h.registry.Resolved(),
	}
	writeJSONResponse(w, response, false, "")
}
