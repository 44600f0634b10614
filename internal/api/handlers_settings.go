package api

import (
	"fmt"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/veridata/surveyguard/internal/settings"
)

// GetSettings returns the stored threshold overrides.
func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	all, err := h.settings.GetAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, all)
}

// UpdateSettings stores threshold overrides and applies them to the running
// configuration. Unknown keys are rejected whole-batch.
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if err := decodeBody(r, &updates); err != nil {
		writeAppError(w, err)
		return
	}

	for key := range updates {
		if !settings.IsKnown(key) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown setting %q", key))
			return
		}
	}
	for key, value := range updates {
		if err := h.settings.Set(key, value); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	// Overlay onto a fresh clone of the startup config and publish it
	// atomically; the snapshot in use by in-flight analyses is never written.
	snap := h.cfg.Base()
	h.settings.ClearCache()
	h.settings.ApplyTo(snap)
	h.cfg.Swap(snap)

	h.log.Info("settings updated", zapKeys(updates)...)
	writeJSON(w, http.StatusOK, map[string]int{"updated": len(updates)})
}

func zapKeys(m map[string]string) []zap.Field {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return []zap.Field{zap.Strings("keys", keys)}
}
