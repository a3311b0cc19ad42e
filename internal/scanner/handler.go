package scanner

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Handler exposes the explicit scan trigger.
type Handler struct {
	scanner *Scanner
	log     *slog.Logger
}

// NewHandler returns a Handler around scanner.
func NewHandler(scanner *Scanner, log *slog.Logger) *Handler {
	return &Handler{scanner: scanner, log: log}
}

// ScanNow handles POST /library/scan, running a full scan synchronously and
// returning its summary.
func (h *Handler) ScanNow(w http.ResponseWriter, r *http.Request) {
	res, err := h.scanner.Scan(r.Context())
	if err != nil {
		h.log.Error("library scan failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(res)
}
