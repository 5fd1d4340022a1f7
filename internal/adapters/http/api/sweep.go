package api

import "net/http"

// SweepHandler triggers a sweep on demand.
type SweepHandler struct {
	deps Dependencies
}

// NewSweepHandler creates a new sweep handler.
func NewSweepHandler(deps Dependencies) *SweepHandler {
	return &SweepHandler{deps: deps}
}

// HandleSweep handles POST /sweep and returns the run report.
func (h *SweepHandler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Sweep(r.Context())
	if err != nil {
		writeFailure(w, Wrap("api.sweep", err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}
