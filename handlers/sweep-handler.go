package handlers

import (
	"net/http"

	"projectpulse/microservices/taskpool-service/logging"
	"projectpulse/microservices/taskpool-service/services"
)

// SweepHandler exposes the deadline sweep to the external scheduler. No
// arguments, no payload beyond success or failure.
type SweepHandler struct {
	service *services.SweeperService
}

func NewSweepHandler(service *services.SweeperService) *SweepHandler {
	return &SweepHandler{service: service}
}

func (h *SweepHandler) SweepOverdueTasks(w http.ResponseWriter, r *http.Request) {
	if err := h.service.SweepOverdueTasks(r.Context()); err != nil {
		logging.Logger.Errorf("Event ID: SWEEP_FAILED, Description: Deadline sweep failed: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}
