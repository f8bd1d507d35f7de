package handlers

import (
	"encoding/json"
	"net/http"

	"projectpulse/microservices/taskpool-service/models"
	"projectpulse/microservices/taskpool-service/services"

	"github.com/gorilla/mux"
)

type StageHandler struct {
	service *services.StageService
}

func NewStageHandler(service *services.StageService) *StageHandler {
	return &StageHandler{service: service}
}

type createStageRequest struct {
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
}

type stageResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Stage   *models.Stage   `json:"stage,omitempty"`
	Stages  []*models.Stage `json:"stages,omitempty"`
	Locked  []bool          `json:"locked,omitempty"`
}

func (h *StageHandler) CreateStage(w http.ResponseWriter, r *http.Request) {
	if err := checkRole(r, []string{"manager"}); err != nil {
		writeJSON(w, http.StatusForbidden, stageResponse{Success: false, Message: "Access forbidden: insufficient permissions"})
		return
	}
	var req createStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, stageResponse{Success: false, Message: "Invalid request payload"})
		return
	}
	if req.ProjectID == "" || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, stageResponse{Success: false, Message: "projectId and name are required"})
		return
	}

	stage, err := h.service.CreateStage(r.Context(), req.ProjectID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stageResponse{Success: true, Stage: stage})
}

func (h *StageHandler) GetStagesByProject(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectID"]
	stages, err := h.service.GetStagesByProject(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stageResponse{Success: true, Stages: stages, Locked: services.ComputeLocks(stages)})
}

// GetStageLockStatus answers with one lock flag per stage, index-aligned with
// the project's stage order.
func (h *StageHandler) GetStageLockStatus(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectID"]
	locked, err := h.service.GetStageLockStatus(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Locked  []bool `json:"locked"`
	}{Success: true, Locked: locked})
}
