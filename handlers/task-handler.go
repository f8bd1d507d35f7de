package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"projectpulse/microservices/taskpool-service/logging"
	"projectpulse/microservices/taskpool-service/models"
	"projectpulse/microservices/taskpool-service/services"

	"github.com/gorilla/mux"
)

type TaskHandler struct {
	service *services.TaskPoolService
}

func NewTaskHandler(service *services.TaskPoolService) *TaskHandler {
	return &TaskHandler{service: service}
}

func checkRole(r *http.Request, allowedRoles []string) error {
	userRole := r.Header.Get("Role")
	if userRole == "" {
		return fmt.Errorf("role is missing in request header")
	}
	for _, role := range allowedRoles {
		if role == userRole {
			return nil
		}
	}
	return fmt.Errorf("access forbidden: user does not have the required role")
}

// callerID returns the authenticated user's ID forwarded by the gateway.
func callerID(r *http.Request) string {
	return r.Header.Get("User-ID")
}

type apiResponse struct {
	Success      bool           `json:"success"`
	Message      string         `json:"message,omitempty"`
	PointsEarned int            `json:"pointsEarned,omitempty"`
	Task         *models.Task   `json:"task,omitempty"`
	Tasks        []*models.Task `json:"tasks,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps the engine's error kinds onto HTTP status codes and always
// answers with a structured envelope, never a bare error page.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrInvalidState),
		errors.Is(err, models.ErrAlreadyCompleted),
		errors.Is(err, models.ErrConflict):
		status = http.StatusConflict
	}
	writeJSON(w, status, apiResponse{Success: false, Message: err.Error()})
}

type createTaskRequest struct {
	ProjectID    string    `json:"projectId"`
	StageID      string    `json:"stageId"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Points       int       `json:"points"`
	SoftDeadline time.Time `json:"softDeadline"`
	HardDeadline time.Time `json:"hardDeadline"`
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	if err := checkRole(r, []string{"manager"}); err != nil {
		writeJSON(w, http.StatusForbidden, apiResponse{Success: false, Message: "Access forbidden: insufficient permissions"})
		return
	}
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Message: "Invalid request payload"})
		return
	}
	if req.ProjectID == "" || req.StageID == "" || req.Title == "" {
		writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Message: "projectId, stageId and title are required"})
		return
	}

	task, err := h.service.CreateTask(r.Context(), req.ProjectID, req.StageID, req.Title, req.Description, req.Points, req.SoftDeadline, req.HardDeadline)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, apiResponse{Success: true, Task: task})
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["taskID"]
	task, err := h.service.GetTaskByID(r.Context(), taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Task: task})
}

func (h *TaskHandler) GetTasksByStage(w http.ResponseWriter, r *http.Request) {
	stageID := mux.Vars(r)["stageID"]
	tasks, err := h.service.GetTasksByStage(r.Context(), stageID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Tasks: tasks})
}

func (h *TaskHandler) AssignTask(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r)
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Message: "User-ID header is required"})
		return
	}
	taskID := mux.Vars(r)["taskID"]

	task, err := h.service.AssignTask(r.Context(), taskID, userID)
	if err != nil {
		logging.Logger.Warnf("Event ID: ASSIGN_REJECTED, Description: Assignment of task %s to user %s rejected: %v", taskID, userID, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Task: task})
}

func (h *TaskHandler) UnassignTask(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r)
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Message: "User-ID header is required"})
		return
	}
	taskID := mux.Vars(r)["taskID"]

	if err := h.service.UnassignTask(r.Context(), taskID, userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func (h *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r)
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Message: "User-ID header is required"})
		return
	}
	taskID := mux.Vars(r)["taskID"]

	points, err := h.service.CompleteTask(r.Context(), taskID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, PointsEarned: points})
}

type progressRequest struct {
	CompletionPercentage int `json:"completionPercentage"`
}

func (h *TaskHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r)
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Message: "User-ID header is required"})
		return
	}
	taskID := mux.Vars(r)["taskID"]

	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Message: "Invalid request payload"})
		return
	}
	if req.CompletionPercentage < 0 || req.CompletionPercentage > 100 {
		writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Message: "completionPercentage must be between 0 and 100"})
		return
	}

	if err := h.service.UpdateProgress(r.Context(), taskID, userID, req.CompletionPercentage); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := checkRole(r, []string{"manager"}); err != nil {
		writeJSON(w, http.StatusForbidden, apiResponse{Success: false, Message: "Access forbidden: insufficient permissions"})
		return
	}
	taskID := mux.Vars(r)["taskID"]

	if err := h.service.DeleteTask(r.Context(), taskID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}
