package handlers

import (
	"net/http"

	"projectpulse/microservices/taskpool-service/models"
	"projectpulse/microservices/taskpool-service/services"

	"github.com/gorilla/mux"
)

type LeaderboardHandler struct {
	service *services.LeaderboardService
}

func NewLeaderboardHandler(service *services.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{service: service}
}

func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectID"]
	leaderboard, err := h.service.GetLeaderboard(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	if leaderboard == nil {
		leaderboard = []*models.UserStats{}
	}
	writeJSON(w, http.StatusOK, struct {
		Success     bool                `json:"success"`
		Leaderboard []*models.UserStats `json:"leaderboard"`
	}{Success: true, Leaderboard: leaderboard})
}
