package services

import (
	"context"
	"sort"

	"projectpulse/microservices/taskpool-service/models"
	"projectpulse/microservices/taskpool-service/repositories"
)

// LeaderboardService is the read side of the per-user aggregates that
// AssignTask/UnassignTask/CompleteTask maintain.
type LeaderboardService struct {
	store repositories.Store
}

func NewLeaderboardService(store repositories.Store) *LeaderboardService {
	return &LeaderboardService{store: store}
}

// GetLeaderboard returns the project's user stats sorted by points,
// descending. The sort is stable over arrival order, so ties keep the order
// in which users first appeared in the project.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, projectID string) ([]*models.UserStats, error) {
	stats, err := s.store.Stats().ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].TotalPoints > stats[j].TotalPoints
	})
	return stats, nil
}
