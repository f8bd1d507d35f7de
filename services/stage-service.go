package services

import (
	"context"
	"fmt"

	"projectpulse/microservices/taskpool-service/logging"
	"projectpulse/microservices/taskpool-service/models"
	"projectpulse/microservices/taskpool-service/repositories"
)

// StageService owns stage creation and the lock derivation that gates access
// to a stage on completion of the previous one.
type StageService struct {
	store repositories.Store
}

func NewStageService(store repositories.Store) *StageService {
	return &StageService{store: store}
}

// CreateStage appends a new stage to the project; its order is the current
// stage count, keeping orders 0-based and contiguous.
func (s *StageService) CreateStage(ctx context.Context, projectID, name string) (*models.Stage, error) {
	if projectID == "" || name == "" {
		return nil, fmt.Errorf("projectId and name are required")
	}

	stage := &models.Stage{ProjectID: projectID, Name: name}
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.store.Stages().ListByProject(ctx, projectID)
		if err != nil {
			return err
		}
		stage.Order = len(existing)
		return s.store.Stages().Insert(ctx, stage)
	})
	if err != nil {
		return nil, err
	}

	logging.Logger.Infof("Event ID: STAGE_CREATED, Description: Stage %s created for project %s at position %d", stage.ID.Hex(), projectID, stage.Order)
	return stage, nil
}

func (s *StageService) GetStagesByProject(ctx context.Context, projectID string) ([]*models.Stage, error) {
	return s.store.Stages().ListByProject(ctx, projectID)
}

// GetStageLockStatus returns one flag per stage, in order. The first stage is
// never locked; each later stage is locked while the previous one still has
// unfinished tasks.
func (s *StageService) GetStageLockStatus(ctx context.Context, projectID string) ([]bool, error) {
	stages, err := s.store.Stages().ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return ComputeLocks(stages), nil
}

// ComputeLocks derives the lock flags from the stage counters alone. A stage
// with zero tasks counts as complete and never blocks its successor.
func ComputeLocks(stages []*models.Stage) []bool {
	locked := make([]bool, len(stages))
	for i := 1; i < len(stages); i++ {
		prev := stages[i-1]
		locked[i] = prev.TasksCompleted < prev.TotalTasks
	}
	return locked
}
