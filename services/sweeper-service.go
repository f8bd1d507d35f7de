package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"projectpulse/microservices/taskpool-service/clients"
	"projectpulse/microservices/taskpool-service/logging"
	"projectpulse/microservices/taskpool-service/models"
	"projectpulse/microservices/taskpool-service/repositories"
)

const defaultSweepPageSize = 200

// SweeperService flips assigned tasks whose soft deadline passed to overdue,
// making them reassignable. It pages over an indexed query instead of walking
// every project, commits per stage batch, and a failed batch never aborts the
// rest of the sweep. The assignee is left in place so the original user can
// still complete an overdue task.
type SweeperService struct {
	store    repositories.Store
	notifier *clients.NotificationsClient
	pageSize int
}

func NewSweeperService(store repositories.Store, notifier *clients.NotificationsClient, pageSize int) *SweeperService {
	if pageSize <= 0 {
		pageSize = defaultSweepPageSize
	}
	return &SweeperService{store: store, notifier: notifier, pageSize: pageSize}
}

// SweepOverdueTasks runs one full sweep. Idempotent: the query only matches
// assigned tasks, so an already-overdue task is never touched again.
func (s *SweeperService) SweepOverdueTasks(ctx context.Context) error {
	now := time.Now()
	afterID := ""
	flipped := 0

	for {
		page, err := s.store.Tasks().FindDuePage(ctx, now, afterID, s.pageSize)
		if err != nil {
			return fmt.Errorf("failed to query due tasks: %v", err)
		}
		if len(page) == 0 {
			break
		}

		for stageID, batch := range groupByStage(page) {
			n, err := s.sweepStageBatch(ctx, batch)
			if err != nil {
				logging.Logger.Errorf("Event ID: SWEEP_STAGE_FAILED, Description: Sweep failed for stage %s, continuing: %v", stageID, err)
				continue
			}
			flipped += n
		}

		afterID = page[len(page)-1].ID.Hex()
		if len(page) < s.pageSize {
			break
		}
	}

	logging.Logger.Infof("Event ID: SWEEP_FINISHED, Description: Deadline sweep marked %d tasks overdue", flipped)
	return nil
}

func groupByStage(tasks []*models.Task) map[string][]*models.Task {
	batches := make(map[string][]*models.Task)
	for _, task := range tasks {
		batches[task.StageID] = append(batches[task.StageID], task)
	}
	return batches
}

func (s *SweeperService) sweepStageBatch(ctx context.Context, batch []*models.Task) (int, error) {
	flipped := 0
	var expired []*models.Task

	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		for _, task := range batch {
			err := s.store.Tasks().UpdateIfStatus(ctx, task.ID.Hex(), models.StatusAssigned, map[string]interface{}{
				"status":          models.StatusOverdue,
				"canBeReassigned": true,
			})
			if errors.Is(err, models.ErrConflict) || errors.Is(err, models.ErrNotFound) {
				// Completed, reassigned or deleted since the scan; skip it.
				continue
			}
			if err != nil {
				return err
			}
			flipped++
			expired = append(expired, task)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, task := range expired {
		s.notifier.SendNotification(task.Assignee, fmt.Sprintf("Task %q passed its soft deadline and may be reassigned.", task.Title))
	}
	return flipped, nil
}
