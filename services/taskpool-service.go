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

// TaskPoolService owns the task assignment state machine:
//
//	available --assign--> assigned --complete--> completed
//	assigned  --unassign--> available
//	assigned  --sweep--> overdue --assign--> assigned (reassignment)
//
// Every transition is a compare-and-swap on the status the caller observed,
// committed together with the stage and user-stats updates it causes.
type TaskPoolService struct {
	store    repositories.Store
	notifier *clients.NotificationsClient
}

func NewTaskPoolService(store repositories.Store, notifier *clients.NotificationsClient) *TaskPoolService {
	return &TaskPoolService{store: store, notifier: notifier}
}

// withConflictRetry runs a mutation and, when it loses the compare-and-swap
// race, retries exactly once with fresh state before reporting the conflict.
func withConflictRetry(fn func() error) error {
	err := fn()
	if errors.Is(err, models.ErrConflict) {
		err = fn()
	}
	return err
}

// statsOrNew loads the user's stats row for the project, creating a fresh
// zero row when the user has none yet.
func (s *TaskPoolService) statsOrNew(ctx context.Context, projectID, userID string, now time.Time) (*models.UserStats, bool, error) {
	stats, err := s.store.Stats().Get(ctx, projectID, userID)
	if err == nil {
		return stats, false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, false, err
	}
	return &models.UserStats{ProjectID: projectID, UserID: userID, CreatedAt: now}, true, nil
}

// CreateTask inserts a new available task into a stage and bumps the stage's
// totalTasks counter in the same commit.
func (s *TaskPoolService) CreateTask(ctx context.Context, projectID, stageID, title, description string, points int, softDeadline, hardDeadline time.Time) (*models.Task, error) {
	if projectID == "" || stageID == "" || title == "" {
		return nil, fmt.Errorf("projectId, stageId and title are required")
	}
	if points <= 0 {
		points = 1
	}

	task := &models.Task{
		ProjectID:    projectID,
		StageID:      stageID,
		Title:        title,
		Description:  description,
		Status:       models.StatusAvailable,
		Points:       points,
		SoftDeadline: softDeadline,
		HardDeadline: hardDeadline,
	}

	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.store.Stages().GetByID(ctx, stageID); err != nil {
			return err
		}
		if err := s.store.Tasks().Insert(ctx, task); err != nil {
			return err
		}
		return s.store.Stages().IncrementCounters(ctx, stageID, 1, 0)
	})
	if err != nil {
		return nil, err
	}

	logging.Logger.Infof("Event ID: TASK_CREATED, Description: Task %s created in stage %s with %d points", task.ID.Hex(), stageID, points)
	return task, nil
}

// DeleteTask removes a task and rolls its contribution out of the stage
// counters in the same commit.
func (s *TaskPoolService) DeleteTask(ctx context.Context, taskID string) error {
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		task, err := s.store.Tasks().GetByID(ctx, taskID)
		if err != nil {
			return err
		}
		if err := s.store.Tasks().Delete(ctx, taskID); err != nil {
			return err
		}
		completedDelta := 0
		if task.Status == models.StatusCompleted {
			completedDelta = -1
		}
		return s.store.Stages().IncrementCounters(ctx, task.StageID, -1, completedDelta)
	})
	if err != nil {
		return err
	}

	logging.Logger.Infof("Event ID: TASK_DELETED, Description: Task %s deleted", taskID)
	return nil
}

func (s *TaskPoolService) GetTaskByID(ctx context.Context, taskID string) (*models.Task, error) {
	return s.store.Tasks().GetByID(ctx, taskID)
}

func (s *TaskPoolService) GetTasksByStage(ctx context.Context, stageID string) ([]*models.Task, error) {
	return s.store.Tasks().ListByStage(ctx, stageID)
}

// AssignTask claims a task for a user. Accepted from available, overdue, or
// assigned-past-soft-deadline (a stale record the sweep has not flipped yet);
// the previous assignee of a reassigned task keeps their tasksAssigned count.
func (s *TaskPoolService) AssignTask(ctx context.Context, taskID, userID string) (*models.Task, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}
	var task *models.Task
	err := withConflictRetry(func() error {
		var err error
		task, err = s.tryAssign(ctx, taskID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logging.Logger.Infof("Event ID: TASK_ASSIGNED, Description: Task %s assigned to user %s", taskID, userID)
	return task, nil
}

func (s *TaskPoolService) tryAssign(ctx context.Context, taskID, userID string) (*models.Task, error) {
	now := time.Now()
	var assigned *models.Task

	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		task, err := s.store.Tasks().GetByID(ctx, taskID)
		if err != nil {
			return err
		}
		switch task.Status {
		case models.StatusCompleted:
			return fmt.Errorf("task %s is completed: %w", taskID, models.ErrInvalidState)
		case models.StatusAssigned:
			if !task.PastSoftDeadline(now) {
				return fmt.Errorf("task %s is already assigned to %s: %w", taskID, task.Assignee, models.ErrInvalidState)
			}
		}

		fields := map[string]interface{}{
			"status":          models.StatusAssigned,
			"assignee":        userID,
			"assignedAt":      &now,
			"canBeReassigned": false,
		}
		if err := s.store.Tasks().UpdateIfStatus(ctx, taskID, task.Status, fields); err != nil {
			return err
		}

		stats, _, err := s.statsOrNew(ctx, task.ProjectID, userID, now)
		if err != nil {
			return err
		}
		stats.TasksAssigned++
		if err := s.store.Stats().Save(ctx, stats); err != nil {
			return err
		}

		task.Status = models.StatusAssigned
		task.Assignee = userID
		task.AssignedAt = &now
		task.CanBeReassigned = false
		assigned = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assigned, nil
}

// UnassignTask releases a task back to the pool. Only the current assignee
// may release, and only an explicit unassign decrements tasksAssigned.
func (s *TaskPoolService) UnassignTask(ctx context.Context, taskID, userID string) error {
	err := withConflictRetry(func() error {
		return s.tryUnassign(ctx, taskID, userID)
	})
	if err != nil {
		return err
	}

	logging.Logger.Infof("Event ID: TASK_UNASSIGNED, Description: Task %s released by user %s", taskID, userID)
	return nil
}

func (s *TaskPoolService) tryUnassign(ctx context.Context, taskID, userID string) error {
	return s.store.WithTransaction(ctx, func(ctx context.Context) error {
		task, err := s.store.Tasks().GetByID(ctx, taskID)
		if err != nil {
			return err
		}
		if task.Assignee != userID {
			return fmt.Errorf("user %s cannot unassign task %s: %w", userID, taskID, models.ErrForbidden)
		}
		if task.Status == models.StatusCompleted {
			return fmt.Errorf("task %s: %w", taskID, models.ErrAlreadyCompleted)
		}

		fields := map[string]interface{}{
			"status":          models.StatusAvailable,
			"assignee":        "",
			"assignedAt":      nil,
			"canBeReassigned": false,
		}
		if err := s.store.Tasks().UpdateIfStatus(ctx, taskID, task.Status, fields); err != nil {
			return err
		}

		stats, err := s.store.Stats().Get(ctx, task.ProjectID, userID)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if stats.TasksAssigned > 0 {
			stats.TasksAssigned--
		}
		return s.store.Stats().Save(ctx, stats)
	})
}

// CompleteTask marks a task done and commits the task status, the stage's
// tasksCompleted counter and the assignee's stats as one atomic unit. Returns
// the points earned.
func (s *TaskPoolService) CompleteTask(ctx context.Context, taskID, userID string) (int, error) {
	var points int
	err := withConflictRetry(func() error {
		var err error
		points, err = s.tryComplete(ctx, taskID, userID)
		return err
	})
	if err != nil {
		return 0, err
	}

	logging.Logger.Infof("Event ID: TASK_COMPLETED, Description: Task %s completed by user %s for %d points", taskID, userID, points)
	if s.notifier != nil {
		s.notifier.SendNotification(userID, fmt.Sprintf("You completed a task and earned %d points.", points))
	}
	return points, nil
}

func (s *TaskPoolService) tryComplete(ctx context.Context, taskID, userID string) (int, error) {
	now := time.Now()
	var points int

	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		task, err := s.store.Tasks().GetByID(ctx, taskID)
		if err != nil {
			return err
		}
		if task.Assignee != userID {
			return fmt.Errorf("user %s cannot complete task %s: %w", userID, taskID, models.ErrForbidden)
		}
		if task.Status == models.StatusCompleted {
			return fmt.Errorf("task %s: %w", taskID, models.ErrAlreadyCompleted)
		}

		hours := 0.0
		if task.AssignedAt != nil {
			hours = now.Sub(*task.AssignedAt).Hours()
		}

		fields := map[string]interface{}{
			"status":          models.StatusCompleted,
			"completedAt":     &now,
			"canBeReassigned": false,
		}
		if err := s.store.Tasks().UpdateIfStatus(ctx, taskID, task.Status, fields); err != nil {
			return err
		}

		if err := s.store.Stages().IncrementCounters(ctx, task.StageID, 0, 1); err != nil {
			return err
		}

		stats, created, err := s.statsOrNew(ctx, task.ProjectID, userID, now)
		if err != nil {
			return err
		}
		if created {
			// First record for this user also counts the implicit assignment.
			stats.TasksAssigned = 1
		}
		stats.RecordCompletion(task.Points, hours)
		if err := s.store.Stats().Save(ctx, stats); err != nil {
			return err
		}

		points = task.Points
		return nil
	})
	if err != nil {
		return 0, err
	}
	return points, nil
}

// UpdateProgress sets the informational completion percentage. No status
// transition is driven by it.
func (s *TaskPoolService) UpdateProgress(ctx context.Context, taskID, userID string, percentage int) error {
	if percentage < 0 || percentage > 100 {
		return fmt.Errorf("completion percentage must be between 0 and 100")
	}
	return withConflictRetry(func() error {
		return s.store.WithTransaction(ctx, func(ctx context.Context) error {
			task, err := s.store.Tasks().GetByID(ctx, taskID)
			if err != nil {
				return err
			}
			if task.Assignee != userID {
				return fmt.Errorf("user %s cannot update task %s: %w", userID, taskID, models.ErrForbidden)
			}
			if task.Status == models.StatusCompleted {
				return fmt.Errorf("task %s: %w", taskID, models.ErrAlreadyCompleted)
			}
			return s.store.Tasks().UpdateIfStatus(ctx, taskID, task.Status, map[string]interface{}{
				"completionPercentage": percentage,
			})
		})
	})
}
