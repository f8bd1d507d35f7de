package repositories

import (
	"context"
	"time"

	"projectpulse/microservices/taskpool-service/models"
)

// TaskRepository is the task side of the persistence gateway. Status
// transitions go through UpdateIfStatus so that every multi-field mutation is
// a compare-and-swap keyed on the status the caller observed.
type TaskRepository interface {
	Insert(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, taskID string) (*models.Task, error)
	ListByStage(ctx context.Context, stageID string) ([]*models.Task, error)
	// UpdateIfStatus applies the field updates only while the stored status
	// still equals expected. Returns models.ErrConflict when the task exists
	// but its status moved, models.ErrNotFound when it does not exist.
	UpdateIfStatus(ctx context.Context, taskID string, expected models.TaskStatus, fields map[string]interface{}) error
	Delete(ctx context.Context, taskID string) error
	// FindDuePage returns up to limit assigned tasks whose soft deadline lies
	// before now, with IDs greater than afterID, ordered by ID. An empty
	// afterID starts from the beginning.
	FindDuePage(ctx context.Context, now time.Time, afterID string, limit int) ([]*models.Task, error)
}

type StageRepository interface {
	Insert(ctx context.Context, stage *models.Stage) error
	GetByID(ctx context.Context, stageID string) (*models.Stage, error)
	// ListByProject returns the project's stages sorted by order.
	ListByProject(ctx context.Context, projectID string) ([]*models.Stage, error)
	// IncrementCounters adjusts the denormalized counters. The update is
	// rejected with models.ErrConflict if it would leave the stage outside
	// 0 <= tasksCompleted <= totalTasks.
	IncrementCounters(ctx context.Context, stageID string, totalDelta, completedDelta int) error
}

type StatsRepository interface {
	// Get returns models.ErrNotFound when the user has no stats row yet.
	Get(ctx context.Context, projectID, userID string) (*models.UserStats, error)
	// Save upserts the row keyed by (projectID, userID).
	Save(ctx context.Context, stats *models.UserStats) error
	// ListByProject returns the project's stats rows in arrival order.
	ListByProject(ctx context.Context, projectID string) ([]*models.UserStats, error)
}

// Store bundles the repositories with a transaction runner. Everything the
// callback does through the repositories with the callback's context commits
// as one atomic unit or not at all.
type Store interface {
	Tasks() TaskRepository
	Stages() StageRepository
	Stats() StatsRepository
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
