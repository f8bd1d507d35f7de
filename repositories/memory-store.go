package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"projectpulse/microservices/taskpool-service/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore implements Store on in-process maps. It backs the test suite
// and STORE=memory local runs. WithTransaction holds the store mutex for the
// whole callback, which gives the same serialized atomic-commit contract the
// Mongo transaction provides; callers order the status compare-and-swap first
// inside a transaction so a lost race aborts before any counter moves.
type MemoryStore struct {
	mu         sync.Mutex
	tasks      map[string]*models.Task
	stages     map[string]*models.Stage
	stats      map[string]*models.UserStats
	statsOrder []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:  make(map[string]*models.Task),
		stages: make(map[string]*models.Stage),
		stats:  make(map[string]*models.UserStats),
	}
}

type memTxnKey struct{}

// lock acquires the store mutex unless the context already runs inside
// WithTransaction, which holds it for the duration of the callback.
func (s *MemoryStore) lock(ctx context.Context) func() {
	if ctx.Value(memTxnKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemoryStore) Tasks() TaskRepository   { return &memTaskRepo{store: s} }
func (s *MemoryStore) Stages() StageRepository { return &memStageRepo{store: s} }
func (s *MemoryStore) Stats() StatsRepository  { return &memStatsRepo{store: s} }

func (s *MemoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(context.WithValue(ctx, memTxnKey{}, true))
}

func copyTask(t *models.Task) *models.Task {
	c := *t
	if t.AssignedAt != nil {
		at := *t.AssignedAt
		c.AssignedAt = &at
	}
	if t.CompletedAt != nil {
		ct := *t.CompletedAt
		c.CompletedAt = &ct
	}
	return &c
}

type memTaskRepo struct {
	store *MemoryStore
}

func (r *memTaskRepo) Insert(ctx context.Context, task *models.Task) error {
	defer r.store.lock(ctx)()
	if task.ID.IsZero() {
		task.ID = primitive.NewObjectID()
	}
	r.store.tasks[task.ID.Hex()] = copyTask(task)
	return nil
}

func (r *memTaskRepo) GetByID(ctx context.Context, taskID string) (*models.Task, error) {
	defer r.store.lock(ctx)()
	task, ok := r.store.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
	}
	return copyTask(task), nil
}

func (r *memTaskRepo) ListByStage(ctx context.Context, stageID string) ([]*models.Task, error) {
	defer r.store.lock(ctx)()
	var tasks []*models.Task
	for _, task := range r.store.tasks {
		if task.StageID == stageID {
			tasks = append(tasks, copyTask(task))
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID.Hex() < tasks[j].ID.Hex() })
	return tasks, nil
}

func (r *memTaskRepo) UpdateIfStatus(ctx context.Context, taskID string, expected models.TaskStatus, fields map[string]interface{}) error {
	defer r.store.lock(ctx)()
	task, ok := r.store.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
	}
	if task.Status != expected {
		return fmt.Errorf("task %s: %w", taskID, models.ErrConflict)
	}
	for key, value := range fields {
		switch key {
		case "status":
			task.Status = value.(models.TaskStatus)
		case "assignee":
			task.Assignee = value.(string)
		case "assignedAt":
			task.AssignedAt = toTimePtr(value)
		case "completedAt":
			task.CompletedAt = toTimePtr(value)
		case "canBeReassigned":
			task.CanBeReassigned = value.(bool)
		case "completionPercentage":
			task.CompletionPercentage = value.(int)
		default:
			return fmt.Errorf("unsupported task field %q", key)
		}
	}
	return nil
}

func toTimePtr(value interface{}) *time.Time {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case *time.Time:
		return v
	case time.Time:
		return &v
	}
	return nil
}

func (r *memTaskRepo) Delete(ctx context.Context, taskID string) error {
	defer r.store.lock(ctx)()
	if _, ok := r.store.tasks[taskID]; !ok {
		return fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
	}
	delete(r.store.tasks, taskID)
	return nil
}

func (r *memTaskRepo) FindDuePage(ctx context.Context, now time.Time, afterID string, limit int) ([]*models.Task, error) {
	defer r.store.lock(ctx)()
	var due []*models.Task
	for id, task := range r.store.tasks {
		if task.Status != models.StatusAssigned || !now.After(task.SoftDeadline) {
			continue
		}
		if afterID != "" && id <= afterID {
			continue
		}
		due = append(due, copyTask(task))
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID.Hex() < due[j].ID.Hex() })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

type memStageRepo struct {
	store *MemoryStore
}

func (r *memStageRepo) Insert(ctx context.Context, stage *models.Stage) error {
	defer r.store.lock(ctx)()
	if stage.ID.IsZero() {
		stage.ID = primitive.NewObjectID()
	}
	c := *stage
	r.store.stages[stage.ID.Hex()] = &c
	return nil
}

func (r *memStageRepo) GetByID(ctx context.Context, stageID string) (*models.Stage, error) {
	defer r.store.lock(ctx)()
	stage, ok := r.store.stages[stageID]
	if !ok {
		return nil, fmt.Errorf("stage %s: %w", stageID, models.ErrNotFound)
	}
	c := *stage
	return &c, nil
}

func (r *memStageRepo) ListByProject(ctx context.Context, projectID string) ([]*models.Stage, error) {
	defer r.store.lock(ctx)()
	var stages []*models.Stage
	for _, stage := range r.store.stages {
		if stage.ProjectID == projectID {
			c := *stage
			stages = append(stages, &c)
		}
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].Order < stages[j].Order })
	return stages, nil
}

func (r *memStageRepo) IncrementCounters(ctx context.Context, stageID string, totalDelta, completedDelta int) error {
	defer r.store.lock(ctx)()
	stage, ok := r.store.stages[stageID]
	if !ok {
		return fmt.Errorf("stage %s: %w", stageID, models.ErrNotFound)
	}
	total := stage.TotalTasks + totalDelta
	completed := stage.TasksCompleted + completedDelta
	if total < 0 || completed < 0 || completed > total {
		return fmt.Errorf("stage %s counter update out of bounds: %w", stageID, models.ErrConflict)
	}
	stage.TotalTasks = total
	stage.TasksCompleted = completed
	return nil
}

type memStatsRepo struct {
	store *MemoryStore
}

func statsKey(projectID, userID string) string {
	return projectID + "/" + userID
}

func (r *memStatsRepo) Get(ctx context.Context, projectID, userID string) (*models.UserStats, error) {
	defer r.store.lock(ctx)()
	stats, ok := r.store.stats[statsKey(projectID, userID)]
	if !ok {
		return nil, fmt.Errorf("stats for user %s in project %s: %w", userID, projectID, models.ErrNotFound)
	}
	c := *stats
	return &c, nil
}

func (r *memStatsRepo) Save(ctx context.Context, stats *models.UserStats) error {
	defer r.store.lock(ctx)()
	key := statsKey(stats.ProjectID, stats.UserID)
	existing, ok := r.store.stats[key]
	c := *stats
	if ok {
		// createdAt marks arrival order and never changes on update.
		c.CreatedAt = existing.CreatedAt
	} else {
		r.store.statsOrder = append(r.store.statsOrder, key)
	}
	r.store.stats[key] = &c
	return nil
}

func (r *memStatsRepo) ListByProject(ctx context.Context, projectID string) ([]*models.UserStats, error) {
	defer r.store.lock(ctx)()
	var stats []*models.UserStats
	for _, key := range r.store.statsOrder {
		row := r.store.stats[key]
		if row.ProjectID == projectID {
			c := *row
			stats = append(stats, &c)
		}
	}
	return stats, nil
}
