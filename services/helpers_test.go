package services

import (
	"context"
	"io"
	"testing"
	"time"

	"projectpulse/microservices/taskpool-service/logging"
	"projectpulse/microservices/taskpool-service/models"
	"projectpulse/microservices/taskpool-service/repositories"

	"github.com/stretchr/testify/require"
)

func init() {
	logging.Logger.SetOutput(io.Discard)
}

type fixture struct {
	store   *repositories.MemoryStore
	pool    *TaskPoolService
	stages  *StageService
	board   *LeaderboardService
	sweeper *SweeperService
	stage   *models.Stage
	project string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repositories.NewMemoryStore()
	f := &fixture{
		store:   store,
		pool:    NewTaskPoolService(store, nil),
		stages:  NewStageService(store),
		board:   NewLeaderboardService(store),
		sweeper: NewSweeperService(store, nil, 0),
		project: "project-1",
	}
	stage, err := f.stages.CreateStage(context.Background(), f.project, "Planning")
	require.NoError(t, err)
	f.stage = stage
	return f
}

// newTask creates an available task in the fixture stage.
func (f *fixture) newTask(t *testing.T, points int, softDeadline time.Time) *models.Task {
	t.Helper()
	task, err := f.pool.CreateTask(context.Background(), f.project, f.stage.ID.Hex(), "Write docs", "", points, softDeadline, softDeadline.Add(48*time.Hour))
	require.NoError(t, err)
	return task
}

// backdateAssignment rewrites assignedAt so completion durations are
// deterministic in tests.
func (f *fixture) backdateAssignment(t *testing.T, taskID string, assignedAt time.Time) {
	t.Helper()
	err := f.store.Tasks().UpdateIfStatus(context.Background(), taskID, models.StatusAssigned, map[string]interface{}{
		"assignedAt": &assignedAt,
	})
	require.NoError(t, err)
}

func (f *fixture) task(t *testing.T, taskID string) *models.Task {
	t.Helper()
	task, err := f.store.Tasks().GetByID(context.Background(), taskID)
	require.NoError(t, err)
	return task
}

func (f *fixture) userStats(t *testing.T, userID string) *models.UserStats {
	t.Helper()
	stats, err := f.store.Stats().Get(context.Background(), f.project, userID)
	require.NoError(t, err)
	return stats
}

func (f *fixture) currentStage(t *testing.T) *models.Stage {
	t.Helper()
	stage, err := f.store.Stages().GetByID(context.Background(), f.stage.ID.Hex())
	require.NoError(t, err)
	return stage
}

// requireStatusAssigneeInvariant checks that a task carries an assignee
// exactly when it is assigned, overdue or completed.
func requireStatusAssigneeInvariant(t *testing.T, task *models.Task) {
	t.Helper()
	switch task.Status {
	case models.StatusAvailable:
		require.Empty(t, task.Assignee, "available task must have no assignee")
	case models.StatusAssigned, models.StatusOverdue, models.StatusCompleted:
		require.NotEmpty(t, task.Assignee, "task in status %q must have an assignee", task.Status)
	default:
		t.Fatalf("unknown task status %q", task.Status)
	}
}
