package services

import (
	"context"
	"testing"
	"time"

	"projectpulse/microservices/taskpool-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeLocks(t *testing.T) {
	tests := []struct {
		name   string
		stages []*models.Stage
		want   []bool
	}{
		{
			name:   "empty project",
			stages: nil,
			want:   []bool{},
		},
		{
			name:   "single stage is never locked",
			stages: []*models.Stage{{TotalTasks: 5, TasksCompleted: 0}},
			want:   []bool{false},
		},
		{
			name: "unfinished stage locks the next",
			stages: []*models.Stage{
				{TotalTasks: 3, TasksCompleted: 2},
				{TotalTasks: 4, TasksCompleted: 0},
			},
			want: []bool{false, true},
		},
		{
			name: "finished stage unlocks the next",
			stages: []*models.Stage{
				{TotalTasks: 3, TasksCompleted: 3},
				{TotalTasks: 4, TasksCompleted: 0},
			},
			want: []bool{false, false},
		},
		{
			name: "empty stage never blocks",
			stages: []*models.Stage{
				{TotalTasks: 0, TasksCompleted: 0},
				{TotalTasks: 2, TasksCompleted: 0},
			},
			want: []bool{false, false},
		},
		{
			name: "each stage gates only its successor",
			stages: []*models.Stage{
				{TotalTasks: 1, TasksCompleted: 1},
				{TotalTasks: 2, TasksCompleted: 1},
				{TotalTasks: 2, TasksCompleted: 0},
			},
			want: []bool{false, false, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeLocks(tt.stages)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i], got[i], "stage %d", i)
			}
		})
	}
}

func TestCreateStage_AssignsSequentialOrder(t *testing.T) {
	f := newFixture(t)

	second, err := f.stages.CreateStage(context.Background(), f.project, "Build")
	require.NoError(t, err)
	third, err := f.stages.CreateStage(context.Background(), f.project, "Ship")
	require.NoError(t, err)

	assert.Equal(t, 0, f.stage.Order)
	assert.Equal(t, 1, second.Order)
	assert.Equal(t, 2, third.Order)

	stages, err := f.stages.GetStagesByProject(context.Background(), f.project)
	require.NoError(t, err)
	require.Len(t, stages, 3)
	for i, stage := range stages {
		assert.Equal(t, i, stage.Order)
	}
}

// Scenario C: the next stage stays locked until the previous stage's last
// task completes.
func TestGetStageLockStatus_UnlocksOnLastCompletion(t *testing.T) {
	f := newFixture(t)
	_, err := f.stages.CreateStage(context.Background(), f.project, "Build")
	require.NoError(t, err)

	var tasks []*models.Task
	for i := 0; i < 3; i++ {
		tasks = append(tasks, f.newTask(t, 1, time.Now().Add(24*time.Hour)))
	}
	for _, task := range tasks[:2] {
		_, err := f.pool.AssignTask(context.Background(), task.ID.Hex(), "u1")
		require.NoError(t, err)
		_, err = f.pool.CompleteTask(context.Background(), task.ID.Hex(), "u1")
		require.NoError(t, err)
	}

	locked, err := f.stages.GetStageLockStatus(context.Background(), f.project)
	require.NoError(t, err)
	require.Equal(t, []bool{false, true}, locked)

	_, err = f.pool.AssignTask(context.Background(), tasks[2].ID.Hex(), "u1")
	require.NoError(t, err)
	_, err = f.pool.CompleteTask(context.Background(), tasks[2].ID.Hex(), "u1")
	require.NoError(t, err)

	locked, err = f.stages.GetStageLockStatus(context.Background(), f.project)
	require.NoError(t, err)
	require.Equal(t, []bool{false, false}, locked)
}
