package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"projectpulse/microservices/taskpool-service/logging"
	"projectpulse/microservices/taskpool-service/models"
	"projectpulse/microservices/taskpool-service/repositories"
	"projectpulse/microservices/taskpool-service/services"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logging.Logger.SetOutput(io.Discard)
}

type testEnv struct {
	router *mux.Router
	store  *repositories.MemoryStore
	pool   *services.TaskPoolService
	stage  *models.Stage
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := repositories.NewMemoryStore()
	pool := services.NewTaskPoolService(store, nil)
	stageService := services.NewStageService(store)
	leaderboard := services.NewLeaderboardService(store)
	sweeper := services.NewSweeperService(store, nil, 0)

	taskHandler := NewTaskHandler(pool)
	stageHandler := NewStageHandler(stageService)
	leaderboardHandler := NewLeaderboardHandler(leaderboard)
	sweepHandler := NewSweepHandler(sweeper)

	r := mux.NewRouter()
	r.HandleFunc("/api/tasks", taskHandler.CreateTask).Methods(http.MethodPost)
	r.HandleFunc("/api/tasks/{taskID}", taskHandler.GetTask).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/{taskID}/assign", taskHandler.AssignTask).Methods(http.MethodPost)
	r.HandleFunc("/api/tasks/{taskID}/unassign", taskHandler.UnassignTask).Methods(http.MethodPost)
	r.HandleFunc("/api/tasks/{taskID}/complete", taskHandler.CompleteTask).Methods(http.MethodPost)
	r.HandleFunc("/api/stages/project/{projectID}/locks", stageHandler.GetStageLockStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/leaderboard/{projectID}", leaderboardHandler.GetLeaderboard).Methods(http.MethodGet)
	r.HandleFunc("/api/internal/sweep", sweepHandler.SweepOverdueTasks).Methods(http.MethodPost)

	stage, err := stageService.CreateStage(context.Background(), "project-1", "Planning")
	require.NoError(t, err)

	return &testEnv{router: r, store: store, pool: pool, stage: stage}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createTask(t *testing.T, points int, softDeadline time.Time) *models.Task {
	t.Helper()
	task, err := e.pool.CreateTask(context.Background(), "project-1", e.stage.ID.Hex(), "Write docs", "", points, softDeadline, softDeadline.Add(48*time.Hour))
	require.NoError(t, err)
	return task
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestCreateTaskEndpoint_RequiresManagerRole(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/tasks", createTaskRequest{
		ProjectID: "project-1",
		StageID:   env.stage.ID.Hex(),
		Title:     "Write docs",
	}, map[string]string{"Role": "member"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, decodeResponse(t, rec).Success)
}

func TestCreateTaskEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/tasks", createTaskRequest{
		ProjectID:    "project-1",
		StageID:      env.stage.ID.Hex(),
		Title:        "Write docs",
		Points:       3,
		SoftDeadline: time.Now().Add(24 * time.Hour),
		HardDeadline: time.Now().Add(48 * time.Hour),
	}, map[string]string{"Role": "manager"})

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Task)
	assert.Equal(t, models.StatusAvailable, resp.Task.Status)
	assert.Equal(t, 3, resp.Task.Points)
}

func TestAssignAndCompleteFlow(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, 2, time.Now().Add(24*time.Hour))
	taskPath := "/api/tasks/" + task.ID.Hex()

	rec := env.do(t, http.MethodPost, taskPath+"/assign", nil, map[string]string{"User-ID": "u1"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.True(t, resp.Success)
	assert.Equal(t, "u1", resp.Task.Assignee)

	rec = env.do(t, http.MethodPost, taskPath+"/complete", nil, map[string]string{"User-ID": "u1"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeResponse(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.PointsEarned)
}

func TestAssignEndpoint_Conflicts(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, 1, time.Now().Add(24*time.Hour))
	taskPath := "/api/tasks/" + task.ID.Hex()

	rec := env.do(t, http.MethodPost, taskPath+"/assign", nil, map[string]string{"User-ID": "u1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, taskPath+"/assign", nil, map[string]string{"User-ID": "u2"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, decodeResponse(t, rec).Success)
}

func TestAssignEndpoint_UnknownTask(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/tasks/ffffffffffffffffffffffff/assign", nil, map[string]string{"User-ID": "u1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAssignEndpoint_MissingUserHeader(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, 1, time.Now().Add(24*time.Hour))

	rec := env.do(t, http.MethodPost, "/api/tasks/"+task.ID.Hex()+"/assign", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnassignEndpoint_ForbiddenForNonAssignee(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, 1, time.Now().Add(24*time.Hour))
	taskPath := "/api/tasks/" + task.ID.Hex()

	rec := env.do(t, http.MethodPost, taskPath+"/assign", nil, map[string]string{"User-ID": "u1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, taskPath+"/unassign", nil, map[string]string{"User-ID": "u2"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSweepAndLockEndpoints(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, 1, time.Now().Add(-time.Hour))

	rec := env.do(t, http.MethodPost, "/api/tasks/"+task.ID.Hex()+"/assign", nil, map[string]string{"User-ID": "u1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/internal/sweep", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeResponse(t, rec).Success)

	rec = env.do(t, http.MethodGet, "/api/tasks/"+task.ID.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, models.StatusOverdue, resp.Task.Status)
	assert.True(t, resp.Task.CanBeReassigned)

	rec = env.do(t, http.MethodGet, "/api/stages/project/project-1/locks", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var locks struct {
		Success bool   `json:"success"`
		Locked  []bool `json:"locked"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&locks))
	assert.True(t, locks.Success)
	require.Equal(t, []bool{false}, locks.Locked)
}

func TestLeaderboardEndpoint(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, 5, time.Now().Add(24*time.Hour))
	taskPath := "/api/tasks/" + task.ID.Hex()

	env.do(t, http.MethodPost, taskPath+"/assign", nil, map[string]string{"User-ID": "u1"})
	env.do(t, http.MethodPost, taskPath+"/complete", nil, map[string]string{"User-ID": "u1"})

	rec := env.do(t, http.MethodGet, "/api/leaderboard/project-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success     bool                `json:"success"`
		Leaderboard []*models.UserStats `json:"leaderboard"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Leaderboard, 1)
	assert.Equal(t, "u1", resp.Leaderboard[0].UserID)
	assert.Equal(t, 5, resp.Leaderboard[0].TotalPoints)
}
