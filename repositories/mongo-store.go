package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"projectpulse/microservices/taskpool-service/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store on MongoDB. Status changes use UpdateOne with
// the expected status in the filter, so a lost race shows up as a zero
// MatchedCount instead of a silent overwrite. Multi-record commits run inside
// a session transaction.
type MongoStore struct {
	client *mongo.Client
	tasks  *mongo.Collection
	stages *mongo.Collection
	stats  *mongo.Collection
}

func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	db := client.Database(dbName)
	return &MongoStore{
		client: client,
		tasks:  db.Collection("tasks"),
		stages: db.Collection("stages"),
		stats:  db.Collection("user_stats"),
	}
}

// EnsureIndexes creates the indexes the engine queries against, most
// importantly the (status, softDeadline) index the sweeper pages over.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.tasks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "softDeadline", Value: 1}}},
		{Keys: bson.D{{Key: "stageId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create task indexes: %v", err)
	}
	_, err = s.stages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "projectId", Value: 1}, {Key: "order", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create stage index: %v", err)
	}
	_, err = s.stats.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "projectId", Value: 1}, {Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create stats index: %v", err)
	}
	return nil
}

func (s *MongoStore) Tasks() TaskRepository   { return &mongoTaskRepo{coll: s.tasks} }
func (s *MongoStore) Stages() StageRepository { return &mongoStageRepo{coll: s.stages} }
func (s *MongoStore) Stats() StatsRepository  { return &mongoStatsRepo{coll: s.stats} }

func (s *MongoStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %v", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func taskObjectID(taskID string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(taskID)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("invalid task ID format %q: %w", taskID, models.ErrNotFound)
	}
	return oid, nil
}

type mongoTaskRepo struct {
	coll *mongo.Collection
}

func (r *mongoTaskRepo) Insert(ctx context.Context, task *models.Task) error {
	if task.ID.IsZero() {
		task.ID = primitive.NewObjectID()
	}
	_, err := r.coll.InsertOne(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to insert task: %v", err)
	}
	return nil
}

func (r *mongoTaskRepo) GetByID(ctx context.Context, taskID string) (*models.Task, error) {
	oid, err := taskObjectID(taskID)
	if err != nil {
		return nil, err
	}
	var task models.Task
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&task); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch task: %v", err)
	}
	return &task, nil
}

func (r *mongoTaskRepo) ListByStage(ctx context.Context, stageID string) ([]*models.Task, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"stageId": stageID})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks for stage %s: %v", stageID, err)
	}
	defer cursor.Close(ctx)

	var tasks []*models.Task
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %v", err)
	}
	return tasks, nil
}

func (r *mongoTaskRepo) UpdateIfStatus(ctx context.Context, taskID string, expected models.TaskStatus, fields map[string]interface{}) error {
	oid, err := taskObjectID(taskID)
	if err != nil {
		return err
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid, "status": expected}, bson.M{"$set": bson.M(fields)})
	if err != nil {
		return fmt.Errorf("failed to update task: %v", err)
	}
	if res.MatchedCount == 0 {
		// Zero matches means the task is gone or its status moved.
		err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Err()
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to re-check task: %v", err)
		}
		return fmt.Errorf("task %s: %w", taskID, models.ErrConflict)
	}
	return nil
}

func (r *mongoTaskRepo) Delete(ctx context.Context, taskID string) error {
	oid, err := taskObjectID(taskID)
	if err != nil {
		return err
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to delete task: %v", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
	}
	return nil
}

func (r *mongoTaskRepo) FindDuePage(ctx context.Context, now time.Time, afterID string, limit int) ([]*models.Task, error) {
	filter := bson.M{
		"status":       models.StatusAssigned,
		"softDeadline": bson.M{"$lt": now},
	}
	if afterID != "" {
		oid, err := taskObjectID(afterID)
		if err != nil {
			return nil, err
		}
		filter["_id"] = bson.M{"$gt": oid}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query due tasks: %v", err)
	}
	defer cursor.Close(ctx)

	var tasks []*models.Task
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode due tasks: %v", err)
	}
	return tasks, nil
}

type mongoStageRepo struct {
	coll *mongo.Collection
}

func (r *mongoStageRepo) Insert(ctx context.Context, stage *models.Stage) error {
	if stage.ID.IsZero() {
		stage.ID = primitive.NewObjectID()
	}
	_, err := r.coll.InsertOne(ctx, stage)
	if err != nil {
		return fmt.Errorf("failed to insert stage: %v", err)
	}
	return nil
}

func (r *mongoStageRepo) GetByID(ctx context.Context, stageID string) (*models.Stage, error) {
	oid, err := primitive.ObjectIDFromHex(stageID)
	if err != nil {
		return nil, fmt.Errorf("invalid stage ID format %q: %w", stageID, models.ErrNotFound)
	}
	var stage models.Stage
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&stage); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("stage %s: %w", stageID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch stage: %v", err)
	}
	return &stage, nil
}

func (r *mongoStageRepo) ListByProject(ctx context.Context, projectID string) ([]*models.Stage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "order", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{"projectId": projectID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages for project %s: %v", projectID, err)
	}
	defer cursor.Close(ctx)

	var stages []*models.Stage
	if err := cursor.All(ctx, &stages); err != nil {
		return nil, fmt.Errorf("failed to decode stages: %v", err)
	}
	return stages, nil
}

func (r *mongoStageRepo) IncrementCounters(ctx context.Context, stageID string, totalDelta, completedDelta int) error {
	oid, err := primitive.ObjectIDFromHex(stageID)
	if err != nil {
		return fmt.Errorf("invalid stage ID format %q: %w", stageID, models.ErrNotFound)
	}
	// The filter keeps 0 <= tasksCompleted <= totalTasks true after the
	// increment; a violating update matches nothing.
	filter := bson.M{
		"_id": oid,
		"$expr": bson.M{"$and": bson.A{
			bson.M{"$gte": bson.A{bson.M{"$add": bson.A{"$totalTasks", totalDelta}}, 0}},
			bson.M{"$gte": bson.A{bson.M{"$add": bson.A{"$tasksCompleted", completedDelta}}, 0}},
			bson.M{"$lte": bson.A{
				bson.M{"$add": bson.A{"$tasksCompleted", completedDelta}},
				bson.M{"$add": bson.A{"$totalTasks", totalDelta}},
			}},
		}},
	}
	update := bson.M{"$inc": bson.M{"totalTasks": totalDelta, "tasksCompleted": completedDelta}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update stage counters: %v", err)
	}
	if res.MatchedCount == 0 {
		err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Err()
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("stage %s: %w", stageID, models.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to re-check stage: %v", err)
		}
		return fmt.Errorf("stage %s counter update out of bounds: %w", stageID, models.ErrConflict)
	}
	return nil
}

type mongoStatsRepo struct {
	coll *mongo.Collection
}

func (r *mongoStatsRepo) Get(ctx context.Context, projectID, userID string) (*models.UserStats, error) {
	var stats models.UserStats
	err := r.coll.FindOne(ctx, bson.M{"projectId": projectID, "userId": userID}).Decode(&stats)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("stats for user %s in project %s: %w", userID, projectID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch user stats: %v", err)
	}
	return &stats, nil
}

func (r *mongoStatsRepo) Save(ctx context.Context, stats *models.UserStats) error {
	filter := bson.M{"projectId": stats.ProjectID, "userId": stats.UserID}
	update := bson.M{
		"$set": bson.M{
			"totalPoints":           stats.TotalPoints,
			"tasksCompleted":        stats.TasksCompleted,
			"tasksAssigned":         stats.TasksAssigned,
			"averageCompletionTime": stats.AverageCompletionTime,
			"streak":                stats.Streak,
		},
		"$setOnInsert": bson.M{
			"projectId": stats.ProjectID,
			"userId":    stats.UserID,
			"createdAt": stats.CreatedAt,
		},
	}
	_, err := r.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save user stats: %v", err)
	}
	return nil
}

func (r *mongoStatsRepo) ListByProject(ctx context.Context, projectID string) ([]*models.UserStats, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{"projectId": projectID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list stats for project %s: %v", projectID, err)
	}
	defer cursor.Close(ctx)

	var stats []*models.UserStats
	if err := cursor.All(ctx, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode user stats: %v", err)
	}
	return stats, nil
}
