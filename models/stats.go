package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserStats holds one user's aggregated performance inside one project.
// Created lazily on first assignment or completion.
type UserStats struct {
	ID                    primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ProjectID             string             `json:"projectId" bson:"projectId"`
	UserID                string             `json:"userId" bson:"userId"`
	TotalPoints           int                `json:"totalPoints" bson:"totalPoints"`
	TasksCompleted        int                `json:"tasksCompleted" bson:"tasksCompleted"`
	TasksAssigned         int                `json:"tasksAssigned" bson:"tasksAssigned"`
	AverageCompletionTime float64            `json:"averageCompletionTime" bson:"averageCompletionTime"`
	Streak                int                `json:"streak" bson:"streak"`
	CreatedAt             time.Time          `json:"createdAt" bson:"createdAt"`
}

// RecordCompletion folds one completed task into the aggregates using the
// running-mean recurrence: avg' = (avg*(n-1) + hours) / n.
func (s *UserStats) RecordCompletion(points int, hours float64) {
	s.TasksCompleted++
	n := float64(s.TasksCompleted)
	s.AverageCompletionTime = (s.AverageCompletionTime*(n-1) + hours) / n
	s.TotalPoints += points
	s.Streak++
}
