package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Stage is one ordered step of a project. TotalTasks and TasksCompleted are
// denormalized counters maintained by every task mutation, not recomputed
// from the tasks collection on read.
type Stage struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ProjectID      string             `json:"projectId" bson:"projectId"`
	Name           string             `json:"name" bson:"name"`
	Order          int                `json:"order" bson:"order"`
	TotalTasks     int                `json:"totalTasks" bson:"totalTasks"`
	TasksCompleted int                `json:"tasksCompleted" bson:"tasksCompleted"`
}
