package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TaskStatus string

const (
	StatusAvailable TaskStatus = "available"
	StatusAssigned  TaskStatus = "assigned"
	StatusCompleted TaskStatus = "completed"
	StatusOverdue   TaskStatus = "overdue"
)

type Task struct {
	ID                   primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ProjectID            string             `json:"projectId" bson:"projectId"`
	StageID              string             `json:"stageId" bson:"stageId"`
	Title                string             `json:"title" bson:"title"`
	Description          string             `json:"description" bson:"description"`
	Status               TaskStatus         `json:"status" bson:"status"`
	Assignee             string             `json:"assignee" bson:"assignee"`
	Points               int                `json:"points" bson:"points"`
	CompletionPercentage int                `json:"completionPercentage" bson:"completionPercentage"`
	SoftDeadline         time.Time          `json:"softDeadline" bson:"softDeadline"`
	HardDeadline         time.Time          `json:"hardDeadline" bson:"hardDeadline"`
	AssignedAt           *time.Time         `json:"assignedAt,omitempty" bson:"assignedAt,omitempty"`
	CompletedAt          *time.Time         `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	CanBeReassigned      bool               `json:"canBeReassigned" bson:"canBeReassigned"`
}

// PastSoftDeadline reports whether the task's soft deadline has passed. An
// assigned task past its soft deadline is eligible for reassignment even
// before a sweep has flipped it to overdue.
func (t *Task) PastSoftDeadline(now time.Time) bool {
	return now.After(t.SoftDeadline)
}
