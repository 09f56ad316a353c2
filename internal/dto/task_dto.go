package dto

import (
	"time"

	"github.com/noah-isme/nilai-go-api/internal/models"
)

// TaskCreateRequest describes the payload for creating a task under a
// criterion. The owner is fixed at creation.
type TaskCreateRequest struct {
	OwnerKind models.CriterionKind `json:"owner_kind" validate:"required,oneof=sub special"`
	OwnerID   uint                 `json:"owner_id" validate:"required,gt=0"`
	Name      string               `json:"name" validate:"required,min=1,max=255"`
	Weight    int                  `json:"weight" validate:"required,gte=1"`
	IsPublic  *bool                `json:"is_public"`
}

// TaskUpdateRequest mutates task presentation and lock state. The owner is
// intentionally absent: reassigning a task would orphan its score history.
type TaskUpdateRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=255"`
	Weight   *int    `json:"weight" validate:"omitempty,gte=1"`
	IsPublic *bool   `json:"is_public"`
	IsLocked *bool   `json:"is_locked"`
}

// GradeTaskRequest assigns a letter grade to one enrollment for a task.
type GradeTaskRequest struct {
	EnrollmentID uint              `json:"enrollment_id" validate:"required,gt=0"`
	Letter       models.TaskLetter `json:"letter" validate:"required,oneof=A B C D E"`
}

// BulkGradeTaskRequest applies one letter to every enrollment of the course.
type BulkGradeTaskRequest struct {
	CourseID string            `json:"course_id" validate:"required"`
	Letter   models.TaskLetter `json:"letter" validate:"required,oneof=A B C D E"`
}

// TaskResponse serializes a task.
type TaskResponse struct {
	ID        uint                 `json:"id"`
	OwnerKind models.CriterionKind `json:"owner_kind"`
	OwnerID   uint                 `json:"owner_id"`
	Name      string               `json:"name"`
	Weight    int                  `json:"weight"`
	IsPublic  bool                 `json:"is_public"`
	IsLocked  bool                 `json:"is_locked"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// TaskScoreResponse serializes a stored task grade.
type TaskScoreResponse struct {
	EnrollmentID uint              `json:"enrollment_id"`
	TaskID       uint              `json:"task_id"`
	Letter       models.TaskLetter `json:"letter"`
	Fraction     float64           `json:"fraction"`
	GradedBy     *uint             `json:"graded_by"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// BulkGradeResponse reports how many roster rows a bulk grade reached.
type BulkGradeResponse struct {
	TaskID  uint              `json:"task_id"`
	Letter  models.TaskLetter `json:"letter"`
	Applied int               `json:"applied"`
	Total   int               `json:"total"`
}

// NewTaskResponse converts a Task model into a DTO.
func NewTaskResponse(model models.Task) TaskResponse {
	return TaskResponse{
		ID:        model.ID,
		OwnerKind: model.OwnerKind,
		OwnerID:   model.OwnerID,
		Name:      model.Name,
		Weight:    model.Weight,
		IsPublic:  model.IsPublic,
		IsLocked:  model.IsLocked,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

// NewTaskScoreResponse converts a TaskScore model into a DTO.
func NewTaskScoreResponse(model models.TaskScore) TaskScoreResponse {
	return TaskScoreResponse{
		EnrollmentID: model.EnrollmentID,
		TaskID:       model.TaskID,
		Letter:       model.Letter,
		Fraction:     model.Fraction,
		GradedBy:     model.GradedBy,
		UpdatedAt:    model.UpdatedAt,
	}
}
