package dto

import (
	"time"

	"github.com/noah-isme/nilai-go-api/internal/models"
)

// ProjectCreateRequest describes the payload for registering a project group.
type ProjectCreateRequest struct {
	CourseID       string `json:"course_id" validate:"required"`
	SubCriterionID uint   `json:"sub_criterion_id" validate:"required,gt=0"`
	Name           string `json:"name" validate:"required,min=1,max=255"`
	Description    string `json:"description"`
	Members        []uint `json:"members" validate:"required,min=1,unique,dive,gt=0"`
	LeaderID       *uint  `json:"leader_id" validate:"omitempty,gt=0"`
}

// ProjectUpdateRequest mutates a project. Nil fields are left untouched;
// Members, when present, replaces the whole member set. Removing the current
// leader from the member set clears leadership instead of failing.
type ProjectUpdateRequest struct {
	Name        *string  `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string  `json:"description"`
	Members     *[]uint  `json:"members" validate:"omitempty,min=1,unique,dive,gt=0"`
	LeaderID    *uint    `json:"leader_id" validate:"omitempty,gt=0"`
	Score       *float64 `json:"score" validate:"omitempty,gte=0"`
}

// ProjectResponse serializes a project group with its shared score.
type ProjectResponse struct {
	ID             uint      `json:"id"`
	CourseID       string    `json:"course_id"`
	SubCriterionID uint      `json:"sub_criterion_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	LeaderID       *uint     `json:"leader_id"`
	Score          *float64  `json:"score"`
	Members        []uint    `json:"members"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewProjectResponse converts a Project model into a DTO.
func NewProjectResponse(model models.Project) ProjectResponse {
	return ProjectResponse{
		ID:             model.ID,
		CourseID:       model.CourseID,
		SubCriterionID: model.SubCriterionID,
		Name:           model.Name,
		Description:    model.Description,
		LeaderID:       model.LeaderID,
		Score:          model.Score,
		Members:        model.MemberIDs(),
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}
}

// NewProjectResponseSlice converts a list of projects into DTOs.
func NewProjectResponseSlice(projects []models.Project) []ProjectResponse {
	responses := make([]ProjectResponse, 0, len(projects))
	for _, project := range projects {
		responses = append(responses, NewProjectResponse(project))
	}
	return responses
}
