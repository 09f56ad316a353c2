package dto

import (
	"time"

	"github.com/noah-isme/nilai-go-api/internal/models"
)

// GroupCreateRequest describes the payload for creating a criterion group.
type GroupCreateRequest struct {
	CourseID string  `json:"course_id" validate:"required"`
	Name     string  `json:"name" validate:"required,min=1,max=255"`
	Weight   float64 `json:"weight" validate:"required,gt=0"`
	Position int     `json:"position" validate:"gte=0"`
}

// SubCriterionCreateRequest describes the payload for creating a sub-criterion.
type SubCriterionCreateRequest struct {
	Name       string             `json:"name" validate:"required,min=1,max=255"`
	Percentage float64            `json:"percentage" validate:"required,gt=0"`
	Source     models.ScoreSource `json:"source" validate:"omitempty,oneof=manual tasks projects"`

	RegistrationOpen  bool       `json:"registration_open"`
	RegistrationStart *time.Time `json:"registration_start"`
	RegistrationEnd   *time.Time `json:"registration_end"`
	MaxMembers        *int       `json:"max_members" validate:"omitempty,gt=0"`
}

// SpecialCriterionCreateRequest describes the payload for creating a bonus criterion.
type SpecialCriterionCreateRequest struct {
	Name       string             `json:"name" validate:"required,min=1,max=255"`
	Percentage float64            `json:"percentage" validate:"required,gt=0"`
	Source     models.ScoreSource `json:"source" validate:"omitempty,oneof=manual tasks"`
}

// SettingsUpdateRequest toggles visibility/editability on one criterion.
// Nil fields are left untouched.
type SettingsUpdateRequest struct {
	Visible  *bool `json:"visible"`
	Editable *bool `json:"editable"`
}

// CriterionSettingsUpdate is one entry of a bulk settings update.
type CriterionSettingsUpdate struct {
	Kind     models.CriterionKind `json:"kind" validate:"required,oneof=sub special"`
	ID       uint                 `json:"id" validate:"required,gt=0"`
	Visible  *bool                `json:"visible"`
	Editable *bool                `json:"editable"`
}

// BulkSettingsUpdateRequest applies several settings changes atomically
// within one group's scope.
type BulkSettingsUpdateRequest struct {
	Updates []CriterionSettingsUpdate `json:"updates" validate:"required,min=1,dive"`
}

// BulkToggleRequest flips one flag across all criteria of a group: if every
// targeted criterion currently has the flag set, all are cleared; otherwise
// all are set.
type BulkToggleRequest struct {
	Flag   string `json:"flag" validate:"required,oneof=visible editable"`
	Target string `json:"target" validate:"required,oneof=sub special"`
}

// SubCriterionResponse serializes a sub-criterion with its settings.
type SubCriterionResponse struct {
	ID         uint               `json:"id"`
	GroupID    uint               `json:"group_id"`
	Name       string             `json:"name"`
	Percentage float64            `json:"percentage"`
	Source     models.ScoreSource `json:"source"`
	Visible    bool               `json:"visible"`
	Editable   bool               `json:"editable"`

	RegistrationOpen  bool       `json:"registration_open"`
	RegistrationStart *time.Time `json:"registration_start,omitempty"`
	RegistrationEnd   *time.Time `json:"registration_end,omitempty"`
	MaxMembers        *int       `json:"max_members,omitempty"`
}

// SpecialCriterionResponse serializes a bonus criterion.
type SpecialCriterionResponse struct {
	ID         uint               `json:"id"`
	GroupID    uint               `json:"group_id"`
	Name       string             `json:"name"`
	Percentage float64            `json:"percentage"`
	Source     models.ScoreSource `json:"source"`
	Visible    bool               `json:"visible"`
	Editable   bool               `json:"editable"`
}

// CriterionGroupResponse serializes a group with its nested criteria.
type CriterionGroupResponse struct {
	ID              uint                       `json:"id"`
	CourseID        string                     `json:"course_id"`
	Name            string                     `json:"name"`
	Weight          float64                    `json:"weight"`
	Position        int                        `json:"position"`
	SubCriteria     []SubCriterionResponse     `json:"sub_criteria"`
	SpecialCriteria []SpecialCriterionResponse `json:"special_criteria"`
}

// PartitionReportResponse reports how the sub-criteria percentages relate to
// the group weight. Bonus criteria are excluded from the partition by design.
type PartitionReportResponse struct {
	GroupID       uint    `json:"group_id"`
	Weight        float64 `json:"weight"`
	SubTotal      float64 `json:"sub_total"`
	BonusTotal    float64 `json:"bonus_total"`
	Balanced      bool    `json:"balanced"`
	Overcommitted bool    `json:"overcommitted"`
}

// NewSubCriterionResponse converts a SubCriterion model into a DTO.
func NewSubCriterionResponse(model models.SubCriterion) SubCriterionResponse {
	return SubCriterionResponse{
		ID:                model.ID,
		GroupID:           model.GroupID,
		Name:              model.Name,
		Percentage:        model.Percentage,
		Source:            model.Source,
		Visible:           model.Visible,
		Editable:          model.Editable,
		RegistrationOpen:  model.RegistrationOpen,
		RegistrationStart: model.RegistrationStart,
		RegistrationEnd:   model.RegistrationEnd,
		MaxMembers:        model.MaxMembers,
	}
}

// NewSpecialCriterionResponse converts a SpecialCriterion model into a DTO.
func NewSpecialCriterionResponse(model models.SpecialCriterion) SpecialCriterionResponse {
	return SpecialCriterionResponse{
		ID:         model.ID,
		GroupID:    model.GroupID,
		Name:       model.Name,
		Percentage: model.Percentage,
		Source:     model.Source,
		Visible:    model.Visible,
		Editable:   model.Editable,
	}
}

// NewCriterionGroupResponse converts a CriterionGroup model into a DTO.
func NewCriterionGroupResponse(model models.CriterionGroup) CriterionGroupResponse {
	subs := make([]SubCriterionResponse, 0, len(model.SubCriteria))
	for _, sub := range model.SubCriteria {
		subs = append(subs, NewSubCriterionResponse(sub))
	}

	specials := make([]SpecialCriterionResponse, 0, len(model.SpecialCriteria))
	for _, special := range model.SpecialCriteria {
		specials = append(specials, NewSpecialCriterionResponse(special))
	}

	return CriterionGroupResponse{
		ID:              model.ID,
		CourseID:        model.CourseID,
		Name:            model.Name,
		Weight:          model.Weight,
		Position:        model.Position,
		SubCriteria:     subs,
		SpecialCriteria: specials,
	}
}

// NewCriterionGroupResponseSlice converts a hierarchy into DTOs.
func NewCriterionGroupResponseSlice(groups []models.CriterionGroup) []CriterionGroupResponse {
	responses := make([]CriterionGroupResponse, 0, len(groups))
	for _, group := range groups {
		responses = append(responses, NewCriterionGroupResponse(group))
	}
	return responses
}
