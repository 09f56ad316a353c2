package dto

import (
	"fmt"

	"github.com/noah-isme/nilai-go-api/internal/models"
)

// ScoreKey identifies a criterion inside a gradesheet row's score map.
// Format: "sub:12" or "special:3".
func ScoreKey(kind models.CriterionKind, id uint) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

// GradesheetRow holds the computed scores of one enrollment. A nil value
// means "ungraded" (no data yet), which is distinct from a true zero.
type GradesheetRow struct {
	EnrollmentID uint                `json:"enrollment_id"`
	StudentRef   string              `json:"student_ref"`
	Scores       map[string]*float64 `json:"scores"`
	GroupGrades  map[uint]*float64   `json:"group_grades"`
	FinalGrade   *float64            `json:"final_grade"`
}

// GradesheetResponse is the full per-course computed view: the criteria
// structure plus one row per enrollment.
type GradesheetResponse struct {
	CourseID  string                   `json:"course_id"`
	Structure []CriterionGroupResponse `json:"structure"`
	Rows      []GradesheetRow          `json:"rows"`
}

// ManualScoreRequest writes a manually entered score to one criterion cell.
type ManualScoreRequest struct {
	EnrollmentID  uint                 `json:"enrollment_id" validate:"required,gt=0"`
	CriterionKind models.CriterionKind `json:"criterion_kind" validate:"required,oneof=sub special"`
	CriterionID   uint                 `json:"criterion_id" validate:"required,gt=0"`
	Value         float64              `json:"value"`
}

// ManualScoreResponse echoes the stored cell after a write.
type ManualScoreResponse struct {
	EnrollmentID  uint                 `json:"enrollment_id"`
	CriterionKind models.CriterionKind `json:"criterion_kind"`
	CriterionID   uint                 `json:"criterion_id"`
	Value         float64              `json:"value"`
}
