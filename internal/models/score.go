package models

import "time"

// CriterionScore stores a manually entered score for a criterion. Task- and
// project-derived scores are never written here; they are recomputed from
// task grades and project membership on every read.
type CriterionScore struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	EnrollmentID  uint          `gorm:"not null;uniqueIndex:idx_criterion_score_unique" json:"enrollment_id"`
	CriterionKind CriterionKind `gorm:"size:16;not null;uniqueIndex:idx_criterion_score_unique" json:"criterion_kind"`
	CriterionID   uint          `gorm:"not null;uniqueIndex:idx_criterion_score_unique" json:"criterion_id"`
	Points        float64       `gorm:"not null" json:"points"`
	GradedBy      *uint         `json:"graded_by"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
