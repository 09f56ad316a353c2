package models

import (
	"fmt"
	"time"
)

// Task is a gradeable unit owned by exactly one sub- or special criterion.
// Weight is relative importance within the owning criterion; IsPublic only
// affects presentation and never excludes a task from the weighted average.
type Task struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	OwnerKind CriterionKind `gorm:"size:16;not null;index:idx_task_owner" json:"owner_kind"`
	OwnerID   uint          `gorm:"not null;index:idx_task_owner" json:"owner_id"`
	Name      string        `gorm:"size:255;not null" json:"name"`
	Weight    int           `gorm:"not null;default:1" json:"weight"`
	IsPublic  bool          `gorm:"not null;default:true" json:"is_public"`
	IsLocked  bool          `gorm:"not null;default:false" json:"is_locked"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// TaskLetter is the discrete grade assigned to a task. Free-form numeric task
// scores are not permitted; the letter scale is the single canonical one and
// any other presentation scale multiplies the fraction at display time.
type TaskLetter string

const (
	TaskLetterA TaskLetter = "A"
	TaskLetterB TaskLetter = "B"
	TaskLetterC TaskLetter = "C"
	TaskLetterD TaskLetter = "D"
	TaskLetterE TaskLetter = "E"
)

var letterFractions = map[TaskLetter]float64{
	TaskLetterA: 1.0,
	TaskLetterB: 0.75,
	TaskLetterC: 0.5,
	TaskLetterD: 0.25,
	TaskLetterE: 0.0,
}

// Fraction converts the letter to its score fraction.
func (l TaskLetter) Fraction() (float64, error) {
	fraction, ok := letterFractions[l]
	if !ok {
		return 0, fmt.Errorf("unknown task letter %q", l)
	}
	return fraction, nil
}

// Valid reports whether the letter belongs to the A..E scale.
func (l TaskLetter) Valid() bool {
	_, ok := letterFractions[l]
	return ok
}

// TaskScore stores the letter grade an enrollment received for a task. The
// fraction is persisted alongside the letter so aggregation never re-parses.
type TaskScore struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	EnrollmentID uint       `gorm:"not null;uniqueIndex:idx_task_score_unique" json:"enrollment_id"`
	TaskID       uint       `gorm:"not null;uniqueIndex:idx_task_score_unique" json:"task_id"`
	Letter       TaskLetter `gorm:"size:4;not null" json:"letter"`
	Fraction     float64    `gorm:"not null" json:"fraction"`
	GradedBy     *uint      `json:"graded_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
