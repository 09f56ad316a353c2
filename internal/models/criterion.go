package models

import "time"

// ScoreSource identifies where a criterion's score comes from. Exactly one
// source applies to a criterion, which makes the "tasks and projects at the
// same time" state unrepresentable.
type ScoreSource string

const (
	// ScoreSourceManual means the score is entered directly per enrollment.
	ScoreSourceManual ScoreSource = "manual"
	// ScoreSourceTasks means the score is a weighted average of task grades.
	ScoreSourceTasks ScoreSource = "tasks"
	// ScoreSourceProjects means the score is shared by a registered project group.
	ScoreSourceProjects ScoreSource = "projects"
)

// Valid reports whether the source is one of the known values.
func (s ScoreSource) Valid() bool {
	switch s {
	case ScoreSourceManual, ScoreSourceTasks, ScoreSourceProjects:
		return true
	}
	return false
}

// CriterionGroup is a top-level weighted bucket of a course's grading scheme.
// Group weights normally partition 100 points but the engine never enforces
// that; per-group capping keeps misconfiguration from leaking into totals.
type CriterionGroup struct {
	ID              uint               `gorm:"primaryKey" json:"id"`
	CourseID        string             `gorm:"size:64;not null;index" json:"course_id"`
	Name            string             `gorm:"size:255;not null" json:"name"`
	Weight          float64            `gorm:"not null" json:"weight"`
	Position        int                `gorm:"not null;default:0" json:"position"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	SubCriteria     []SubCriterion     `gorm:"foreignKey:GroupID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"sub_criteria"`
	SpecialCriteria []SpecialCriterion `gorm:"foreignKey:GroupID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"special_criteria"`
}

// SubCriterion is a percentage-bounded slice of its group's weight. The
// registration window fields only matter when Source is "projects".
type SubCriterion struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	GroupID    uint        `gorm:"not null;index" json:"group_id"`
	Name       string      `gorm:"size:255;not null" json:"name"`
	Percentage float64     `gorm:"not null" json:"percentage"`
	Source     ScoreSource `gorm:"size:16;not null;default:manual" json:"source"`
	Visible    bool        `gorm:"not null;default:true" json:"visible"`
	Editable   bool        `gorm:"not null;default:false" json:"editable"`

	RegistrationOpen  bool       `gorm:"not null;default:false" json:"registration_open"`
	RegistrationStart *time.Time `json:"registration_start"`
	RegistrationEnd   *time.Time `json:"registration_end"`
	MaxMembers        *int       `json:"max_members"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasTasks reports whether the score is derived from task grades.
func (s SubCriterion) HasTasks() bool { return s.Source == ScoreSourceTasks }

// HasProjects reports whether the score is derived from project membership.
func (s SubCriterion) HasProjects() bool { return s.Source == ScoreSourceProjects }

// ManuallyEditable reports whether a direct score write is permitted.
func (s SubCriterion) ManuallyEditable() bool {
	return s.Source == ScoreSourceManual && s.Editable
}

// RegistrationOpenAt reports whether project self-registration is open at the
// given instant. Unset bounds do not constrain.
func (s SubCriterion) RegistrationOpenAt(at time.Time) bool {
	if !s.RegistrationOpen {
		return false
	}
	if s.RegistrationStart != nil && at.Before(*s.RegistrationStart) {
		return false
	}
	if s.RegistrationEnd != nil && at.After(*s.RegistrationEnd) {
		return false
	}
	return true
}

// SpecialCriterion is an additive bonus slice of a group. Its percentage is
// never counted toward the group's partition; the group cap absorbs overflow.
// Bonus criteria may be manual or task-derived, never project-derived.
type SpecialCriterion struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	GroupID    uint        `gorm:"not null;index" json:"group_id"`
	Name       string      `gorm:"size:255;not null" json:"name"`
	Percentage float64     `gorm:"not null" json:"percentage"`
	Source     ScoreSource `gorm:"size:16;not null;default:manual" json:"source"`
	Visible    bool        `gorm:"not null;default:true" json:"visible"`
	Editable   bool        `gorm:"not null;default:false" json:"editable"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// HasTasks reports whether the bonus score is derived from task grades.
func (s SpecialCriterion) HasTasks() bool { return s.Source == ScoreSourceTasks }

// ManuallyEditable reports whether a direct score write is permitted.
func (s SpecialCriterion) ManuallyEditable() bool {
	return s.Source == ScoreSourceManual && s.Editable
}

// CriterionKind distinguishes the two criterion tables when a score or task
// needs to reference either.
type CriterionKind string

const (
	// CriterionKindSub references a SubCriterion.
	CriterionKindSub CriterionKind = "sub"
	// CriterionKindSpecial references a SpecialCriterion.
	CriterionKindSpecial CriterionKind = "special"
)

// Valid reports whether the kind is one of the known values.
func (k CriterionKind) Valid() bool {
	return k == CriterionKindSub || k == CriterionKindSpecial
}
