package models

import "time"

// Project is a registered group of enrollments sharing one score under a
// project-sourced sub-criterion. The score lives here and only here; member
// grades are looked up through membership at read time, never denormalized
// per enrollment.
type Project struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	CourseID       string          `gorm:"size:64;not null;index" json:"course_id"`
	SubCriterionID uint            `gorm:"not null;index" json:"sub_criterion_id"`
	Name           string          `gorm:"size:255;not null" json:"name"`
	Description    string          `gorm:"type:text" json:"description"`
	LeaderID       *uint           `json:"leader_id"`
	Score          *float64        `json:"score"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Members        []ProjectMember `gorm:"foreignKey:ProjectID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"members"`
}

// ProjectMember binds an enrollment to a project. An enrollment belongs to at
// most one project per sub-criterion; that exclusivity is enforced inside the
// commit transaction, not by this table alone.
type ProjectMember struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ProjectID    uint      `gorm:"not null;uniqueIndex:idx_project_member_unique" json:"project_id"`
	EnrollmentID uint      `gorm:"not null;uniqueIndex:idx_project_member_unique" json:"enrollment_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasMember reports whether the enrollment belongs to the project.
func (p Project) HasMember(enrollmentID uint) bool {
	for _, member := range p.Members {
		if member.EnrollmentID == enrollmentID {
			return true
		}
	}
	return false
}

// MemberIDs returns the enrollment ids of all members.
func (p Project) MemberIDs() []uint {
	ids := make([]uint, 0, len(p.Members))
	for _, member := range p.Members {
		ids = append(ids, member.EnrollmentID)
	}
	return ids
}
