package models

import "time"

// Enrollment registers a student to a course section. The engine treats the
// student reference as opaque; identity resolution belongs to the caller.
type Enrollment struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CourseID   string    `gorm:"size:64;not null;index" json:"course_id"`
	StudentRef string    `gorm:"size:128;not null" json:"student_ref"`
	Active     bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
