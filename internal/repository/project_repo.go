package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/nilai-go-api/internal/models"
)

// ErrMembershipOverlap indicates an enrollment already belongs to another
// project under the same sub-criterion. Detected at commit time.
var ErrMembershipOverlap = errors.New("enrollment already belongs to another project under this sub-criterion")

// ProjectRepository defines persistence operations for project groups.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id uint) (models.Project, error)
	Update(ctx context.Context, project *models.Project, replaceMembers bool) error
	Delete(ctx context.Context, id uint) error
	ListBySubCriterion(ctx context.Context, subCriterionID uint) ([]models.Project, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Project, error)
}

type projectRepository struct {
	db *gorm.DB
}

// NewProjectRepository instantiates a GORM-backed project repository.
func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{db: db}
}

func (r *projectRepository) Create(ctx context.Context, project *models.Project) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := assertMembersExclusive(tx, project.SubCriterionID, 0, project.MemberIDs()); err != nil {
			return err
		}
		return tx.Create(project).Error
	})
}

func (r *projectRepository) GetByID(ctx context.Context, id uint) (models.Project, error) {
	var project models.Project
	if err := r.db.WithContext(ctx).
		Preload("Members").
		First(&project, id).Error; err != nil {
		return models.Project{}, err
	}

	return project, nil
}

// Update saves the project row and, when replaceMembers is set, swaps the
// member set. Membership exclusivity is re-checked inside the same
// transaction so an overlap introduced concurrently surfaces as
// ErrMembershipOverlap instead of committing.
func (r *projectRepository) Update(ctx context.Context, project *models.Project, replaceMembers bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if replaceMembers {
			if err := assertMembersExclusive(tx, project.SubCriterionID, project.ID, project.MemberIDs()); err != nil {
				return err
			}
			if err := tx.Where("project_id = ?", project.ID).Delete(&models.ProjectMember{}).Error; err != nil {
				return err
			}
		}

		return tx.Session(&gorm.Session{FullSaveAssociations: replaceMembers}).Save(project).Error
	})
}

func (r *projectRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", id).Delete(&models.ProjectMember{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Project{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *projectRepository) ListBySubCriterion(ctx context.Context, subCriterionID uint) ([]models.Project, error) {
	var projects []models.Project
	if err := r.db.WithContext(ctx).
		Preload("Members").
		Where("sub_criterion_id = ?", subCriterionID).
		Order("id ASC").
		Find(&projects).Error; err != nil {
		return nil, err
	}

	return projects, nil
}

func (r *projectRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Project, error) {
	var projects []models.Project
	if err := r.db.WithContext(ctx).
		Preload("Members").
		Where("course_id = ?", courseID).
		Order("id ASC").
		Find(&projects).Error; err != nil {
		return nil, err
	}

	return projects, nil
}

func assertMembersExclusive(tx *gorm.DB, subCriterionID, excludeProjectID uint, memberIDs []uint) error {
	if len(memberIDs) == 0 {
		return nil
	}

	query := tx.Model(&models.ProjectMember{}).
		Joins("JOIN projects ON projects.id = project_members.project_id").
		Where("projects.sub_criterion_id = ?", subCriterionID).
		Where("project_members.enrollment_id IN ?", memberIDs)
	if excludeProjectID != 0 {
		query = query.Where("project_members.project_id <> ?", excludeProjectID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrMembershipOverlap
	}

	return nil
}
