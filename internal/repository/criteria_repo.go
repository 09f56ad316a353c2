package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/nilai-go-api/internal/models"
)

// SettingsUpdate carries a per-criterion visibility/editability change.
// Nil pointers leave the corresponding flag untouched.
type SettingsUpdate struct {
	Kind     models.CriterionKind
	ID       uint
	Visible  *bool
	Editable *bool
}

// CriteriaRepository defines persistence operations for the criteria hierarchy.
type CriteriaRepository interface {
	GetHierarchy(ctx context.Context, courseID string) ([]models.CriterionGroup, error)
	GetGroup(ctx context.Context, id uint) (models.CriterionGroup, error)
	CreateGroup(ctx context.Context, group *models.CriterionGroup) error
	CreateSubCriterion(ctx context.Context, criterion *models.SubCriterion) error
	CreateSpecialCriterion(ctx context.Context, criterion *models.SpecialCriterion) error
	GetSubCriterion(ctx context.Context, id uint) (models.SubCriterion, error)
	GetSpecialCriterion(ctx context.Context, id uint) (models.SpecialCriterion, error)
	ApplySettings(ctx context.Context, updates []SettingsUpdate) error
}

type criteriaRepository struct {
	db *gorm.DB
}

// NewCriteriaRepository instantiates a GORM-backed criteria repository.
func NewCriteriaRepository(db *gorm.DB) CriteriaRepository {
	return &criteriaRepository{db: db}
}

func (r *criteriaRepository) GetHierarchy(ctx context.Context, courseID string) ([]models.CriterionGroup, error) {
	var groups []models.CriterionGroup
	if err := r.db.WithContext(ctx).
		Preload("SubCriteria", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("id ASC")
		}).
		Preload("SpecialCriteria", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("id ASC")
		}).
		Where("course_id = ?", courseID).
		Order("position ASC, id ASC").
		Find(&groups).Error; err != nil {
		return nil, err
	}

	return groups, nil
}

func (r *criteriaRepository) GetGroup(ctx context.Context, id uint) (models.CriterionGroup, error) {
	var group models.CriterionGroup
	if err := r.db.WithContext(ctx).
		Preload("SubCriteria").
		Preload("SpecialCriteria").
		First(&group, id).Error; err != nil {
		return models.CriterionGroup{}, err
	}

	return group, nil
}

func (r *criteriaRepository) CreateGroup(ctx context.Context, group *models.CriterionGroup) error {
	return r.db.WithContext(ctx).Create(group).Error
}

func (r *criteriaRepository) CreateSubCriterion(ctx context.Context, criterion *models.SubCriterion) error {
	return r.db.WithContext(ctx).Create(criterion).Error
}

func (r *criteriaRepository) CreateSpecialCriterion(ctx context.Context, criterion *models.SpecialCriterion) error {
	return r.db.WithContext(ctx).Create(criterion).Error
}

func (r *criteriaRepository) GetSubCriterion(ctx context.Context, id uint) (models.SubCriterion, error) {
	var criterion models.SubCriterion
	if err := r.db.WithContext(ctx).First(&criterion, id).Error; err != nil {
		return models.SubCriterion{}, err
	}

	return criterion, nil
}

func (r *criteriaRepository) GetSpecialCriterion(ctx context.Context, id uint) (models.SpecialCriterion, error) {
	var criterion models.SpecialCriterion
	if err := r.db.WithContext(ctx).First(&criterion, id).Error; err != nil {
		return models.SpecialCriterion{}, err
	}

	return criterion, nil
}

// ApplySettings persists a batch of settings changes in one transaction.
// Either every update lands or none does.
func (r *criteriaRepository) ApplySettings(ctx context.Context, updates []SettingsUpdate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, update := range updates {
			fields := map[string]interface{}{}
			if update.Visible != nil {
				fields["visible"] = *update.Visible
			}
			if update.Editable != nil {
				fields["editable"] = *update.Editable
			}
			if len(fields) == 0 {
				continue
			}

			var result *gorm.DB
			switch update.Kind {
			case models.CriterionKindSub:
				result = tx.Model(&models.SubCriterion{}).Where("id = ?", update.ID).Updates(fields)
			case models.CriterionKindSpecial:
				result = tx.Model(&models.SpecialCriterion{}).Where("id = ?", update.ID).Updates(fields)
			default:
				return gorm.ErrRecordNotFound
			}

			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return gorm.ErrRecordNotFound
			}
		}

		return nil
	})
}
