package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/nilai-go-api/internal/models"
)

// ScoreRepository persists manually entered criterion scores.
type ScoreRepository interface {
	Upsert(ctx context.Context, score *models.CriterionScore) error
	Get(ctx context.Context, enrollmentID uint, kind models.CriterionKind, criterionID uint) (models.CriterionScore, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.CriterionScore, error)
}

type scoreRepository struct {
	db *gorm.DB
}

// NewScoreRepository instantiates a GORM-backed score repository.
func NewScoreRepository(db *gorm.DB) ScoreRepository {
	return &scoreRepository{db: db}
}

func (r *scoreRepository) Upsert(ctx context.Context, score *models.CriterionScore) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "enrollment_id"}, {Name: "criterion_kind"}, {Name: "criterion_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"points", "graded_by", "updated_at"}),
		}).
		Create(score).Error
}

func (r *scoreRepository) Get(ctx context.Context, enrollmentID uint, kind models.CriterionKind, criterionID uint) (models.CriterionScore, error) {
	var score models.CriterionScore
	if err := r.db.WithContext(ctx).
		Where("enrollment_id = ? AND criterion_kind = ? AND criterion_id = ?", enrollmentID, kind, criterionID).
		First(&score).Error; err != nil {
		return models.CriterionScore{}, err
	}

	return score, nil
}

func (r *scoreRepository) ListByCourse(ctx context.Context, courseID string) ([]models.CriterionScore, error) {
	var scores []models.CriterionScore
	if err := r.db.WithContext(ctx).
		Joins("JOIN enrollments ON enrollments.id = criterion_scores.enrollment_id").
		Where("enrollments.course_id = ?", courseID).
		Find(&scores).Error; err != nil {
		return nil, err
	}

	return scores, nil
}
