package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/nilai-go-api/internal/models"
)

// TaskRepository defines persistence operations for tasks and task scores.
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id uint) (models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, id uint) error
	ListByOwner(ctx context.Context, kind models.CriterionKind, ownerID uint) ([]models.Task, error)
	ListByOwners(ctx context.Context, kind models.CriterionKind, ownerIDs []uint) ([]models.Task, error)
	HasScores(ctx context.Context, taskID uint) (bool, error)
	UpsertScore(ctx context.Context, score *models.TaskScore) error
	UpsertScores(ctx context.Context, scores []models.TaskScore) (int, error)
	ListScoresByTasks(ctx context.Context, taskIDs []uint) ([]models.TaskScore, error)
}

type taskRepository struct {
	db *gorm.DB
}

// NewTaskRepository instantiates a GORM-backed task repository.
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) Create(ctx context.Context, task *models.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *taskRepository) GetByID(ctx context.Context, id uint) (models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return models.Task{}, err
	}

	return task, nil
}

func (r *taskRepository) Update(ctx context.Context, task *models.Task) error {
	return r.db.WithContext(ctx).Save(task).Error
}

func (r *taskRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", id).Delete(&models.TaskScore{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Task{}, id).Error
	})
}

func (r *taskRepository) ListByOwner(ctx context.Context, kind models.CriterionKind, ownerID uint) ([]models.Task, error) {
	var tasks []models.Task
	if err := r.db.WithContext(ctx).
		Where("owner_kind = ? AND owner_id = ?", kind, ownerID).
		Order("id ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}

	return tasks, nil
}

func (r *taskRepository) ListByOwners(ctx context.Context, kind models.CriterionKind, ownerIDs []uint) ([]models.Task, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}

	var tasks []models.Task
	if err := r.db.WithContext(ctx).
		Where("owner_kind = ? AND owner_id IN ?", kind, ownerIDs).
		Order("id ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}

	return tasks, nil
}

func (r *taskRepository) HasScores(ctx context.Context, taskID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.TaskScore{}).
		Where("task_id = ?", taskID).
		Count(&count).Error; err != nil {
		return false, err
	}

	return count > 0, nil
}

func (r *taskRepository) UpsertScore(ctx context.Context, score *models.TaskScore) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "enrollment_id"}, {Name: "task_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"letter", "fraction", "graded_by", "updated_at"}),
		}).
		Create(score).Error
}

// UpsertScores writes the batch inside one transaction. When the caller's
// context is cancelled between rows, the rows already written are committed
// and the count of applied rows is returned with the context error; each row
// write is independently valid. The transaction runs on a detached context so
// that the commit survives the cancellation.
func (r *taskRepository) UpsertScores(ctx context.Context, scores []models.TaskScore) (int, error) {
	applied := 0
	var cancelErr error

	err := r.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		for i := range scores {
			if err := ctx.Err(); err != nil {
				cancelErr = err
				return nil
			}

			if err := tx.
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "enrollment_id"}, {Name: "task_id"}},
					DoUpdates: clause.AssignmentColumns([]string{"letter", "fraction", "graded_by", "updated_at"}),
				}).
				Create(&scores[i]).Error; err != nil {
				return err
			}
			applied++
		}

		return nil
	})
	if err != nil {
		// The transaction rolled back; nothing was applied.
		return 0, err
	}

	return applied, cancelErr
}

func (r *taskRepository) ListScoresByTasks(ctx context.Context, taskIDs []uint) ([]models.TaskScore, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}

	var scores []models.TaskScore
	if err := r.db.WithContext(ctx).
		Where("task_id IN ?", taskIDs).
		Find(&scores).Error; err != nil {
		return nil, err
	}

	return scores, nil
}
