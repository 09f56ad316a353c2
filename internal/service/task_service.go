package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/nilai-go-api/internal/dto"
	"github.com/noah-isme/nilai-go-api/internal/models"
	"github.com/noah-isme/nilai-go-api/internal/repository"
)

// TaskService manages tasks and letter-grade scoring.
type TaskService interface {
	Create(ctx context.Context, payload dto.TaskCreateRequest) (dto.TaskResponse, error)
	Update(ctx context.Context, id uint, payload dto.TaskUpdateRequest) (dto.TaskResponse, error)
	Delete(ctx context.Context, id uint) error
	ListByOwner(ctx context.Context, kind models.CriterionKind, ownerID uint) ([]dto.TaskResponse, error)
	Grade(ctx context.Context, courseID string, taskID uint, payload dto.GradeTaskRequest, actor ActivityActor) (dto.TaskScoreResponse, error)
	BulkGrade(ctx context.Context, taskID uint, payload dto.BulkGradeTaskRequest, actor ActivityActor) (dto.BulkGradeResponse, error)
}

type taskService struct {
	repo        repository.TaskRepository
	criteria    repository.CriteriaRepository
	enrollments repository.EnrollmentRepository
	validator   *validator.Validate
	activity    ActivityRecorder
	events      GradeEventPublisher
	invalidator GradesheetInvalidator
	logger      zerolog.Logger
}

// NewTaskService constructs the task subsystem service.
func NewTaskService(repo repository.TaskRepository, criteria repository.CriteriaRepository, enrollments repository.EnrollmentRepository, validate *validator.Validate, activity ActivityRecorder, events GradeEventPublisher, invalidator GradesheetInvalidator, logger zerolog.Logger) TaskService {
	return &taskService{
		repo:        repo,
		criteria:    criteria,
		enrollments: enrollments,
		validator:   validate,
		activity:    activity,
		events:      events,
		invalidator: invalidator,
		logger:      logger.With().Str("component", "task_service").Logger(),
	}
}

func (s *taskService) Create(ctx context.Context, payload dto.TaskCreateRequest) (dto.TaskResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.TaskResponse{}, err
	}

	source, ownerCourse, err := s.ownerSource(ctx, payload.OwnerKind, payload.OwnerID)
	if err != nil {
		return dto.TaskResponse{}, err
	}
	if source != models.ScoreSourceTasks {
		return dto.TaskResponse{}, fmt.Errorf("%s criterion %d is %s-sourced, tasks not allowed: %w", payload.OwnerKind, payload.OwnerID, source, ErrInvalidState)
	}

	isPublic := true
	if payload.IsPublic != nil {
		isPublic = *payload.IsPublic
	}

	task := models.Task{
		OwnerKind: payload.OwnerKind,
		OwnerID:   payload.OwnerID,
		Name:      payload.Name,
		Weight:    payload.Weight,
		IsPublic:  isPublic,
	}

	if err := s.repo.Create(ctx, &task); err != nil {
		return dto.TaskResponse{}, err
	}

	// A new task widens the weighted-average denominator of its criterion,
	// so cached sheets are already out of date.
	s.invalidateCourse(ctx, ownerCourse)

	return dto.NewTaskResponse(task), nil
}

// Update mutates name, weight, visibility and lock state. The owner is fixed
// for the task's lifetime; reassigning would silently orphan score history.
func (s *taskService) Update(ctx context.Context, id uint, payload dto.TaskUpdateRequest) (dto.TaskResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.TaskResponse{}, err
	}

	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TaskResponse{}, fmt.Errorf("task %d: %w", id, ErrNotFound)
		}
		return dto.TaskResponse{}, err
	}

	if payload.Name != nil {
		task.Name = *payload.Name
	}
	if payload.Weight != nil {
		task.Weight = *payload.Weight
	}
	if payload.IsPublic != nil {
		task.IsPublic = *payload.IsPublic
	}
	if payload.IsLocked != nil {
		task.IsLocked = *payload.IsLocked
	}

	if err := s.repo.Update(ctx, &task); err != nil {
		return dto.TaskResponse{}, err
	}

	if _, ownerCourse, err := s.ownerSource(ctx, task.OwnerKind, task.OwnerID); err == nil {
		s.invalidateCourse(ctx, ownerCourse)
	}

	return dto.NewTaskResponse(task), nil
}

// Delete removes an ungraded task. Tasks with recorded letter grades are
// refused: cascading the delete would silently rewrite derived scores.
func (s *taskService) Delete(ctx context.Context, id uint) error {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("task %d: %w", id, ErrNotFound)
		}
		return err
	}

	scored, err := s.repo.HasScores(ctx, id)
	if err != nil {
		return err
	}
	if scored {
		return fmt.Errorf("task %d has recorded grades: %w", id, ErrInvalidState)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	if _, ownerCourse, err := s.ownerSource(ctx, task.OwnerKind, task.OwnerID); err == nil {
		s.invalidateCourse(ctx, ownerCourse)
	}

	return nil
}

func (s *taskService) ListByOwner(ctx context.Context, kind models.CriterionKind, ownerID uint) ([]dto.TaskResponse, error) {
	tasks, err := s.repo.ListByOwner(ctx, kind, ownerID)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		responses = append(responses, dto.NewTaskResponse(task))
	}

	return responses, nil
}

func (s *taskService) Grade(ctx context.Context, courseID string, taskID uint, payload dto.GradeTaskRequest, actor ActivityActor) (dto.TaskScoreResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/nilai-go-api/internal/service/task")
	ctx, span := tracer.Start(ctx, "task.grade")
	span.SetAttributes(
		attribute.Int64("task.id", int64(taskID)),
		attribute.Int64("task.enrollment_id", int64(payload.EnrollmentID)),
		attribute.String("task.letter", string(payload.Letter)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.TaskScoreResponse{}, err
	}

	task, fraction, err := s.gradableTask(ctx, courseID, taskID, payload.Letter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "task_not_gradable")
		return dto.TaskScoreResponse{}, err
	}

	enrollment, err := s.enrollments.GetByID(ctx, payload.EnrollmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TaskScoreResponse{}, fmt.Errorf("enrollment %d: %w", payload.EnrollmentID, ErrNotFound)
		}
		return dto.TaskScoreResponse{}, err
	}
	if enrollment.CourseID != courseID {
		return dto.TaskScoreResponse{}, fmt.Errorf("enrollment %d is not part of course %s: %w", enrollment.ID, courseID, ErrInvalidState)
	}

	gradedBy := actor.ID
	score := models.TaskScore{
		EnrollmentID: enrollment.ID,
		TaskID:       task.ID,
		Letter:       payload.Letter,
		Fraction:     fraction,
		GradedBy:     &gradedBy,
	}

	if err := s.repo.UpsertScore(ctx, &score); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "score_write_failed")
		return dto.TaskScoreResponse{}, err
	}

	s.afterGrade(ctx, courseID, GradeEvent{
		Type:          EventTaskGraded,
		CourseID:      courseID,
		EnrollmentIDs: []uint{enrollment.ID},
		Metadata:      map[string]interface{}{"task_id": task.ID, "letter": string(payload.Letter)},
	})

	if s.activity != nil {
		taskID := task.ID
		_, _ = s.activity.Record(ctx, ActivityEntry{
			CourseID:   courseID,
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			Action:     "task.graded",
			EntityType: "task",
			EntityID:   &taskID,
			Metadata: map[string]interface{}{
				"enrollment_id": enrollment.ID,
				"letter":        string(payload.Letter),
				"fraction":      fraction,
			},
		})
	}

	return dto.NewTaskScoreResponse(score), nil
}

// BulkGrade applies one letter to every active enrollment of the course in a
// single transaction. A locked task fails before any row is touched. When the
// context is cancelled mid-batch, rows already written stay committed and the
// partial count is reported alongside the context error.
func (s *taskService) BulkGrade(ctx context.Context, taskID uint, payload dto.BulkGradeTaskRequest, actor ActivityActor) (dto.BulkGradeResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/nilai-go-api/internal/service/task")
	ctx, span := tracer.Start(ctx, "task.bulk_grade")
	span.SetAttributes(
		attribute.Int64("task.id", int64(taskID)),
		attribute.String("task.letter", string(payload.Letter)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.BulkGradeResponse{}, err
	}

	task, fraction, err := s.gradableTask(ctx, payload.CourseID, taskID, payload.Letter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "task_not_gradable")
		return dto.BulkGradeResponse{}, err
	}

	enrollments, err := s.enrollments.ListByCourse(ctx, payload.CourseID)
	if err != nil {
		return dto.BulkGradeResponse{}, err
	}

	gradedBy := actor.ID
	scores := make([]models.TaskScore, 0, len(enrollments))
	for _, enrollment := range enrollments {
		scores = append(scores, models.TaskScore{
			EnrollmentID: enrollment.ID,
			TaskID:       task.ID,
			Letter:       payload.Letter,
			Fraction:     fraction,
			GradedBy:     &gradedBy,
		})
	}

	applied, err := s.repo.UpsertScores(ctx, scores)
	response := dto.BulkGradeResponse{
		TaskID:  task.ID,
		Letter:  payload.Letter,
		Applied: applied,
		Total:   len(scores),
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bulk_write_failed")
		return response, err
	}

	if applied > 0 {
		s.afterGrade(ctx, payload.CourseID, GradeEvent{
			Type:     EventTaskBulkGraded,
			CourseID: payload.CourseID,
			Metadata: map[string]interface{}{"task_id": task.ID, "letter": string(payload.Letter), "applied": applied},
		})

		if s.activity != nil {
			taskID := task.ID
			_, _ = s.activity.Record(ctx, ActivityEntry{
				CourseID:   payload.CourseID,
				ActorID:    actor.ID,
				ActorRole:  actor.Role,
				Action:     "task.bulk_graded",
				EntityType: "task",
				EntityID:   &taskID,
				Metadata: map[string]interface{}{
					"letter":  string(payload.Letter),
					"applied": applied,
					"total":   len(scores),
				},
			})
		}
	}

	span.SetAttributes(attribute.Int("task.applied", applied))
	return response, err
}

// gradableTask loads the task, rejects locked tasks and verifies that its
// owning criterion belongs to the caller's course.
func (s *taskService) gradableTask(ctx context.Context, courseID string, taskID uint, letter models.TaskLetter) (models.Task, float64, error) {
	task, err := s.repo.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Task{}, 0, fmt.Errorf("task %d: %w", taskID, ErrNotFound)
		}
		return models.Task{}, 0, err
	}

	if task.IsLocked {
		return models.Task{}, 0, fmt.Errorf("task %d: %w", task.ID, ErrTaskLocked)
	}

	_, ownerCourse, err := s.ownerSource(ctx, task.OwnerKind, task.OwnerID)
	if err != nil {
		return models.Task{}, 0, err
	}
	if ownerCourse != courseID {
		return models.Task{}, 0, fmt.Errorf("task %d belongs to course %s, not %s: %w", task.ID, ownerCourse, courseID, ErrInvalidState)
	}

	fraction, err := letter.Fraction()
	if err != nil {
		return models.Task{}, 0, fmt.Errorf("%v: %w", err, ErrInvalidState)
	}

	return task, fraction, nil
}

// ownerSource resolves the owning criterion's score source and course id.
func (s *taskService) ownerSource(ctx context.Context, kind models.CriterionKind, ownerID uint) (models.ScoreSource, string, error) {
	var (
		source  models.ScoreSource
		groupID uint
	)

	switch kind {
	case models.CriterionKindSub:
		criterion, err := s.criteria.GetSubCriterion(ctx, ownerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", "", fmt.Errorf("sub criterion %d: %w", ownerID, ErrNotFound)
			}
			return "", "", err
		}
		source, groupID = criterion.Source, criterion.GroupID
	case models.CriterionKindSpecial:
		criterion, err := s.criteria.GetSpecialCriterion(ctx, ownerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", "", fmt.Errorf("special criterion %d: %w", ownerID, ErrNotFound)
			}
			return "", "", err
		}
		source, groupID = criterion.Source, criterion.GroupID
	default:
		return "", "", fmt.Errorf("unknown criterion kind %q: %w", kind, ErrInvalidState)
	}

	group, err := s.criteria.GetGroup(ctx, groupID)
	if err != nil {
		return "", "", err
	}

	return source, group.CourseID, nil
}

func (s *taskService) invalidateCourse(ctx context.Context, courseID string) {
	if s.invalidator != nil {
		s.invalidator.InvalidateCourse(ctx, courseID)
	}
}

func (s *taskService) afterGrade(ctx context.Context, courseID string, event GradeEvent) {
	s.invalidateCourse(ctx, courseID)
	if s.events != nil {
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.Warn().Err(err).Str("course_id", courseID).Msg("failed to publish grade event")
		}
	}
}
