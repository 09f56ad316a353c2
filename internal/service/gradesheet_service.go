package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/nilai-go-api/internal/dto"
	"github.com/noah-isme/nilai-go-api/internal/models"
	"github.com/noah-isme/nilai-go-api/internal/repository"
)

// GradesheetInvalidator busts any cached gradesheet for a course. Mutating
// services call this after every committed write so readers never see a stale
// snapshot; stored rows stay the single source of truth either way.
type GradesheetInvalidator interface {
	InvalidateCourse(ctx context.Context, courseID string)
}

// GradesheetService is the aggregation engine: it joins the criteria
// hierarchy with stored scores and produces per-enrollment rows. Derived
// values are recomputed from stored state on every cache miss; no computed
// total is ever written back.
type GradesheetService interface {
	GradesheetInvalidator
	GetGradesheet(ctx context.Context, courseID string) (dto.GradesheetResponse, error)
	SetManualScore(ctx context.Context, courseID string, payload dto.ManualScoreRequest, actor ActivityActor) (dto.ManualScoreResponse, error)
}

type gradesheetService struct {
	criteria    repository.CriteriaRepository
	scores      repository.ScoreRepository
	tasks       repository.TaskRepository
	projects    repository.ProjectRepository
	enrollments repository.EnrollmentRepository
	validator   *validator.Validate
	redis       *redis.Client
	cacheTTL    time.Duration
	activity    ActivityRecorder
	events      GradeEventPublisher
	logger      zerolog.Logger
}

// NewGradesheetService constructs the aggregation engine. The redis client is
// optional; without it every read recomputes.
func NewGradesheetService(criteria repository.CriteriaRepository, scores repository.ScoreRepository, tasks repository.TaskRepository, projects repository.ProjectRepository, enrollments repository.EnrollmentRepository, validate *validator.Validate, redisClient *redis.Client, cacheTTL time.Duration, activity ActivityRecorder, events GradeEventPublisher, logger zerolog.Logger) GradesheetService {
	return &gradesheetService{
		criteria:    criteria,
		scores:      scores,
		tasks:       tasks,
		projects:    projects,
		enrollments: enrollments,
		validator:   validate,
		redis:       redisClient,
		cacheTTL:    cacheTTL,
		activity:    activity,
		events:      events,
		logger:      logger.With().Str("component", "gradesheet_service").Logger(),
	}
}

// Snapshots are stored under a per-course generation counter. Invalidation
// bumps the counter instead of deleting the snapshot: a reader that computed
// from pre-write state and loses the race against the bump writes its
// snapshot onto the old generation's key, which no later reader consults.
func gradesheetGenKey(courseID string) string {
	return "nilai:gradesheet:gen:" + courseID
}

func gradesheetSnapshotKey(courseID, generation string) string {
	return "nilai:gradesheet:" + courseID + ":" + generation
}

func (s *gradesheetService) GetGradesheet(ctx context.Context, courseID string) (dto.GradesheetResponse, error) {
	generation := ""
	if s.redis != nil && s.cacheTTL > 0 {
		gen, err := s.cacheGeneration(ctx, courseID)
		if err != nil {
			s.logger.Warn().Err(err).Str("course_id", courseID).Msg("gradesheet cache generation read failed")
		} else {
			generation = gen
			cached, getErr := s.redis.Get(ctx, gradesheetSnapshotKey(courseID, generation)).Result()
			if getErr == nil {
				var response dto.GradesheetResponse
				if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
					return response, nil
				}
			} else if !errors.Is(getErr, redis.Nil) {
				s.logger.Warn().Err(getErr).Str("course_id", courseID).Msg("gradesheet cache read failed")
			}
		}
	}

	response, err := s.computeGradesheet(ctx, courseID)
	if err != nil {
		return dto.GradesheetResponse{}, err
	}

	// The snapshot lands under the generation read BEFORE computing. If a
	// mutation bumped the generation while we were computing, this write
	// targets a dead key and the next reader recomputes from fresh state.
	if s.redis != nil && s.cacheTTL > 0 && generation != "" {
		if payload, marshalErr := json.Marshal(response); marshalErr == nil {
			if err := s.redis.Set(ctx, gradesheetSnapshotKey(courseID, generation), payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Str("course_id", courseID).Msg("gradesheet cache write failed")
			}
		}
	}

	return response, nil
}

func (s *gradesheetService) cacheGeneration(ctx context.Context, courseID string) (string, error) {
	generation, err := s.redis.Get(ctx, gradesheetGenKey(courseID)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return generation, err
}

// InvalidateCourse retargets readers to a fresh snapshot key. Stale snapshots
// of earlier generations age out through the TTL.
func (s *gradesheetService) InvalidateCourse(ctx context.Context, courseID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Incr(ctx, gradesheetGenKey(courseID)).Err(); err != nil {
		s.logger.Warn().Err(err).Str("course_id", courseID).Msg("gradesheet cache invalidation failed")
	}
}

func (s *gradesheetService) computeGradesheet(ctx context.Context, courseID string) (dto.GradesheetResponse, error) {
	groups, err := s.criteria.GetHierarchy(ctx, courseID)
	if err != nil {
		return dto.GradesheetResponse{}, err
	}

	enrollments, err := s.enrollments.ListByCourse(ctx, courseID)
	if err != nil {
		return dto.GradesheetResponse{}, err
	}

	data, err := s.loadCourseData(ctx, courseID, groups)
	if err != nil {
		return dto.GradesheetResponse{}, err
	}

	rows := make([]dto.GradesheetRow, 0, len(enrollments))
	for _, enrollment := range enrollments {
		rows = append(rows, computeRow(data, enrollment))
	}

	return dto.GradesheetResponse{
		CourseID:  courseID,
		Structure: dto.NewCriterionGroupResponseSlice(groups),
		Rows:      rows,
	}, nil
}

// SetManualScore writes a directly entered score. Only legal on a
// manual-sourced, editable criterion; values outside [0, percentage] are
// rejected, never clamped. The write is visible to the next read.
func (s *gradesheetService) SetManualScore(ctx context.Context, courseID string, payload dto.ManualScoreRequest, actor ActivityActor) (dto.ManualScoreResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/nilai-go-api/internal/service/gradesheet")
	ctx, span := tracer.Start(ctx, "gradesheet.set_manual_score")
	span.SetAttributes(
		attribute.Int64("score.enrollment_id", int64(payload.EnrollmentID)),
		attribute.String("score.criterion_kind", string(payload.CriterionKind)),
		attribute.Int64("score.criterion_id", int64(payload.CriterionID)),
		attribute.Float64("score.value", payload.Value),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.ManualScoreResponse{}, err
	}

	percentage, editable, groupID, err := s.manualTarget(ctx, payload.CriterionKind, payload.CriterionID)
	if err != nil {
		span.RecordError(err)
		return dto.ManualScoreResponse{}, err
	}

	group, err := s.criteria.GetGroup(ctx, groupID)
	if err != nil {
		return dto.ManualScoreResponse{}, err
	}
	if group.CourseID != courseID {
		return dto.ManualScoreResponse{}, fmt.Errorf("%s criterion %d belongs to course %s, not %s: %w", payload.CriterionKind, payload.CriterionID, group.CourseID, courseID, ErrInvalidState)
	}

	if !editable {
		span.SetStatus(codes.Error, "not_editable")
		return dto.ManualScoreResponse{}, fmt.Errorf("%s criterion %d: %w", payload.CriterionKind, payload.CriterionID, ErrNotEditable)
	}

	if payload.Value < 0 || payload.Value > percentage {
		span.SetStatus(codes.Error, "out_of_range")
		return dto.ManualScoreResponse{}, fmt.Errorf("value %.2f outside [0, %.2f] for %s criterion %d: %w", payload.Value, percentage, payload.CriterionKind, payload.CriterionID, ErrOutOfRange)
	}

	enrollment, err := s.enrollments.GetByID(ctx, payload.EnrollmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ManualScoreResponse{}, fmt.Errorf("enrollment %d: %w", payload.EnrollmentID, ErrNotFound)
		}
		return dto.ManualScoreResponse{}, err
	}
	if enrollment.CourseID != courseID {
		return dto.ManualScoreResponse{}, fmt.Errorf("enrollment %d is not part of course %s: %w", enrollment.ID, courseID, ErrInvalidState)
	}

	// Re-issuing an identical write is a no-op; the stored value and every
	// dependent total stay byte-identical.
	if existing, err := s.scores.Get(ctx, payload.EnrollmentID, payload.CriterionKind, payload.CriterionID); err == nil {
		if math.Abs(existing.Points-payload.Value) < 1e-9 {
			span.SetAttributes(attribute.Bool("score.idempotent", true))
			return dto.ManualScoreResponse{
				EnrollmentID:  existing.EnrollmentID,
				CriterionKind: existing.CriterionKind,
				CriterionID:   existing.CriterionID,
				Value:         existing.Points,
			}, nil
		}
	}

	gradedBy := actor.ID
	score := models.CriterionScore{
		EnrollmentID:  payload.EnrollmentID,
		CriterionKind: payload.CriterionKind,
		CriterionID:   payload.CriterionID,
		Points:        payload.Value,
		GradedBy:      &gradedBy,
	}

	if err := s.scores.Upsert(ctx, &score); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "score_write_failed")
		return dto.ManualScoreResponse{}, err
	}

	s.InvalidateCourse(ctx, courseID)

	if s.events != nil {
		event := GradeEvent{
			Type:          EventManualScoreSet,
			CourseID:      courseID,
			EnrollmentIDs: []uint{payload.EnrollmentID},
			Metadata: map[string]interface{}{
				"criterion_kind": string(payload.CriterionKind),
				"criterion_id":   payload.CriterionID,
				"value":          payload.Value,
			},
		}
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.Warn().Err(err).Str("course_id", courseID).Msg("failed to publish score event")
		}
	}

	if s.activity != nil {
		criterionID := payload.CriterionID
		_, _ = s.activity.Record(ctx, ActivityEntry{
			CourseID:   courseID,
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			Action:     "score.manual_set",
			EntityType: "criterion",
			EntityID:   &criterionID,
			Metadata: map[string]interface{}{
				"enrollment_id":  payload.EnrollmentID,
				"criterion_kind": string(payload.CriterionKind),
				"value":          payload.Value,
			},
		})
	}

	return dto.ManualScoreResponse{
		EnrollmentID:  payload.EnrollmentID,
		CriterionKind: payload.CriterionKind,
		CriterionID:   payload.CriterionID,
		Value:         payload.Value,
	}, nil
}

// manualTarget resolves percentage, manual editability and group of a
// criterion. Task- and project-sourced criteria report editable=false no
// matter what their stored flag says.
func (s *gradesheetService) manualTarget(ctx context.Context, kind models.CriterionKind, id uint) (float64, bool, uint, error) {
	switch kind {
	case models.CriterionKindSub:
		criterion, err := s.criteria.GetSubCriterion(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, false, 0, fmt.Errorf("sub criterion %d: %w", id, ErrNotFound)
			}
			return 0, false, 0, err
		}
		return criterion.Percentage, criterion.ManuallyEditable(), criterion.GroupID, nil
	case models.CriterionKindSpecial:
		criterion, err := s.criteria.GetSpecialCriterion(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, false, 0, fmt.Errorf("special criterion %d: %w", id, ErrNotFound)
			}
			return 0, false, 0, err
		}
		return criterion.Percentage, criterion.ManuallyEditable(), criterion.GroupID, nil
	default:
		return 0, false, 0, fmt.Errorf("unknown criterion kind %q: %w", kind, ErrInvalidState)
	}
}

// courseData bundles everything a row computation needs. Assembled once per
// gradesheet read and fed to the pure computeRow.
type courseData struct {
	groups       []models.CriterionGroup
	tasksByOwner map[string][]models.Task
	fractions    map[uint]map[uint]float64
	manual       map[string]map[uint]float64
	projects     map[uint][]models.Project
}

func (s *gradesheetService) loadCourseData(ctx context.Context, courseID string, groups []models.CriterionGroup) (courseData, error) {
	data := courseData{
		groups:       groups,
		tasksByOwner: map[string][]models.Task{},
		fractions:    map[uint]map[uint]float64{},
		manual:       map[string]map[uint]float64{},
		projects:     map[uint][]models.Project{},
	}

	var taskSubIDs, taskSpecialIDs []uint
	for _, group := range groups {
		for _, sub := range group.SubCriteria {
			if sub.HasTasks() {
				taskSubIDs = append(taskSubIDs, sub.ID)
			}
		}
		for _, special := range group.SpecialCriteria {
			if special.HasTasks() {
				taskSpecialIDs = append(taskSpecialIDs, special.ID)
			}
		}
	}

	subTasks, err := s.tasks.ListByOwners(ctx, models.CriterionKindSub, taskSubIDs)
	if err != nil {
		return courseData{}, err
	}
	specialTasks, err := s.tasks.ListByOwners(ctx, models.CriterionKindSpecial, taskSpecialIDs)
	if err != nil {
		return courseData{}, err
	}

	var taskIDs []uint
	for _, task := range append(subTasks, specialTasks...) {
		key := dto.ScoreKey(task.OwnerKind, task.OwnerID)
		data.tasksByOwner[key] = append(data.tasksByOwner[key], task)
		taskIDs = append(taskIDs, task.ID)
	}

	taskScores, err := s.tasks.ListScoresByTasks(ctx, taskIDs)
	if err != nil {
		return courseData{}, err
	}
	for _, score := range taskScores {
		if data.fractions[score.TaskID] == nil {
			data.fractions[score.TaskID] = map[uint]float64{}
		}
		data.fractions[score.TaskID][score.EnrollmentID] = score.Fraction
	}

	manualScores, err := s.scores.ListByCourse(ctx, courseID)
	if err != nil {
		return courseData{}, err
	}
	for _, score := range manualScores {
		key := dto.ScoreKey(score.CriterionKind, score.CriterionID)
		if data.manual[key] == nil {
			data.manual[key] = map[uint]float64{}
		}
		data.manual[key][score.EnrollmentID] = score.Points
	}

	projects, err := s.projects.ListByCourse(ctx, courseID)
	if err != nil {
		return courseData{}, err
	}
	for _, project := range projects {
		data.projects[project.SubCriterionID] = append(data.projects[project.SubCriterionID], project)
	}

	return data, nil
}

// computeRow derives one enrollment's scores, group grades and final grade.
// Pure: same inputs, same row. A nil score means "no data yet", which never
// collapses into a true zero.
func computeRow(data courseData, enrollment models.Enrollment) dto.GradesheetRow {
	row := dto.GradesheetRow{
		EnrollmentID: enrollment.ID,
		StudentRef:   enrollment.StudentRef,
		Scores:       map[string]*float64{},
		GroupGrades:  map[uint]*float64{},
	}

	var finalGrade *float64
	for _, group := range data.groups {
		var rawTotal float64
		graded := false

		for _, sub := range group.SubCriteria {
			key := dto.ScoreKey(models.CriterionKindSub, sub.ID)
			score := criterionScore(data, key, sub.Source, sub.ID, sub.Percentage, enrollment.ID)
			row.Scores[key] = score
			if score != nil {
				rawTotal += *score
				graded = true
			}
		}

		for _, special := range group.SpecialCriteria {
			key := dto.ScoreKey(models.CriterionKindSpecial, special.ID)
			score := criterionScore(data, key, special.Source, special.ID, special.Percentage, enrollment.ID)
			row.Scores[key] = score
			if score != nil {
				rawTotal += *score
				graded = true
			}
		}

		if !graded {
			row.GroupGrades[group.ID] = nil
			continue
		}

		// Cap guards both misconfigured partitions and bonus overflow.
		groupGrade := math.Min(rawTotal, group.Weight)
		row.GroupGrades[group.ID] = &groupGrade

		if finalGrade == nil {
			finalGrade = new(float64)
		}
		*finalGrade += groupGrade
	}

	row.FinalGrade = finalGrade
	return row
}

// criterionScore resolves a single cell from its source. Manual cells read
// the stored score; task cells average letter fractions over ALL tasks of
// the criterion (public or not); project cells follow group membership.
func criterionScore(data courseData, key string, source models.ScoreSource, criterionID uint, percentage float64, enrollmentID uint) *float64 {
	switch source {
	case models.ScoreSourceTasks:
		return taskDerivedScore(data.tasksByOwner[key], data.fractions, enrollmentID, percentage)
	case models.ScoreSourceProjects:
		return projectDerivedScore(data.projects[criterionID], enrollmentID)
	default:
		if points, ok := data.manual[key][enrollmentID]; ok {
			return &points
		}
		return nil
	}
}

// taskDerivedScore computes sum(fraction*weight)/sum(weight) * percentage.
// The denominator spans every task of the criterion; unscored tasks
// contribute zero to the numerator. An enrollment with no scored task at all
// is ungraded, not zero.
func taskDerivedScore(tasks []models.Task, fractions map[uint]map[uint]float64, enrollmentID uint, percentage float64) *float64 {
	if len(tasks) == 0 {
		return nil
	}

	var weightedSum float64
	var totalWeight int
	scored := false

	for _, task := range tasks {
		totalWeight += task.Weight
		if fraction, ok := fractions[task.ID][enrollmentID]; ok {
			weightedSum += fraction * float64(task.Weight)
			scored = true
		}
	}

	if !scored || totalWeight == 0 {
		return nil
	}

	score := weightedSum / float64(totalWeight) * percentage
	return &score
}

// projectDerivedScore returns the shared score of the project containing the
// enrollment, or nil when the enrollment has no project (or the project is
// not yet scored).
func projectDerivedScore(projects []models.Project, enrollmentID uint) *float64 {
	for _, project := range projects {
		if project.HasMember(enrollmentID) {
			if project.Score == nil {
				return nil
			}
			score := *project.Score
			return &score
		}
	}
	return nil
}
