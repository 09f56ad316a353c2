package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/nilai-go-api/internal/dto"
	"github.com/noah-isme/nilai-go-api/internal/models"
	"github.com/noah-isme/nilai-go-api/internal/repository"
)

// ProjectService manages project groups and their shared scores.
type ProjectService interface {
	Create(ctx context.Context, payload dto.ProjectCreateRequest, actor ActivityActor) (dto.ProjectResponse, error)
	Register(ctx context.Context, payload dto.ProjectCreateRequest, actor ActivityActor) (dto.ProjectResponse, error)
	Get(ctx context.Context, id uint) (dto.ProjectResponse, error)
	ListBySubCriterion(ctx context.Context, subCriterionID uint) ([]dto.ProjectResponse, error)
	Update(ctx context.Context, id uint, payload dto.ProjectUpdateRequest, actor ActivityActor) (dto.ProjectResponse, error)
	Delete(ctx context.Context, id uint, actor ActivityActor) error
}

type projectService struct {
	repo        repository.ProjectRepository
	criteria    repository.CriteriaRepository
	enrollments repository.EnrollmentRepository
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	activity    ActivityRecorder
	events      GradeEventPublisher
	invalidator GradesheetInvalidator
	logger      zerolog.Logger
	now         func() time.Time
}

// NewProjectService constructs the project subsystem service.
func NewProjectService(repo repository.ProjectRepository, criteria repository.CriteriaRepository, enrollments repository.EnrollmentRepository, validate *validator.Validate, activity ActivityRecorder, events GradeEventPublisher, invalidator GradesheetInvalidator, logger zerolog.Logger) ProjectService {
	return &projectService{
		repo:        repo,
		criteria:    criteria,
		enrollments: enrollments,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		activity:    activity,
		events:      events,
		invalidator: invalidator,
		logger:      logger.With().Str("component", "project_service").Logger(),
		now:         time.Now,
	}
}

// Create registers a project group on behalf of an administrator. The
// registration window is not consulted; see Register for the student path.
func (s *projectService) Create(ctx context.Context, payload dto.ProjectCreateRequest, actor ActivityActor) (dto.ProjectResponse, error) {
	return s.create(ctx, payload, actor, false)
}

// Register is the student-facing variant of Create: the sub-criterion's
// registration window must be open at the time of the call.
func (s *projectService) Register(ctx context.Context, payload dto.ProjectCreateRequest, actor ActivityActor) (dto.ProjectResponse, error) {
	return s.create(ctx, payload, actor, true)
}

func (s *projectService) create(ctx context.Context, payload dto.ProjectCreateRequest, actor ActivityActor, enforceWindow bool) (dto.ProjectResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/nilai-go-api/internal/service/project")
	ctx, span := tracer.Start(ctx, "project.create")
	span.SetAttributes(
		attribute.String("project.course_id", payload.CourseID),
		attribute.Int64("project.sub_criterion_id", int64(payload.SubCriterionID)),
		attribute.Int("project.members", len(payload.Members)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.ProjectResponse{}, err
	}

	criterion, err := s.projectCriterion(ctx, payload.CourseID, payload.SubCriterionID)
	if err != nil {
		span.RecordError(err)
		return dto.ProjectResponse{}, err
	}

	if enforceWindow && !criterion.RegistrationOpenAt(s.now()) {
		return dto.ProjectResponse{}, fmt.Errorf("registration window for sub criterion %d is closed: %w", criterion.ID, ErrInvalidState)
	}

	if err := s.validateMembers(ctx, payload.CourseID, criterion, payload.Members, payload.LeaderID); err != nil {
		span.RecordError(err)
		return dto.ProjectResponse{}, err
	}

	project := models.Project{
		CourseID:       payload.CourseID,
		SubCriterionID: criterion.ID,
		Name:           s.clean(payload.Name),
		Description:    s.clean(payload.Description),
		LeaderID:       payload.LeaderID,
		Members:        newMembers(payload.Members),
	}

	if err := s.repo.Create(ctx, &project); err != nil {
		if errors.Is(err, repository.ErrMembershipOverlap) {
			span.SetStatus(codes.Error, "membership_overlap")
			return dto.ProjectResponse{}, fmt.Errorf("sub criterion %d: %w", criterion.ID, ErrConflict)
		}
		span.RecordError(err)
		return dto.ProjectResponse{}, err
	}

	s.afterChange(ctx, project.CourseID, GradeEvent{
		Type:          EventProjectChanged,
		CourseID:      project.CourseID,
		EnrollmentIDs: project.MemberIDs(),
		Metadata:      map[string]interface{}{"project_id": project.ID},
	})
	s.record(ctx, actor, project, "project.created")

	return dto.NewProjectResponse(project), nil
}

func (s *projectService) Get(ctx context.Context, id uint) (dto.ProjectResponse, error) {
	project, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ProjectResponse{}, fmt.Errorf("project %d: %w", id, ErrNotFound)
		}
		return dto.ProjectResponse{}, err
	}

	return dto.NewProjectResponse(project), nil
}

func (s *projectService) ListBySubCriterion(ctx context.Context, subCriterionID uint) ([]dto.ProjectResponse, error) {
	projects, err := s.repo.ListBySubCriterion(ctx, subCriterionID)
	if err != nil {
		return nil, err
	}

	return dto.NewProjectResponseSlice(projects), nil
}

// Update mutates a project. A score write must stay within
// [0, subCriterion.percentage]; member changes re-validate exclusivity at
// commit; removing the leader from the member set clears leadership rather
// than failing. Because every member shares the score object, one score
// write changes the effective grade of the whole group atomically.
func (s *projectService) Update(ctx context.Context, id uint, payload dto.ProjectUpdateRequest, actor ActivityActor) (dto.ProjectResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/nilai-go-api/internal/service/project")
	ctx, span := tracer.Start(ctx, "project.update")
	span.SetAttributes(attribute.Int64("project.id", int64(id)))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.ProjectResponse{}, err
	}

	project, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ProjectResponse{}, fmt.Errorf("project %d: %w", id, ErrNotFound)
		}
		return dto.ProjectResponse{}, err
	}

	criterion, err := s.criteria.GetSubCriterion(ctx, project.SubCriterionID)
	if err != nil {
		return dto.ProjectResponse{}, err
	}

	if payload.Name != nil {
		project.Name = s.clean(*payload.Name)
	}
	if payload.Description != nil {
		project.Description = s.clean(*payload.Description)
	}
	if payload.Score != nil {
		if *payload.Score < 0 || *payload.Score > criterion.Percentage {
			return dto.ProjectResponse{}, fmt.Errorf("score %.2f outside [0, %.2f] for sub criterion %d: %w", *payload.Score, criterion.Percentage, criterion.ID, ErrOutOfRange)
		}
		score := *payload.Score
		project.Score = &score
	}

	replaceMembers := payload.Members != nil
	if replaceMembers {
		if err := s.validateMembers(ctx, project.CourseID, criterion, *payload.Members, nil); err != nil {
			span.RecordError(err)
			return dto.ProjectResponse{}, err
		}
		project.Members = newMembers(*payload.Members)
	}

	if payload.LeaderID != nil {
		project.LeaderID = payload.LeaderID
	}
	if project.LeaderID != nil && !project.HasMember(*project.LeaderID) {
		if payload.LeaderID != nil {
			return dto.ProjectResponse{}, fmt.Errorf("leader %d is not a member of project %d: %w", *project.LeaderID, project.ID, ErrInvalidState)
		}
		// The previous leader left the group: clear leadership, don't fail.
		project.LeaderID = nil
	}

	if err := s.repo.Update(ctx, &project, replaceMembers); err != nil {
		if errors.Is(err, repository.ErrMembershipOverlap) {
			span.SetStatus(codes.Error, "membership_overlap")
			return dto.ProjectResponse{}, fmt.Errorf("sub criterion %d: %w", criterion.ID, ErrConflict)
		}
		span.RecordError(err)
		return dto.ProjectResponse{}, err
	}

	s.afterChange(ctx, project.CourseID, GradeEvent{
		Type:          EventProjectChanged,
		CourseID:      project.CourseID,
		EnrollmentIDs: project.MemberIDs(),
		Metadata:      map[string]interface{}{"project_id": project.ID},
	})
	s.record(ctx, actor, project, "project.updated")

	return dto.NewProjectResponse(project), nil
}

// Delete removes the group. Members' derived criterion score reverts to
// ungraded, not zero, until they are reassigned to another project.
func (s *projectService) Delete(ctx context.Context, id uint, actor ActivityActor) error {
	project, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("project %d: %w", id, ErrNotFound)
		}
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("project %d: %w", id, ErrNotFound)
		}
		return err
	}

	s.afterChange(ctx, project.CourseID, GradeEvent{
		Type:          EventProjectDeleted,
		CourseID:      project.CourseID,
		EnrollmentIDs: project.MemberIDs(),
		Metadata:      map[string]interface{}{"project_id": project.ID},
	})
	s.record(ctx, actor, project, "project.deleted")

	return nil
}

// projectCriterion resolves the sub-criterion and checks it is
// project-sourced and belongs to the given course.
func (s *projectService) projectCriterion(ctx context.Context, courseID string, subCriterionID uint) (models.SubCriterion, error) {
	criterion, err := s.criteria.GetSubCriterion(ctx, subCriterionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.SubCriterion{}, fmt.Errorf("sub criterion %d: %w", subCriterionID, ErrNotFound)
		}
		return models.SubCriterion{}, err
	}

	if !criterion.HasProjects() {
		return models.SubCriterion{}, fmt.Errorf("sub criterion %d is %s-sourced, projects not allowed: %w", criterion.ID, criterion.Source, ErrInvalidState)
	}

	group, err := s.criteria.GetGroup(ctx, criterion.GroupID)
	if err != nil {
		return models.SubCriterion{}, err
	}
	if group.CourseID != courseID {
		return models.SubCriterion{}, fmt.Errorf("sub criterion %d belongs to course %s, not %s: %w", criterion.ID, group.CourseID, courseID, ErrInvalidState)
	}

	return criterion, nil
}

func (s *projectService) validateMembers(ctx context.Context, courseID string, criterion models.SubCriterion, members []uint, leader *uint) error {
	if criterion.MaxMembers != nil && len(members) > *criterion.MaxMembers {
		return fmt.Errorf("%d members exceeds limit %d for sub criterion %d: %w", len(members), *criterion.MaxMembers, criterion.ID, ErrInvalidState)
	}

	if leader != nil {
		found := false
		for _, member := range members {
			if member == *leader {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("leader %d is not among the members: %w", *leader, ErrInvalidState)
		}
	}

	for _, member := range members {
		enrollment, err := s.enrollments.GetByID(ctx, member)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("enrollment %d: %w", member, ErrNotFound)
			}
			return err
		}
		if enrollment.CourseID != courseID {
			return fmt.Errorf("enrollment %d is not part of course %s: %w", member, courseID, ErrInvalidState)
		}
	}

	return nil
}

func (s *projectService) clean(input string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(input))
}

func (s *projectService) afterChange(ctx context.Context, courseID string, event GradeEvent) {
	if s.invalidator != nil {
		s.invalidator.InvalidateCourse(ctx, courseID)
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.Warn().Err(err).Str("course_id", courseID).Msg("failed to publish project event")
		}
	}
}

func (s *projectService) record(ctx context.Context, actor ActivityActor, project models.Project, action string) {
	if s.activity == nil {
		return
	}

	projectID := project.ID
	metadata := map[string]interface{}{
		"sub_criterion_id": project.SubCriterionID,
		"members":          project.MemberIDs(),
	}
	if project.Score != nil {
		metadata["score"] = *project.Score
	}

	_, _ = s.activity.Record(ctx, ActivityEntry{
		CourseID:   project.CourseID,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: "project",
		EntityID:   &projectID,
		Metadata:   metadata,
	})
}

func newMembers(enrollmentIDs []uint) []models.ProjectMember {
	members := make([]models.ProjectMember, 0, len(enrollmentIDs))
	for _, id := range enrollmentIDs {
		members = append(members, models.ProjectMember{EnrollmentID: id})
	}
	return members
}
