package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/nilai-go-api/internal/dto"
	"github.com/noah-isme/nilai-go-api/internal/models"
	"github.com/noah-isme/nilai-go-api/internal/repository"
)

// CriteriaService manages the criterion hierarchy and its settings. No score
// logic lives here.
type CriteriaService interface {
	GetHierarchy(ctx context.Context, courseID string) ([]dto.CriterionGroupResponse, error)
	CreateGroup(ctx context.Context, payload dto.GroupCreateRequest) (dto.CriterionGroupResponse, error)
	CreateSubCriterion(ctx context.Context, groupID uint, payload dto.SubCriterionCreateRequest) (dto.SubCriterionResponse, error)
	CreateSpecialCriterion(ctx context.Context, groupID uint, payload dto.SpecialCriterionCreateRequest) (dto.SpecialCriterionResponse, error)
	UpdateSettings(ctx context.Context, kind models.CriterionKind, id uint, payload dto.SettingsUpdateRequest) error
	BulkUpdateSettings(ctx context.Context, groupID uint, payload dto.BulkSettingsUpdateRequest) error
	BulkToggle(ctx context.Context, groupID uint, payload dto.BulkToggleRequest) error
	PartitionReport(ctx context.Context, groupID uint) (dto.PartitionReportResponse, error)
}

type criteriaService struct {
	repo        repository.CriteriaRepository
	validator   *validator.Validate
	invalidator GradesheetInvalidator
	events      GradeEventPublisher
	logger      zerolog.Logger
}

// NewCriteriaService constructs the criteria store service.
func NewCriteriaService(repo repository.CriteriaRepository, validate *validator.Validate, invalidator GradesheetInvalidator, events GradeEventPublisher, logger zerolog.Logger) CriteriaService {
	return &criteriaService{
		repo:        repo,
		validator:   validate,
		invalidator: invalidator,
		events:      events,
		logger:      logger.With().Str("component", "criteria_service").Logger(),
	}
}

func (s *criteriaService) GetHierarchy(ctx context.Context, courseID string) ([]dto.CriterionGroupResponse, error) {
	groups, err := s.repo.GetHierarchy(ctx, courseID)
	if err != nil {
		return nil, err
	}

	return dto.NewCriterionGroupResponseSlice(groups), nil
}

func (s *criteriaService) CreateGroup(ctx context.Context, payload dto.GroupCreateRequest) (dto.CriterionGroupResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CriterionGroupResponse{}, err
	}

	group := models.CriterionGroup{
		CourseID: payload.CourseID,
		Name:     payload.Name,
		Weight:   payload.Weight,
		Position: payload.Position,
	}

	if err := s.repo.CreateGroup(ctx, &group); err != nil {
		return dto.CriterionGroupResponse{}, err
	}

	return dto.NewCriterionGroupResponse(group), nil
}

func (s *criteriaService) CreateSubCriterion(ctx context.Context, groupID uint, payload dto.SubCriterionCreateRequest) (dto.SubCriterionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubCriterionResponse{}, err
	}

	group, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubCriterionResponse{}, fmt.Errorf("group %d: %w", groupID, ErrNotFound)
		}
		return dto.SubCriterionResponse{}, err
	}

	source := payload.Source
	if source == "" {
		source = models.ScoreSourceManual
	}

	if payload.Percentage > group.Weight {
		return dto.SubCriterionResponse{}, fmt.Errorf("percentage %.2f exceeds group weight %.2f: %w", payload.Percentage, group.Weight, ErrInvalidState)
	}

	criterion := models.SubCriterion{
		GroupID:           group.ID,
		Name:              payload.Name,
		Percentage:        payload.Percentage,
		Source:            source,
		Visible:           true,
		Editable:          source == models.ScoreSourceManual,
		RegistrationOpen:  payload.RegistrationOpen,
		RegistrationStart: payload.RegistrationStart,
		RegistrationEnd:   payload.RegistrationEnd,
		MaxMembers:        payload.MaxMembers,
	}

	if err := s.repo.CreateSubCriterion(ctx, &criterion); err != nil {
		return dto.SubCriterionResponse{}, err
	}

	return dto.NewSubCriterionResponse(criterion), nil
}

func (s *criteriaService) CreateSpecialCriterion(ctx context.Context, groupID uint, payload dto.SpecialCriterionCreateRequest) (dto.SpecialCriterionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SpecialCriterionResponse{}, err
	}

	group, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SpecialCriterionResponse{}, fmt.Errorf("group %d: %w", groupID, ErrNotFound)
		}
		return dto.SpecialCriterionResponse{}, err
	}

	source := payload.Source
	if source == "" {
		source = models.ScoreSourceManual
	}

	criterion := models.SpecialCriterion{
		GroupID:    group.ID,
		Name:       payload.Name,
		Percentage: payload.Percentage,
		Source:     source,
		Visible:    true,
		Editable:   source == models.ScoreSourceManual,
	}

	if err := s.repo.CreateSpecialCriterion(ctx, &criterion); err != nil {
		return dto.SpecialCriterionResponse{}, err
	}

	return dto.NewSpecialCriterionResponse(criterion), nil
}

// UpdateSettings toggles visibility/editability on one criterion. Requesting
// editable=true on a task- or project-sourced criterion is rejected: tasks
// and projects are the sole score source for such criteria and direct edits
// stay disabled regardless of caller intent.
func (s *criteriaService) UpdateSettings(ctx context.Context, kind models.CriterionKind, id uint, payload dto.SettingsUpdateRequest) error {
	if payload.Visible == nil && payload.Editable == nil {
		return nil
	}

	source, groupID, err := s.criterionSource(ctx, kind, id)
	if err != nil {
		return err
	}

	if payload.Editable != nil && *payload.Editable && source != models.ScoreSourceManual {
		return fmt.Errorf("%s criterion %d is %s-sourced: %w", kind, id, source, ErrInvalidState)
	}

	if err := s.repo.ApplySettings(ctx, []repository.SettingsUpdate{{
		Kind:     kind,
		ID:       id,
		Visible:  payload.Visible,
		Editable: payload.Editable,
	}}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%s criterion %d: %w", kind, id, ErrNotFound)
		}
		return err
	}

	s.afterSettingsChange(ctx, groupID)
	return nil
}

// BulkUpdateSettings applies a list of per-criterion updates atomically
// within one group's scope. Any criterion outside the group fails the whole
// call.
func (s *criteriaService) BulkUpdateSettings(ctx context.Context, groupID uint, payload dto.BulkSettingsUpdateRequest) error {
	if err := s.validator.Struct(payload); err != nil {
		return err
	}

	group, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("group %d: %w", groupID, ErrNotFound)
		}
		return err
	}

	sources := groupCriterionSources(group)

	updates := make([]repository.SettingsUpdate, 0, len(payload.Updates))
	for _, update := range payload.Updates {
		source, ok := sources[dto.ScoreKey(update.Kind, update.ID)]
		if !ok {
			return fmt.Errorf("%s criterion %d does not belong to group %d: %w", update.Kind, update.ID, groupID, ErrInvalidState)
		}
		if update.Editable != nil && *update.Editable && source != models.ScoreSourceManual {
			return fmt.Errorf("%s criterion %d is %s-sourced: %w", update.Kind, update.ID, source, ErrInvalidState)
		}

		updates = append(updates, repository.SettingsUpdate{
			Kind:     update.Kind,
			ID:       update.ID,
			Visible:  update.Visible,
			Editable: update.Editable,
		})
	}

	if err := s.repo.ApplySettings(ctx, updates); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("group %d settings: %w", groupID, ErrNotFound)
		}
		return err
	}

	s.afterSettingsChangeForCourse(ctx, group.CourseID)
	return nil
}

// BulkToggle flips one flag across the targeted criteria of a group: if every
// item currently has the flag set, all are cleared; otherwise all are set.
// Editable toggles only reach manual-sourced criteria; derived criteria never
// become editable.
func (s *criteriaService) BulkToggle(ctx context.Context, groupID uint, payload dto.BulkToggleRequest) error {
	if err := s.validator.Struct(payload); err != nil {
		return err
	}

	group, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("group %d: %w", groupID, ErrNotFound)
		}
		return err
	}

	type flagged struct {
		kind  models.CriterionKind
		id    uint
		value bool
	}

	var targets []flagged
	switch payload.Target {
	case "sub":
		for _, sub := range group.SubCriteria {
			if payload.Flag == "editable" && sub.Source != models.ScoreSourceManual {
				continue
			}
			value := sub.Visible
			if payload.Flag == "editable" {
				value = sub.Editable
			}
			targets = append(targets, flagged{kind: models.CriterionKindSub, id: sub.ID, value: value})
		}
	case "special":
		for _, special := range group.SpecialCriteria {
			if payload.Flag == "editable" && special.Source != models.ScoreSourceManual {
				continue
			}
			value := special.Visible
			if payload.Flag == "editable" {
				value = special.Editable
			}
			targets = append(targets, flagged{kind: models.CriterionKindSpecial, id: special.ID, value: value})
		}
	}

	if len(targets) == 0 {
		return nil
	}

	allSet := true
	for _, target := range targets {
		if !target.value {
			allSet = false
			break
		}
	}
	newValue := !allSet

	updates := make([]repository.SettingsUpdate, 0, len(targets))
	for _, target := range targets {
		update := repository.SettingsUpdate{Kind: target.kind, ID: target.id}
		value := newValue
		if payload.Flag == "visible" {
			update.Visible = &value
		} else {
			update.Editable = &value
		}
		updates = append(updates, update)
	}

	if err := s.repo.ApplySettings(ctx, updates); err != nil {
		return err
	}

	s.afterSettingsChangeForCourse(ctx, group.CourseID)
	return nil
}

// PartitionReport sums sub-criterion percentages against the group weight.
// Diagnostic only: bonus criteria are excluded and nothing here blocks writes.
func (s *criteriaService) PartitionReport(ctx context.Context, groupID uint) (dto.PartitionReportResponse, error) {
	group, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.PartitionReportResponse{}, fmt.Errorf("group %d: %w", groupID, ErrNotFound)
		}
		return dto.PartitionReportResponse{}, err
	}

	var subTotal, bonusTotal float64
	for _, sub := range group.SubCriteria {
		subTotal += sub.Percentage
	}
	for _, special := range group.SpecialCriteria {
		bonusTotal += special.Percentage
	}

	return dto.PartitionReportResponse{
		GroupID:       group.ID,
		Weight:        group.Weight,
		SubTotal:      subTotal,
		BonusTotal:    bonusTotal,
		Balanced:      subTotal == group.Weight,
		Overcommitted: subTotal > group.Weight,
	}, nil
}

func (s *criteriaService) criterionSource(ctx context.Context, kind models.CriterionKind, id uint) (models.ScoreSource, uint, error) {
	switch kind {
	case models.CriterionKindSub:
		criterion, err := s.repo.GetSubCriterion(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", 0, fmt.Errorf("sub criterion %d: %w", id, ErrNotFound)
			}
			return "", 0, err
		}
		return criterion.Source, criterion.GroupID, nil
	case models.CriterionKindSpecial:
		criterion, err := s.repo.GetSpecialCriterion(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", 0, fmt.Errorf("special criterion %d: %w", id, ErrNotFound)
			}
			return "", 0, err
		}
		return criterion.Source, criterion.GroupID, nil
	default:
		return "", 0, fmt.Errorf("unknown criterion kind %q: %w", kind, ErrInvalidState)
	}
}

func (s *criteriaService) afterSettingsChange(ctx context.Context, groupID uint) {
	group, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("group_id", groupID).Msg("failed to resolve group after settings change")
		return
	}
	s.afterSettingsChangeForCourse(ctx, group.CourseID)
}

func (s *criteriaService) afterSettingsChangeForCourse(ctx context.Context, courseID string) {
	if s.invalidator != nil {
		s.invalidator.InvalidateCourse(ctx, courseID)
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, GradeEvent{Type: EventSettingsChanged, CourseID: courseID}); err != nil {
			s.logger.Warn().Err(err).Str("course_id", courseID).Msg("failed to publish settings event")
		}
	}
}

func groupCriterionSources(group models.CriterionGroup) map[string]models.ScoreSource {
	sources := make(map[string]models.ScoreSource, len(group.SubCriteria)+len(group.SpecialCriteria))
	for _, sub := range group.SubCriteria {
		sources[dto.ScoreKey(models.CriterionKindSub, sub.ID)] = sub.Source
	}
	for _, special := range group.SpecialCriteria {
		sources[dto.ScoreKey(models.CriterionKindSpecial, special.ID)] = special.Source
	}
	return sources
}
