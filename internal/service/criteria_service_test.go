package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/nilai-go-api/internal/dto"
	"github.com/noah-isme/nilai-go-api/internal/models"
)

func newTestCriteriaService(criteria *fakeCriteriaRepo, invalidator GradesheetInvalidator, events GradeEventPublisher) CriteriaService {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return NewCriteriaService(criteria, validate, invalidator, events, testLogger())
}

func TestCreateSubCriterionDefaultsToManual(t *testing.T) {
	criteria, _, _, _, _ := buildGradesheetFixture()
	svc := newTestCriteriaService(criteria, nil, nil)

	criterion, err := svc.CreateSubCriterion(context.Background(), 1, dto.SubCriterionCreateRequest{
		Name:       "Oral exam",
		Percentage: 10,
	})
	require.NoError(t, err)
	require.Equal(t, models.ScoreSourceManual, criterion.Source)
	require.True(t, criterion.Visible)
	require.True(t, criterion.Editable, "manual criteria start editable")
}

func TestCreateSubCriterionDerivedStartsNonEditable(t *testing.T) {
	criteria, _, _, _, _ := buildGradesheetFixture()
	svc := newTestCriteriaService(criteria, nil, nil)

	criterion, err := svc.CreateSubCriterion(context.Background(), 1, dto.SubCriterionCreateRequest{
		Name:       "Weekly sheets",
		Percentage: 10,
		Source:     models.ScoreSourceTasks,
	})
	require.NoError(t, err)
	require.False(t, criterion.Editable)
}

func TestCreateSubCriterionPercentageExceedsWeight(t *testing.T) {
	criteria, _, _, _, _ := buildGradesheetFixture()
	svc := newTestCriteriaService(criteria, nil, nil)

	_, err := svc.CreateSubCriterion(context.Background(), 1, dto.SubCriterionCreateRequest{
		Name:       "Too big",
		Percentage: 41,
	})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestUpdateSettingsRejectsEditableOnDerived(t *testing.T) {
	criteria, _, _, _, _ := buildGradesheetFixture()
	invalidator := &recordingInvalidator{}
	svc := newTestCriteriaService(criteria, invalidator, nil)

	editable := true
	err := svc.UpdateSettings(context.Background(), models.CriterionKindSub, 11, dto.SettingsUpdateRequest{Editable: &editable})
	require.ErrorIs(t, err, ErrInvalidState)
	require.Empty(t, criteria.applied)
	require.Empty(t, invalidator.courses)
}

func TestUpdateSettingsAllowsHidingDerived(t *testing.T) {
	criteria, _, _, _, _ := buildGradesheetFixture()
	invalidator := &recordingInvalidator{}
	events := &recordingPublisher{}
	svc := newTestCriteriaService(criteria, invalidator, events)

	visible := false
	err := svc.UpdateSettings(context.Background(), models.CriterionKindSub, 11, dto.SettingsUpdateRequest{Visible: &visible})
	require.NoError(t, err)
	require.Len(t, criteria.applied, 1)
	require.Equal(t, []string{testCourse}, invalidator.courses)
	require.Len(t, events.events, 1)
	require.Equal(t, EventSettingsChanged, events.events[0].Type)
}

func TestBulkUpdateSettingsRejectsForeignCriterion(t *testing.T) {
	criteria, _, _, _, _ := buildGradesheetFixture()
	svc := newTestCriteriaService(criteria, nil, nil)

	visible := true
	err := svc.BulkUpdateSettings(context.Background(), 1, dto.BulkSettingsUpdateRequest{
		Updates: []dto.CriterionSettingsUpdate{
			{Kind: models.CriterionKindSub, ID: 10, Visible: &visible},
			// Criterion 12 belongs to group 2; the whole batch must fail.
			{Kind: models.CriterionKindSub, ID: 12, Visible: &visible},
		},
	})
	require.ErrorIs(t, err, ErrInvalidState)
	require.Empty(t, criteria.applied)
}

func TestBulkToggleVisibleFlipsAllOff(t *testing.T) {
	criteria, _, _, _, _ := buildGradesheetFixture()
	svc := newTestCriteriaService(criteria, nil, nil)

	// Both sub-criteria of group 1 are visible, so the toggle clears them.
	err := svc.BulkToggle(context.Background(), 1, dto.BulkToggleRequest{Flag: "visible", Target: "sub"})
	require.NoError(t, err)
	require.Len(t, criteria.applied, 1)
	require.Len(t, criteria.applied[0], 2)
	for _, update := range criteria.applied[0] {
		require.NotNil(t, update.Visible)
		require.False(t, *update.Visible)
	}
}

func TestBulkToggleMixedStateSetsAll(t *testing.T) {
	criteria, _, _, _, _ := buildGradesheetFixture()
	hidden := criteria.subs[10]
	hidden.Visible = false
	criteria.subs[10] = hidden
	for i := range criteria.groups {
		if criteria.groups[i].ID == 1 {
			criteria.groups[i].SubCriteria[0].Visible = false
		}
	}

	svc := newTestCriteriaService(criteria, nil, nil)
	err := svc.BulkToggle(context.Background(), 1, dto.BulkToggleRequest{Flag: "visible", Target: "sub"})
	require.NoError(t, err)
	require.Len(t, criteria.applied, 1)
	for _, update := range criteria.applied[0] {
		require.NotNil(t, update.Visible)
		require.True(t, *update.Visible)
	}
}

func TestBulkToggleEditableSkipsDerived(t *testing.T) {
	criteria, _, _, _, _ := buildGradesheetFixture()
	svc := newTestCriteriaService(criteria, nil, nil)

	err := svc.BulkToggle(context.Background(), 1, dto.BulkToggleRequest{Flag: "editable", Target: "sub"})
	require.NoError(t, err)
	require.Len(t, criteria.applied, 1)
	// Only the manual sub-criterion is targeted; criterion 11 is task-sourced.
	require.Len(t, criteria.applied[0], 1)
	require.Equal(t, uint(10), criteria.applied[0][0].ID)
	require.NotNil(t, criteria.applied[0][0].Editable)
	require.False(t, *criteria.applied[0][0].Editable)
}

func TestPartitionReport(t *testing.T) {
	criteria, _, _, _, _ := buildGradesheetFixture()
	svc := newTestCriteriaService(criteria, nil, nil)

	report, err := svc.PartitionReport(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 40.0, report.Weight)
	require.Equal(t, 40.0, report.SubTotal)
	require.Equal(t, 10.0, report.BonusTotal, "bonus percentages stay out of the partition")
	require.True(t, report.Balanced)
	require.False(t, report.Overcommitted)
}

func TestPartitionReportOvercommitted(t *testing.T) {
	criteria, _, _, _, _ := buildGradesheetFixture()
	for i := range criteria.groups {
		if criteria.groups[i].ID == 1 {
			criteria.groups[i].SubCriteria[0].Percentage = 30
		}
	}

	svc := newTestCriteriaService(criteria, nil, nil)
	report, err := svc.PartitionReport(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 45.0, report.SubTotal)
	require.False(t, report.Balanced)
	require.True(t, report.Overcommitted)
}
