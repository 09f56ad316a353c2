package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/nilai-go-api/internal/dto"
	"github.com/noah-isme/nilai-go-api/internal/repository"
)

func newTestProjectService(projects *fakeProjectRepo, criteria *fakeCriteriaRepo, enrollments *fakeEnrollmentRepo, activity ActivityRecorder, events GradeEventPublisher, invalidator GradesheetInvalidator) *projectService {
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewProjectService(projects, criteria, enrollments, validate, activity, events, invalidator, testLogger())
	return svc.(*projectService)
}

func TestProjectCreateRejectsNonProjectCriterion(t *testing.T) {
	criteria, _, _, projects, enrollments := buildGradesheetFixture()
	svc := newTestProjectService(projects, criteria, enrollments, nil, nil, nil)

	_, err := svc.Create(context.Background(), dto.ProjectCreateRequest{
		CourseID:       testCourse,
		SubCriterionID: 10,
		Name:           "Group 1",
		Members:        []uint{1, 2},
	}, ActivityActor{ID: 7, Role: "teacher"})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestProjectRegisterWindowClosed(t *testing.T) {
	criteria, _, _, projects, enrollments := buildGradesheetFixture()
	svc := newTestProjectService(projects, criteria, enrollments, nil, nil, nil)

	// Fixture criterion 12 has RegistrationOpen=false.
	_, err := svc.Register(context.Background(), dto.ProjectCreateRequest{
		CourseID:       testCourse,
		SubCriterionID: 12,
		Name:           "Group 1",
		Members:        []uint{3},
	}, ActivityActor{ID: 3, Role: "student"})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestProjectRegisterWithinWindow(t *testing.T) {
	criteria, _, _, projects, enrollments := buildGradesheetFixture()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	open := criteria.subs[12]
	open.RegistrationOpen = true
	open.RegistrationStart = &start
	open.RegistrationEnd = &end
	criteria.subs[12] = open

	svc := newTestProjectService(projects, criteria, enrollments, nil, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }

	project, err := svc.Register(context.Background(), dto.ProjectCreateRequest{
		CourseID:       testCourse,
		SubCriterionID: 12,
		Name:           "Group 1",
		Members:        []uint{3},
	}, ActivityActor{ID: 3, Role: "student"})
	require.NoError(t, err)
	require.NotZero(t, project.ID)

	svc.now = func() time.Time { return end.Add(time.Hour) }
	_, err = svc.Register(context.Background(), dto.ProjectCreateRequest{
		CourseID:       testCourse,
		SubCriterionID: 12,
		Name:           "Group 2",
		Members:        []uint{3},
	}, ActivityActor{ID: 3, Role: "student"})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestProjectCreateMaxMembersExceeded(t *testing.T) {
	criteria, _, _, projects, enrollments := buildGradesheetFixture()
	capped := criteria.subs[12]
	limit := 2
	capped.MaxMembers = &limit
	criteria.subs[12] = capped

	svc := newTestProjectService(projects, criteria, enrollments, nil, nil, nil)
	_, err := svc.Create(context.Background(), dto.ProjectCreateRequest{
		CourseID:       testCourse,
		SubCriterionID: 12,
		Name:           "Crowded",
		Members:        []uint{1, 2, 3},
	}, ActivityActor{ID: 7, Role: "teacher"})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestProjectCreateLeaderMustBeMember(t *testing.T) {
	criteria, _, _, projects, enrollments := buildGradesheetFixture()
	svc := newTestProjectService(projects, criteria, enrollments, nil, nil, nil)

	leader := uint(2)
	_, err := svc.Create(context.Background(), dto.ProjectCreateRequest{
		CourseID:       testCourse,
		SubCriterionID: 12,
		Name:           "Group 1",
		Members:        []uint{3},
		LeaderID:       &leader,
	}, ActivityActor{ID: 7, Role: "teacher"})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestProjectCreateMembershipOverlap(t *testing.T) {
	criteria, _, _, projects, enrollments := buildGradesheetFixture()
	projects.createErr = repository.ErrMembershipOverlap

	svc := newTestProjectService(projects, criteria, enrollments, nil, nil, nil)
	_, err := svc.Create(context.Background(), dto.ProjectCreateRequest{
		CourseID:       testCourse,
		SubCriterionID: 12,
		Name:           "Group 1",
		Members:        []uint{1},
	}, ActivityActor{ID: 7, Role: "teacher"})
	require.ErrorIs(t, err, ErrConflict)
}

func TestProjectUpdateScoreOutOfRange(t *testing.T) {
	criteria, _, _, projects, enrollments := buildGradesheetFixture()
	svc := newTestProjectService(projects, criteria, enrollments, nil, nil, nil)

	score := 61.0
	_, err := svc.Update(context.Background(), 1, dto.ProjectUpdateRequest{Score: &score}, ActivityActor{ID: 7, Role: "teacher"})
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestProjectUpdateScoreSharedByGroup(t *testing.T) {
	criteria, _, _, projects, enrollments := buildGradesheetFixture()
	events := &recordingPublisher{}
	invalidator := &recordingInvalidator{}
	svc := newTestProjectService(projects, criteria, enrollments, nil, events, invalidator)

	score := 42.0
	updated, err := svc.Update(context.Background(), 1, dto.ProjectUpdateRequest{Score: &score}, ActivityActor{ID: 7, Role: "teacher"})
	require.NoError(t, err)
	require.Equal(t, 42.0, *updated.Score)

	require.Equal(t, []string{testCourse}, invalidator.courses)
	require.Len(t, events.events, 1)
	require.Equal(t, EventProjectChanged, events.events[0].Type)
	require.ElementsMatch(t, []uint{1, 2}, events.events[0].EnrollmentIDs)
}

func TestProjectUpdateClearsDepartedLeader(t *testing.T) {
	criteria, _, _, projects, enrollments := buildGradesheetFixture()
	leader := uint(1)
	project := projects.projects[1]
	project.LeaderID = &leader
	projects.projects[1] = project

	svc := newTestProjectService(projects, criteria, enrollments, nil, nil, nil)

	members := []uint{2, 3}
	updated, err := svc.Update(context.Background(), 1, dto.ProjectUpdateRequest{Members: &members}, ActivityActor{ID: 7, Role: "teacher"})
	require.NoError(t, err)
	require.Nil(t, updated.LeaderID, "leadership clears when the leader leaves the group")
}

func TestProjectUpdateExplicitLeaderOutsideMembersFails(t *testing.T) {
	criteria, _, _, projects, enrollments := buildGradesheetFixture()
	svc := newTestProjectService(projects, criteria, enrollments, nil, nil, nil)

	members := []uint{2, 3}
	leader := uint(1)
	_, err := svc.Update(context.Background(), 1, dto.ProjectUpdateRequest{Members: &members, LeaderID: &leader}, ActivityActor{ID: 7, Role: "teacher"})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestProjectDeleteEmitsMembers(t *testing.T) {
	criteria, _, _, projects, enrollments := buildGradesheetFixture()
	events := &recordingPublisher{}
	svc := newTestProjectService(projects, criteria, enrollments, nil, events, nil)

	require.NoError(t, svc.Delete(context.Background(), 1, ActivityActor{ID: 7, Role: "teacher"}))
	require.Len(t, events.events, 1)
	require.Equal(t, EventProjectDeleted, events.events[0].Type)
	require.ElementsMatch(t, []uint{1, 2}, events.events[0].EnrollmentIDs)

	err := svc.Delete(context.Background(), 1, ActivityActor{ID: 7, Role: "teacher"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestProjectNameSanitized(t *testing.T) {
	criteria, _, _, projects, enrollments := buildGradesheetFixture()
	open := criteria.subs[12]
	open.RegistrationOpen = true
	criteria.subs[12] = open

	svc := newTestProjectService(projects, criteria, enrollments, nil, nil, nil)
	project, err := svc.Create(context.Background(), dto.ProjectCreateRequest{
		CourseID:       testCourse,
		SubCriterionID: 12,
		Name:           "<script>alert(1)</script>Rocketry",
		Members:        []uint{3},
	}, ActivityActor{ID: 7, Role: "teacher"})
	require.NoError(t, err)
	require.Equal(t, "Rocketry", project.Name)
}
