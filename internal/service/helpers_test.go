package service

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/nilai-go-api/internal/dto"
	"github.com/noah-isme/nilai-go-api/internal/models"
	"github.com/noah-isme/nilai-go-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type fakeCriteriaRepo struct {
	groups   []models.CriterionGroup
	subs     map[uint]models.SubCriterion
	specials map[uint]models.SpecialCriterion
	applied  [][]repository.SettingsUpdate
	nextID   uint
}

func newFakeCriteriaRepo() *fakeCriteriaRepo {
	return &fakeCriteriaRepo{
		subs:     map[uint]models.SubCriterion{},
		specials: map[uint]models.SpecialCriterion{},
		nextID:   1,
	}
}

func (f *fakeCriteriaRepo) addGroup(group models.CriterionGroup) models.CriterionGroup {
	if group.ID == 0 {
		group.ID = f.nextID
		f.nextID++
	}
	for _, sub := range group.SubCriteria {
		f.subs[sub.ID] = sub
	}
	for _, special := range group.SpecialCriteria {
		f.specials[special.ID] = special
	}
	f.groups = append(f.groups, group)
	return group
}

func (f *fakeCriteriaRepo) GetHierarchy(_ context.Context, courseID string) ([]models.CriterionGroup, error) {
	var result []models.CriterionGroup
	for _, group := range f.groups {
		if group.CourseID == courseID {
			result = append(result, group)
		}
	}
	return result, nil
}

func (f *fakeCriteriaRepo) GetGroup(_ context.Context, id uint) (models.CriterionGroup, error) {
	for _, group := range f.groups {
		if group.ID == id {
			return group, nil
		}
	}
	return models.CriterionGroup{}, gorm.ErrRecordNotFound
}

func (f *fakeCriteriaRepo) CreateGroup(_ context.Context, group *models.CriterionGroup) error {
	group.ID = f.nextID
	f.nextID++
	f.groups = append(f.groups, *group)
	return nil
}

func (f *fakeCriteriaRepo) CreateSubCriterion(_ context.Context, criterion *models.SubCriterion) error {
	criterion.ID = f.nextID
	f.nextID++
	f.subs[criterion.ID] = *criterion
	return nil
}

func (f *fakeCriteriaRepo) CreateSpecialCriterion(_ context.Context, criterion *models.SpecialCriterion) error {
	criterion.ID = f.nextID
	f.nextID++
	f.specials[criterion.ID] = *criterion
	return nil
}

func (f *fakeCriteriaRepo) GetSubCriterion(_ context.Context, id uint) (models.SubCriterion, error) {
	criterion, ok := f.subs[id]
	if !ok {
		return models.SubCriterion{}, gorm.ErrRecordNotFound
	}
	return criterion, nil
}

func (f *fakeCriteriaRepo) GetSpecialCriterion(_ context.Context, id uint) (models.SpecialCriterion, error) {
	criterion, ok := f.specials[id]
	if !ok {
		return models.SpecialCriterion{}, gorm.ErrRecordNotFound
	}
	return criterion, nil
}

func (f *fakeCriteriaRepo) ApplySettings(_ context.Context, updates []repository.SettingsUpdate) error {
	f.applied = append(f.applied, updates)
	return nil
}

type fakeScoreRepo struct {
	scores  map[string]models.CriterionScore
	upserts int
}

func newFakeScoreRepo() *fakeScoreRepo {
	return &fakeScoreRepo{scores: map[string]models.CriterionScore{}}
}

func scoreMapKey(enrollmentID uint, kind models.CriterionKind, criterionID uint) string {
	return fmt.Sprintf("%s:%d", dto.ScoreKey(kind, criterionID), enrollmentID)
}

func (f *fakeScoreRepo) Upsert(_ context.Context, score *models.CriterionScore) error {
	f.upserts++
	f.scores[scoreMapKey(score.EnrollmentID, score.CriterionKind, score.CriterionID)] = *score
	return nil
}

func (f *fakeScoreRepo) Get(_ context.Context, enrollmentID uint, kind models.CriterionKind, criterionID uint) (models.CriterionScore, error) {
	score, ok := f.scores[scoreMapKey(enrollmentID, kind, criterionID)]
	if !ok {
		return models.CriterionScore{}, gorm.ErrRecordNotFound
	}
	return score, nil
}

func (f *fakeScoreRepo) ListByCourse(_ context.Context, _ string) ([]models.CriterionScore, error) {
	result := make([]models.CriterionScore, 0, len(f.scores))
	for _, score := range f.scores {
		result = append(result, score)
	}
	return result, nil
}

type fakeTaskRepo struct {
	tasks      map[uint]models.Task
	scores     []models.TaskScore
	nextID     uint
	upsertErr  error
	applyLimit int
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: map[uint]models.Task{}, nextID: 1, applyLimit: -1}
}

func (f *fakeTaskRepo) addTask(task models.Task) models.Task {
	if task.ID == 0 {
		task.ID = f.nextID
		f.nextID++
	}
	f.tasks[task.ID] = task
	return task
}

func (f *fakeTaskRepo) Create(_ context.Context, task *models.Task) error {
	task.ID = f.nextID
	f.nextID++
	f.tasks[task.ID] = *task
	return nil
}

func (f *fakeTaskRepo) GetByID(_ context.Context, id uint) (models.Task, error) {
	task, ok := f.tasks[id]
	if !ok {
		return models.Task{}, gorm.ErrRecordNotFound
	}
	return task, nil
}

func (f *fakeTaskRepo) Update(_ context.Context, task *models.Task) error {
	f.tasks[task.ID] = *task
	return nil
}

func (f *fakeTaskRepo) Delete(_ context.Context, id uint) error {
	delete(f.tasks, id)
	return nil
}

func (f *fakeTaskRepo) ListByOwner(_ context.Context, kind models.CriterionKind, ownerID uint) ([]models.Task, error) {
	var result []models.Task
	for _, task := range f.tasks {
		if task.OwnerKind == kind && task.OwnerID == ownerID {
			result = append(result, task)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (f *fakeTaskRepo) ListByOwners(ctx context.Context, kind models.CriterionKind, ownerIDs []uint) ([]models.Task, error) {
	var result []models.Task
	for _, ownerID := range ownerIDs {
		tasks, _ := f.ListByOwner(ctx, kind, ownerID)
		result = append(result, tasks...)
	}
	return result, nil
}

func (f *fakeTaskRepo) HasScores(_ context.Context, taskID uint) (bool, error) {
	for _, score := range f.scores {
		if score.TaskID == taskID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTaskRepo) UpsertScore(_ context.Context, score *models.TaskScore) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for i, existing := range f.scores {
		if existing.EnrollmentID == score.EnrollmentID && existing.TaskID == score.TaskID {
			f.scores[i] = *score
			return nil
		}
	}
	f.scores = append(f.scores, *score)
	return nil
}

func (f *fakeTaskRepo) UpsertScores(ctx context.Context, scores []models.TaskScore) (int, error) {
	applied := 0
	for i := range scores {
		if f.applyLimit >= 0 && applied >= f.applyLimit {
			return applied, context.Canceled
		}
		if err := f.UpsertScore(ctx, &scores[i]); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func (f *fakeTaskRepo) ListScoresByTasks(_ context.Context, taskIDs []uint) ([]models.TaskScore, error) {
	wanted := make(map[uint]bool, len(taskIDs))
	for _, id := range taskIDs {
		wanted[id] = true
	}
	var result []models.TaskScore
	for _, score := range f.scores {
		if wanted[score.TaskID] {
			result = append(result, score)
		}
	}
	return result, nil
}

type fakeProjectRepo struct {
	projects  map[uint]models.Project
	nextID    uint
	createErr error
	updateErr error
}

func newFakeProjectRepo() *fakeProjectRepo {
	return &fakeProjectRepo{projects: map[uint]models.Project{}, nextID: 1}
}

func (f *fakeProjectRepo) addProject(project models.Project) models.Project {
	if project.ID == 0 {
		project.ID = f.nextID
		f.nextID++
	}
	f.projects[project.ID] = project
	return project
}

func (f *fakeProjectRepo) Create(_ context.Context, project *models.Project) error {
	if f.createErr != nil {
		return f.createErr
	}
	project.ID = f.nextID
	f.nextID++
	f.projects[project.ID] = *project
	return nil
}

func (f *fakeProjectRepo) GetByID(_ context.Context, id uint) (models.Project, error) {
	project, ok := f.projects[id]
	if !ok {
		return models.Project{}, gorm.ErrRecordNotFound
	}
	return project, nil
}

func (f *fakeProjectRepo) Update(_ context.Context, project *models.Project, _ bool) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.projects[project.ID] = *project
	return nil
}

func (f *fakeProjectRepo) Delete(_ context.Context, id uint) error {
	if _, ok := f.projects[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(f.projects, id)
	return nil
}

func (f *fakeProjectRepo) ListBySubCriterion(_ context.Context, subCriterionID uint) ([]models.Project, error) {
	var result []models.Project
	for _, project := range f.projects {
		if project.SubCriterionID == subCriterionID {
			result = append(result, project)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (f *fakeProjectRepo) ListByCourse(_ context.Context, courseID string) ([]models.Project, error) {
	var result []models.Project
	for _, project := range f.projects {
		if project.CourseID == courseID {
			result = append(result, project)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

type fakeEnrollmentRepo struct {
	enrollments map[uint]models.Enrollment
}

func newFakeEnrollmentRepo(enrollments ...models.Enrollment) *fakeEnrollmentRepo {
	repo := &fakeEnrollmentRepo{enrollments: map[uint]models.Enrollment{}}
	for _, enrollment := range enrollments {
		repo.enrollments[enrollment.ID] = enrollment
	}
	return repo
}

func (f *fakeEnrollmentRepo) GetByID(_ context.Context, id uint) (models.Enrollment, error) {
	enrollment, ok := f.enrollments[id]
	if !ok {
		return models.Enrollment{}, gorm.ErrRecordNotFound
	}
	return enrollment, nil
}

func (f *fakeEnrollmentRepo) ListByCourse(_ context.Context, courseID string) ([]models.Enrollment, error) {
	var result []models.Enrollment
	for _, enrollment := range f.enrollments {
		if enrollment.CourseID == courseID && enrollment.Active {
			result = append(result, enrollment)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

type recordingInvalidator struct {
	courses []string
}

func (r *recordingInvalidator) InvalidateCourse(_ context.Context, courseID string) {
	r.courses = append(r.courses, courseID)
}

type recordingPublisher struct {
	events []GradeEvent
}

func (r *recordingPublisher) Publish(_ context.Context, event GradeEvent) error {
	r.events = append(r.events, event)
	return nil
}

type recordingActivity struct {
	entries []ActivityEntry
}

func (r *recordingActivity) Record(_ context.Context, entry ActivityEntry) (dto.ActivityResponse, error) {
	r.entries = append(r.entries, entry)
	return dto.ActivityResponse{}, nil
}
