package integration_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/nilai-go-api/internal/config"
	"github.com/noah-isme/nilai-go-api/internal/dto"
	"github.com/noah-isme/nilai-go-api/internal/handler"
	"github.com/noah-isme/nilai-go-api/internal/middleware"
	"github.com/noah-isme/nilai-go-api/internal/models"
	"github.com/noah-isme/nilai-go-api/internal/repository"
	"github.com/noah-isme/nilai-go-api/internal/router"
	"github.com/noah-isme/nilai-go-api/internal/service"
)

func setupGradingApp(t *testing.T) (*fiber.App, *gorm.DB, *miniredis.Miniredis) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.CriterionGroup{},
		&models.SubCriterion{},
		&models.SpecialCriterion{},
		&models.Enrollment{},
		&models.Task{},
		&models.TaskScore{},
		&models.Project{},
		&models.ProjectMember{},
		&models.CriterionScore{},
		&models.ActivityLog{},
	))

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	criteriaRepo := repository.NewCriteriaRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	scoreRepo := repository.NewScoreRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)
	events := service.NewGradeEventPublisher(redisClient, "nilai:grade-events", nil, "", logger)

	gradesheetService := service.NewGradesheetService(criteriaRepo, scoreRepo, taskRepo, projectRepo, enrollmentRepo, validate, redisClient, time.Minute, activityService, events, logger)
	criteriaService := service.NewCriteriaService(criteriaRepo, validate, gradesheetService, events, logger)
	taskService := service.NewTaskService(taskRepo, criteriaRepo, enrollmentRepo, validate, activityService, events, gradesheetService, logger)
	projectService := service.NewProjectService(projectRepo, criteriaRepo, enrollmentRepo, validate, activityService, events, gradesheetService, logger)

	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger})

	router.Register(app, config.Config{AppName: "Test", JWTSecret: "secret"}, router.Dependencies{
		CriteriaHandler:   handler.NewCriteriaHandler(criteriaService, logger),
		TaskHandler:       handler.NewTaskHandler(taskService, logger),
		ProjectHandler:    handler.NewProjectHandler(projectService, logger),
		GradesheetHandler: handler.NewGradesheetHandler(gradesheetService, logger),
		ActivityHandler:   handler.NewActivityHandler(activityService, logger),
		JWTMiddleware: func(c *fiber.Ctx) error {
			c.Locals("user_id", uint(9001))
			c.Locals("user_role", "lecturer")
			return c.Next()
		},
	})

	return app, db, mr
}

func postJSON(t *testing.T, app *fiber.App, path string, payload interface{}) *http.Response {
	t.Helper()
	return sendJSON(t, app, http.MethodPost, path, payload)
}

func sendJSON(t *testing.T, app *fiber.App, method, path string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response, target *T) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target))
}

func TestGradingEndToEndFlow(t *testing.T) {
	app, db, mr := setupGradingApp(t)
	const courseID = "e2e-101"

	first := models.Enrollment{CourseID: courseID, StudentRef: "s-001", Active: true}
	second := models.Enrollment{CourseID: courseID, StudentRef: "s-002", Active: true}
	require.NoError(t, db.Create(&first).Error)
	require.NoError(t, db.Create(&second).Error)

	// Step 1: lecturer builds the criteria hierarchy.
	resp := postJSON(t, app, "/api/v1/criteria/groups", dto.GroupCreateRequest{
		CourseID: courseID,
		Name:     "Theory",
		Weight:   40,
		Position: 1,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var groupResp struct {
		Success bool                       `json:"success"`
		Data    dto.CriterionGroupResponse `json:"data"`
	}
	decode(t, resp, &groupResp)
	require.True(t, groupResp.Success)
	groupID := strconv.Itoa(int(groupResp.Data.ID))

	resp = postJSON(t, app, "/api/v1/criteria/groups/"+groupID+"/sub", dto.SubCriterionCreateRequest{
		Name:       "Participation",
		Percentage: 25,
		Source:     models.ScoreSourceManual,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var manualSub struct {
		Success bool                     `json:"success"`
		Data    dto.SubCriterionResponse `json:"data"`
	}
	decode(t, resp, &manualSub)
	require.True(t, manualSub.Data.Editable, "manual criteria start editable")

	resp = postJSON(t, app, "/api/v1/criteria/groups/"+groupID+"/sub", dto.SubCriterionCreateRequest{
		Name:       "Homework",
		Percentage: 15,
		Source:     models.ScoreSourceTasks,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var taskSub struct {
		Success bool                     `json:"success"`
		Data    dto.SubCriterionResponse `json:"data"`
	}
	decode(t, resp, &taskSub)
	require.False(t, taskSub.Data.Editable, "derived criteria start non-editable")

	// Step 2: a task under the derived sub-criterion, graded for one student.
	resp = postJSON(t, app, "/api/v1/tasks", dto.TaskCreateRequest{
		OwnerKind: models.CriterionKindSub,
		OwnerID:   taskSub.Data.ID,
		Name:      "Worksheet 1",
		Weight:    2,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var taskResp struct {
		Success bool             `json:"success"`
		Data    dto.TaskResponse `json:"data"`
	}
	decode(t, resp, &taskResp)
	taskID := strconv.Itoa(int(taskResp.Data.ID))

	resp = postJSON(t, app, "/api/v1/courses/"+courseID+"/tasks/"+taskID+"/grade", dto.GradeTaskRequest{
		EnrollmentID: first.ID,
		Letter:       models.TaskLetterA,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Step 3: manual score for the editable criterion.
	resp = sendJSON(t, app, http.MethodPut, "/api/v1/courses/"+courseID+"/scores", dto.ManualScoreRequest{
		EnrollmentID:  first.ID,
		CriterionKind: models.CriterionKindSub,
		CriterionID:   manualSub.Data.ID,
		Value:         20,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Writing to a derived criterion is rejected at the same endpoint.
	resp = sendJSON(t, app, http.MethodPut, "/api/v1/courses/"+courseID+"/scores", dto.ManualScoreRequest{
		EnrollmentID:  first.ID,
		CriterionKind: models.CriterionKindSub,
		CriterionID:   taskSub.Data.ID,
		Value:         5,
	})
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	// Step 4: the computed gradesheet joins both sources.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/courses/"+courseID+"/gradesheet", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var sheetResp struct {
		Success bool                   `json:"success"`
		Data    dto.GradesheetResponse `json:"data"`
	}
	decode(t, resp, &sheetResp)
	require.True(t, sheetResp.Success)
	require.Len(t, sheetResp.Data.Rows, 2)

	rows := map[uint]dto.GradesheetRow{}
	for _, row := range sheetResp.Data.Rows {
		rows[row.EnrollmentID] = row
	}

	graded := rows[first.ID]
	manualKey := dto.ScoreKey(models.CriterionKindSub, manualSub.Data.ID)
	taskKey := dto.ScoreKey(models.CriterionKindSub, taskSub.Data.ID)
	require.NotNil(t, graded.Scores[manualKey])
	require.Equal(t, 20.0, *graded.Scores[manualKey])
	require.NotNil(t, graded.Scores[taskKey])
	require.Equal(t, 15.0, *graded.Scores[taskKey])
	require.NotNil(t, graded.GroupGrades[groupResp.Data.ID])
	require.Equal(t, 35.0, *graded.GroupGrades[groupResp.Data.ID])
	require.NotNil(t, graded.FinalGrade)
	require.Equal(t, 35.0, *graded.FinalGrade)

	ungraded := rows[second.ID]
	require.Nil(t, ungraded.Scores[manualKey])
	require.Nil(t, ungraded.Scores[taskKey])
	require.Nil(t, ungraded.GroupGrades[groupResp.Data.ID])
	require.Nil(t, ungraded.FinalGrade)

	// The computed sheet landed in the cache; every write bumps the snapshot
	// generation so readers never see a pre-write view.
	genKey := "nilai:gradesheet:gen:" + courseID
	generation, err := mr.Get(genKey)
	require.NoError(t, err)
	require.True(t, mr.Exists("nilai:gradesheet:"+courseID+":"+generation))

	resp = sendJSON(t, app, http.MethodPut, "/api/v1/courses/"+courseID+"/scores", dto.ManualScoreRequest{
		EnrollmentID:  second.ID,
		CriterionKind: models.CriterionKindSub,
		CriterionID:   manualSub.Data.ID,
		Value:         10,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	bumped, err := mr.Get(genKey)
	require.NoError(t, err)
	require.NotEqual(t, generation, bumped)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/courses/"+courseID+"/gradesheet", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var refreshed struct {
		Data dto.GradesheetResponse `json:"data"`
	}
	decode(t, resp, &refreshed)
	for _, row := range refreshed.Data.Rows {
		if row.EnrollmentID == second.ID {
			require.NotNil(t, row.Scores[manualKey])
			require.Equal(t, 10.0, *row.Scores[manualKey])
		}
	}

	// Step 5: the audit trail recorded the grading activity.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/audit/activity?course_id="+courseID, nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var activityResp struct {
		Success bool                     `json:"success"`
		Data    dto.ActivityListResponse `json:"data"`
	}
	decode(t, resp, &activityResp)
	require.True(t, activityResp.Success)
	require.NotEmpty(t, activityResp.Data.Entries)

	actions := map[string]bool{}
	for _, entry := range activityResp.Data.Entries {
		actions[entry.Action] = true
		require.Equal(t, uint(9001), entry.ActorID)
		require.Equal(t, "lecturer", entry.ActorRole)
	}
	require.True(t, actions["score.manual_set"])
	require.True(t, actions["task.graded"])
}
