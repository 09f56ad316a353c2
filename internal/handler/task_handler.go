package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/nilai-go-api/internal/dto"
	"github.com/noah-isme/nilai-go-api/internal/service"
	"github.com/noah-isme/nilai-go-api/internal/utils"
)

// TaskHandler wires the task and task grading endpoints.
type TaskHandler struct {
	service service.TaskService
	logger  zerolog.Logger
}

// NewTaskHandler constructs the handler.
func NewTaskHandler(service service.TaskService, logger zerolog.Logger) *TaskHandler {
	return &TaskHandler{
		service: service,
		logger:  logger.With().Str("component", "task_handler").Logger(),
	}
}

// Register attaches task endpoints to the router groups.
func (h *TaskHandler) Register(tasks fiber.Router, criteria fiber.Router, courses fiber.Router) {
	tasks.Post("/", h.create)
	tasks.Put("/:id", h.update)
	tasks.Delete("/:id", h.delete)
	tasks.Post("/:id/bulk-grade", h.bulkGrade)

	criteria.Get("/:kind/:id/tasks", h.listByOwner)

	courses.Post("/:courseID/tasks/:id/grade", h.grade)
}

func (h *TaskHandler) create(c *fiber.Ctx) error {
	var payload dto.TaskCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	task, err := h.service.Create(c.Context(), payload)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to create task")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "task created", task)
}

func (h *TaskHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.TaskUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	task, err := h.service.Update(c.Context(), id, payload)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to update task")
	}

	return utils.SendSuccess(c, "task updated", task)
}

func (h *TaskHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	if err := h.service.Delete(c.Context(), id); err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to delete task")
	}

	return utils.SendSuccess(c, "task deleted", nil)
}

func (h *TaskHandler) listByOwner(c *fiber.Ctx) error {
	kind, err := parseCriterionKind(c, "kind")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	ownerID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	tasks, err := h.service.ListByOwner(c.Context(), kind, ownerID)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to list tasks")
	}

	return utils.SendSuccess(c, "tasks retrieved", tasks)
}

func (h *TaskHandler) grade(c *fiber.Ctx) error {
	courseID := strings.TrimSpace(c.Params("courseID"))
	if courseID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "course identifier required")
	}
	taskID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.GradeTaskRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	actor := activityActorFromContext(c)
	score, err := h.service.Grade(c.Context(), courseID, taskID, payload, actor)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to grade task")
	}

	return utils.SendSuccess(c, "task graded", score)
}

func (h *TaskHandler) bulkGrade(c *fiber.Ctx) error {
	taskID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.BulkGradeTaskRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	actor := activityActorFromContext(c)
	result, err := h.service.BulkGrade(c.Context(), taskID, payload, actor)
	if err != nil {
		// A cancelled bulk grade keeps the rows already written; report how
		// far it got instead of a bare error.
		if result.Total > 0 {
			return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "bulk grade interrupted", result)
		}
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to bulk grade task")
	}

	return utils.SendSuccess(c, "task bulk graded", result)
}
