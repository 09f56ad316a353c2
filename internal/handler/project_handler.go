package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/nilai-go-api/internal/dto"
	"github.com/noah-isme/nilai-go-api/internal/service"
	"github.com/noah-isme/nilai-go-api/internal/utils"
)

// ProjectHandler wires the project group endpoints.
type ProjectHandler struct {
	service service.ProjectService
	logger  zerolog.Logger
}

// NewProjectHandler constructs the handler.
func NewProjectHandler(service service.ProjectService, logger zerolog.Logger) *ProjectHandler {
	return &ProjectHandler{
		service: service,
		logger:  logger.With().Str("component", "project_handler").Logger(),
	}
}

// Register attaches project endpoints to the router groups.
func (h *ProjectHandler) Register(projects fiber.Router, criteria fiber.Router) {
	projects.Post("/", h.create)
	projects.Post("/register", h.register)
	projects.Get("/:id", h.get)
	projects.Put("/:id", h.update)
	projects.Delete("/:id", h.delete)

	criteria.Get("/sub/:id/projects", h.listBySubCriterion)
}

func (h *ProjectHandler) create(c *fiber.Ctx) error {
	var payload dto.ProjectCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	actor := activityActorFromContext(c)
	project, err := h.service.Create(c.Context(), payload, actor)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to create project")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "project created", project)
}

// register is the student-facing creation path: it additionally enforces the
// registration window and member cap of the sub-criterion.
func (h *ProjectHandler) register(c *fiber.Ctx) error {
	var payload dto.ProjectCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	actor := activityActorFromContext(c)
	project, err := h.service.Register(c.Context(), payload, actor)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to register project")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "project registered", project)
}

func (h *ProjectHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	project, err := h.service.Get(c.Context(), id)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to load project")
	}

	return utils.SendSuccess(c, "project retrieved", project)
}

func (h *ProjectHandler) listBySubCriterion(c *fiber.Ctx) error {
	subCriterionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	projects, err := h.service.ListBySubCriterion(c.Context(), subCriterionID)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to list projects")
	}

	return utils.SendSuccess(c, "projects retrieved", projects)
}

func (h *ProjectHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.ProjectUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	actor := activityActorFromContext(c)
	project, err := h.service.Update(c.Context(), id, payload, actor)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to update project")
	}

	return utils.SendSuccess(c, "project updated", project)
}

func (h *ProjectHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	actor := activityActorFromContext(c)
	if err := h.service.Delete(c.Context(), id, actor); err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to delete project")
	}

	return utils.SendSuccess(c, "project deleted", nil)
}
