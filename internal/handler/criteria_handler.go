package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/nilai-go-api/internal/dto"
	"github.com/noah-isme/nilai-go-api/internal/service"
	"github.com/noah-isme/nilai-go-api/internal/utils"
)

// CriteriaHandler wires the criteria hierarchy endpoints.
type CriteriaHandler struct {
	service service.CriteriaService
	logger  zerolog.Logger
}

// NewCriteriaHandler constructs the handler.
func NewCriteriaHandler(service service.CriteriaService, logger zerolog.Logger) *CriteriaHandler {
	return &CriteriaHandler{
		service: service,
		logger:  logger.With().Str("component", "criteria_handler").Logger(),
	}
}

// Register attaches criteria endpoints to the router group.
func (h *CriteriaHandler) Register(courses fiber.Router, criteria fiber.Router) {
	courses.Get("/:courseID/criteria", h.hierarchy)

	criteria.Post("/groups", h.createGroup)
	criteria.Post("/groups/:groupID/sub", h.createSubCriterion)
	criteria.Post("/groups/:groupID/special", h.createSpecialCriterion)
	criteria.Patch("/groups/:groupID/settings", h.bulkUpdateSettings)
	criteria.Post("/groups/:groupID/toggle", h.bulkToggle)
	criteria.Get("/groups/:groupID/partition", h.partitionReport)
	criteria.Patch("/:kind/:id/settings", h.updateSettings)
}

func (h *CriteriaHandler) hierarchy(c *fiber.Ctx) error {
	courseID := strings.TrimSpace(c.Params("courseID"))
	if courseID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "course identifier required")
	}

	groups, err := h.service.GetHierarchy(c.Context(), courseID)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to load criteria")
	}

	return utils.SendSuccess(c, "criteria retrieved", groups)
}

func (h *CriteriaHandler) createGroup(c *fiber.Ctx) error {
	var payload dto.GroupCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	group, err := h.service.CreateGroup(c.Context(), payload)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to create group")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "group created", group)
}

func (h *CriteriaHandler) createSubCriterion(c *fiber.Ctx) error {
	groupID, err := parseUintParam(c, "groupID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.SubCriterionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	criterion, err := h.service.CreateSubCriterion(c.Context(), groupID, payload)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to create sub-criterion")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "sub-criterion created", criterion)
}

func (h *CriteriaHandler) createSpecialCriterion(c *fiber.Ctx) error {
	groupID, err := parseUintParam(c, "groupID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.SpecialCriterionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	criterion, err := h.service.CreateSpecialCriterion(c.Context(), groupID, payload)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to create special criterion")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "special criterion created", criterion)
}

func (h *CriteriaHandler) updateSettings(c *fiber.Ctx) error {
	kind, err := parseCriterionKind(c, "kind")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.SettingsUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	if err := h.service.UpdateSettings(c.Context(), kind, id, payload); err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to update settings")
	}

	return utils.SendSuccess(c, "settings updated", nil)
}

func (h *CriteriaHandler) bulkUpdateSettings(c *fiber.Ctx) error {
	groupID, err := parseUintParam(c, "groupID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.BulkSettingsUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	if err := h.service.BulkUpdateSettings(c.Context(), groupID, payload); err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to update settings")
	}

	return utils.SendSuccess(c, "settings updated", nil)
}

func (h *CriteriaHandler) bulkToggle(c *fiber.Ctx) error {
	groupID, err := parseUintParam(c, "groupID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.BulkToggleRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	if err := h.service.BulkToggle(c.Context(), groupID, payload); err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to toggle settings")
	}

	return utils.SendSuccess(c, "settings toggled", nil)
}

func (h *CriteriaHandler) partitionReport(c *fiber.Ctx) error {
	groupID, err := parseUintParam(c, "groupID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	report, err := h.service.PartitionReport(c.Context(), groupID)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to build partition report")
	}

	return utils.SendSuccess(c, "partition report", report)
}
