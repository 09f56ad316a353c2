package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/nilai-go-api/internal/dto"
	"github.com/noah-isme/nilai-go-api/internal/service"
	"github.com/noah-isme/nilai-go-api/internal/utils"
)

// GradesheetHandler wires the computed gradesheet and manual score endpoints.
type GradesheetHandler struct {
	service service.GradesheetService
	logger  zerolog.Logger
}

// NewGradesheetHandler constructs the handler.
func NewGradesheetHandler(service service.GradesheetService, logger zerolog.Logger) *GradesheetHandler {
	return &GradesheetHandler{
		service: service,
		logger:  logger.With().Str("component", "gradesheet_handler").Logger(),
	}
}

// Register attaches gradesheet endpoints to the course router group.
func (h *GradesheetHandler) Register(courses fiber.Router) {
	courses.Get("/:courseID/gradesheet", h.gradesheet)
	courses.Put("/:courseID/scores", h.setManualScore)
}

func (h *GradesheetHandler) gradesheet(c *fiber.Ctx) error {
	courseID := strings.TrimSpace(c.Params("courseID"))
	if courseID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "course identifier required")
	}

	sheet, err := h.service.GetGradesheet(c.Context(), courseID)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to compute gradesheet")
	}

	return utils.SendSuccess(c, "gradesheet computed", sheet)
}

func (h *GradesheetHandler) setManualScore(c *fiber.Ctx) error {
	courseID := strings.TrimSpace(c.Params("courseID"))
	if courseID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "course identifier required")
	}

	var payload dto.ManualScoreRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	actor := activityActorFromContext(c)
	score, err := h.service.SetManualScore(c.Context(), courseID, payload, actor)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to set score")
	}

	return utils.SendSuccess(c, "score saved", score)
}
