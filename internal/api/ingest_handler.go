package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"hyperwatch/internal/domain"
	"hyperwatch/internal/ingest"
)

// IngestHandler handles HTTP requests for event ingestion.
type IngestHandler struct {
	service *ingest.Service
	logger  *slog.Logger
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(service *ingest.Service, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{
		service: service,
		logger:  logger,
	}
}

// IngestEvent handles POST /v1/events
// Receives an event, validates it, and publishes it to the pipeline.
// Returns 202 Accepted immediately - processing happens asynchronously.
func (h *IngestHandler) IngestEvent(c *fiber.Ctx) error {
	var event domain.Event
	if err := c.BodyParser(&event); err != nil || event == nil {
		h.logger.Debug("failed to parse event body", "error", err)
		return BadRequest(c, "invalid request body")
	}

	rk, err := h.service.IngestEvent(c.Context(), event)
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidEvent) {
			return ValidationError(c, err.Error())
		}
		h.logger.Error("failed to ingest event", "error", err)
		return InternalError(c, "failed to ingest event")
	}

	h.logger.Debug("event accepted", "rk", rk)

	// Return 202 Accepted - event will be processed asynchronously
	return Accepted(c, map[string]string{
		"status": "accepted",
		"rk":     rk,
	})
}
