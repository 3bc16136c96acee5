package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"hyperwatch/internal/domain"
	"hyperwatch/internal/store"
)

// HistoryReader returns the history entries of one alarm.
type HistoryReader interface {
	Logs(ctx context.Context, id string) ([]store.Document, error)
}

// AlarmHandler handles HTTP requests for alarm records (read-only).
type AlarmHandler struct {
	store   store.RecordStore
	history HistoryReader
	logger  *slog.Logger
}

// NewAlarmHandler creates a new alarm handler.
func NewAlarmHandler(s store.RecordStore, history HistoryReader, logger *slog.Logger) *AlarmHandler {
	return &AlarmHandler{
		store:   s,
		history: history,
		logger:  logger,
	}
}

// GetByID handles GET /v1/alarms/:id
// The id is the routing key of the alarm.
func (h *AlarmHandler) GetByID(c *fiber.Ctx) error {
	id := c.Params("id")

	doc, err := h.store.Get(c.Context(), store.CollectionAlarms, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return NotFound(c, "alarm not found")
		}
		h.logger.Error("failed to get alarm", "error", err, "rk", id)
		return InternalError(c, "failed to get alarm")
	}
	return Success(c, doc)
}

// History handles GET /v1/alarms/:id/history
// Returns history entries oldest first.
func (h *AlarmHandler) History(c *fiber.Ctx) error {
	id := c.Params("id")

	logs, err := h.history.Logs(c.Context(), id)
	if err != nil {
		h.logger.Error("failed to get alarm history", "error", err, "rk", id)
		return InternalError(c, "failed to get alarm history")
	}
	if logs == nil {
		logs = []store.Document{}
	}
	return Success(c, logs)
}
