package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"hyperwatch/internal/domain"
	"hyperwatch/internal/mfilter"
	"hyperwatch/internal/store"
)

// defaultRuleID is the id of the singleton default action record.
const defaultRuleID = "defaultrule"

// FilterRuleHandler handles HTTP requests for filter rule administration.
// Rules are read by the filter engine on its next beat.
type FilterRuleHandler struct {
	store  store.RecordStore
	logger *slog.Logger
}

// NewFilterRuleHandler creates a new filter rule handler.
func NewFilterRuleHandler(s store.RecordStore, logger *slog.Logger) *FilterRuleHandler {
	return &FilterRuleHandler{
		store:  s,
		logger: logger,
	}
}

// filterRuleRequest is the body of create and update. The predicate may be
// sent as a JSON object or as its text.
type filterRuleRequest struct {
	Name     string          `json:"name"`
	Priority int             `json:"priority"`
	Filter   json.RawMessage `json:"mfilter"`
	Actions  []domain.Action `json:"actions"`
}

func (r *filterRuleRequest) toRule(id string) (*domain.FilterRule, error) {
	text := string(r.Filter)
	var quoted string
	if err := json.Unmarshal(r.Filter, &quoted); err == nil {
		text = quoted
	}

	rule := &domain.FilterRule{
		ID:       id,
		Name:     r.Name,
		Priority: r.Priority,
		Filter:   text,
		Actions:  r.Actions,
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if _, err := mfilter.Parse(rule.Filter); err != nil {
		return nil, err
	}
	for i := range rule.Actions {
		a := &rule.Actions[i]
		switch a.Type {
		case domain.ActionOverride, domain.ActionRemove, domain.ActionDrop, domain.ActionPass, domain.ActionRoute:
		default:
			return nil, fmt.Errorf("%w: unknown action type %q", domain.ErrMalformedAction, a.Type)
		}
		if err := a.Validate(); err != nil {
			return nil, err
		}
	}
	return rule, nil
}

// Create handles POST /v1/filter-rules
func (h *FilterRuleHandler) Create(c *fiber.Ctx) error {
	var req filterRuleRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Debug("failed to parse request body", "error", err)
		return BadRequest(c, "invalid request body")
	}

	rule, err := req.toRule(uuid.New().String())
	if err != nil {
		h.logger.Debug("validation failed", "error", err)
		return ValidationError(c, err.Error())
	}

	if err := h.store.Insert(c.Context(), store.CollectionObjects, rule.Document()); err != nil {
		h.logger.Error("failed to create filter rule", "error", err)
		return InternalError(c, "failed to create filter rule")
	}

	h.logger.Info("created filter rule", "id", rule.ID, "name", rule.Name)
	return Created(c, rule.Document())
}

// List handles GET /v1/filter-rules
// Returns the rules in evaluation order.
func (h *FilterRuleHandler) List(c *fiber.Ctx) error {
	rules, err := h.store.Find(c.Context(), store.CollectionObjects, store.Document{
		domain.FieldRecordType: domain.RecordTypeEventFilter,
	}, "priority")
	if err != nil {
		h.logger.Error("failed to list filter rules", "error", err)
		return InternalError(c, "failed to list filter rules")
	}
	if rules == nil {
		rules = []store.Document{}
	}
	return Success(c, rules)
}

// get reads one rule; the second result is false when no rule has this id.
func (h *FilterRuleHandler) get(c *fiber.Ctx, id string) (store.Document, bool, error) {
	doc, err := h.store.Get(c.Context(), store.CollectionObjects, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if doc[domain.FieldRecordType] != domain.RecordTypeEventFilter {
		return nil, false, nil
	}
	return doc, true, nil
}

// GetByID handles GET /v1/filter-rules/:id
func (h *FilterRuleHandler) GetByID(c *fiber.Ctx) error {
	doc, ok, err := h.get(c, c.Params("id"))
	if err != nil {
		h.logger.Error("failed to get filter rule", "error", err)
		return InternalError(c, "failed to get filter rule")
	}
	if !ok {
		return NotFound(c, "filter rule not found")
	}
	return Success(c, doc)
}

// Update handles PUT /v1/filter-rules/:id
// The stored rule is replaced as a whole.
func (h *FilterRuleHandler) Update(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, ok, err := h.get(c, id); err != nil {
		h.logger.Error("failed to get filter rule", "error", err)
		return InternalError(c, "failed to update filter rule")
	} else if !ok {
		return NotFound(c, "filter rule not found")
	}

	var req filterRuleRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Debug("failed to parse request body", "error", err)
		return BadRequest(c, "invalid request body")
	}
	rule, err := req.toRule(id)
	if err != nil {
		return ValidationError(c, err.Error())
	}

	if err := h.store.Insert(c.Context(), store.CollectionObjects, rule.Document()); err != nil {
		h.logger.Error("failed to update filter rule", "error", err)
		return InternalError(c, "failed to update filter rule")
	}

	h.logger.Info("updated filter rule", "id", id, "name", rule.Name)
	return Success(c, rule.Document())
}

// Delete handles DELETE /v1/filter-rules/:id
func (h *FilterRuleHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, ok, err := h.get(c, id); err != nil {
		h.logger.Error("failed to get filter rule", "error", err)
		return InternalError(c, "failed to delete filter rule")
	} else if !ok {
		return NotFound(c, "filter rule not found")
	}

	if err := h.store.Delete(c.Context(), store.CollectionObjects, id); err != nil {
		h.logger.Error("failed to delete filter rule", "error", err)
		return InternalError(c, "failed to delete filter rule")
	}

	h.logger.Info("deleted filter rule", "id", id)
	return NoContent(c)
}

type defaultActionRequest struct {
	Action domain.DefaultAction `json:"action"`
}

// GetDefaultAction handles GET /v1/filter-rules/default-action
func (h *FilterRuleHandler) GetDefaultAction(c *fiber.Ctx) error {
	docs, err := h.store.Find(c.Context(), store.CollectionObjects, store.Document{
		domain.FieldRecordType: domain.RecordTypeDefaultRule,
	}, "")
	if err != nil {
		h.logger.Error("failed to get default action", "error", err)
		return InternalError(c, "failed to get default action")
	}

	action := domain.DefaultPass
	if len(docs) > 0 {
		if a, _ := docs[0]["action"].(string); domain.DefaultAction(a).IsValid() {
			action = domain.DefaultAction(a)
		}
	}
	return Success(c, defaultActionRequest{Action: action})
}

// SetDefaultAction handles PUT /v1/filter-rules/default-action
func (h *FilterRuleHandler) SetDefaultAction(c *fiber.Ctx) error {
	var req defaultActionRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}
	if !req.Action.IsValid() {
		return ValidationError(c, domain.ErrInvalidDefault.Error())
	}

	_, err := h.store.Upsert(c.Context(), store.CollectionObjects,
		store.Document{domain.FieldID: defaultRuleID},
		store.Document{domain.FieldRecordType: domain.RecordTypeDefaultRule, "action": string(req.Action)},
	)
	if err != nil {
		h.logger.Error("failed to set default action", "error", err)
		return InternalError(c, "failed to set default action")
	}

	h.logger.Info("default action set", "action", req.Action)
	return Success(c, req)
}
