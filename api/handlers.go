package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/engram/pkg/event"
	"github.com/papercomputeco/engram/pkg/guard/cascade"
	"github.com/papercomputeco/engram/pkg/guard/ratelimit"
	"github.com/papercomputeco/engram/pkg/hooks"
	"github.com/papercomputeco/engram/pkg/storage"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FireRequest is the body of POST /v1/hooks/:id/fire.
type FireRequest struct {
	ProjectID      string         `json:"project_id,omitempty"`
	SessionID      string         `json:"session_id,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// FireResponse reports how the fire call concluded.
type FireResponse struct {
	Status  hooks.FireStatus `json:"status"`
	EventID string           `json:"event_id,omitempty"`
}

// BatchRequest is the body of POST /v1/events/batch.
type BatchRequest struct {
	Events []*event.Event `json:"events"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleFireHook fires a registered hook by id.
func (s *Server) handleFireHook(c *fiber.Ctx) error {
	hookID := c.Params("id")
	if hookID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "hook id required"})
	}

	var req FireRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
		}
	}

	result, err := s.dispatcher.Fire(c.Context(), hookID, hooks.Invocation{
		HookID:         hookID,
		ProjectID:      req.ProjectID,
		SessionID:      req.SessionID,
		Context:        req.Context,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return s.fireError(c, hookID, err)
	}

	return c.JSON(FireResponse{Status: result.Status, EventID: result.EventID})
}

// fireError maps dispatcher failures onto HTTP statuses.
func (s *Server) fireError(c *fiber.Ctx, hookID string, err error) error {
	var unknown hooks.UnknownHookError
	if errors.As(err, &unknown) {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: err.Error()})
	}

	var exceeded ratelimit.ExceededError
	if errors.As(err, &exceeded) {
		return c.Status(fiber.StatusTooManyRequests).JSON(ErrorResponse{Error: err.Error()})
	}

	if errors.Is(err, cascade.ErrViolation) {
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: err.Error()})
	}

	s.logger.Error("hook fire failed", "hook_id", hookID, "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "hook execution failed"})
}

// handleHookStats returns the registry snapshot for one hook.
func (s *Server) handleHookStats(c *fiber.Ctx) error {
	hookID := c.Params("id")

	stats, err := s.dispatcher.Stats(hookID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.JSON(stats)
}

// handleBatchIngest runs a batch of events through the ingestion pipeline.
func (s *Server) handleBatchIngest(c *fiber.Ctx) error {
	var req BatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if len(req.Events) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "events required"})
	}

	report, err := s.pipeline.Process(c.Context(), req.Events)
	if err != nil {
		s.logger.Error("batch ingestion failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "batch persistence failed"})
	}

	return c.JSON(report)
}

// handleGetEvent returns a single persisted event by id.
func (s *Server) handleGetEvent(c *fiber.Ctx) error {
	id := c.Params("id")

	e, err := s.store.GetEvent(c.Context(), id)
	if err != nil {
		var notFound storage.NotFoundError
		if errors.As(err, &notFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: err.Error()})
		}
		s.logger.Error("event lookup failed", "id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "event lookup failed"})
	}

	return c.JSON(e)
}
