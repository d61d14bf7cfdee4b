package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/musicvideo/internal/metrics"
	"github.com/makeasinger/musicvideo/internal/watcher"
	"github.com/makeasinger/musicvideo/pkg/response"
)

// CallbackHandler receives music-service completion webhooks
type CallbackHandler struct {
	watcher *watcher.Watcher
	log     *slog.Logger
}

func NewCallbackHandler(w *watcher.Watcher, log *slog.Logger) *CallbackHandler {
	return &CallbackHandler{watcher: w, log: log.With("component", "callback")}
}

// Handle handles POST /music-callback. Intermediate callbacks and callbacks
// for unknown or already claimed jobs are acknowledged as "ignored".
func (h *CallbackHandler) Handle(c *fiber.Ctx) error {
	sig, err := watcher.ParseCallback(c.Body())
	if errors.Is(err, watcher.ErrMalformedCallback) {
		metrics.CallbacksTotal.WithLabelValues("malformed").Inc()
		h.log.Warn("malformed callback", "error", err)
		return response.ValidationError(c, err.Error(), nil)
	}
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	if !sig.Final {
		metrics.CallbacksTotal.WithLabelValues("intermediate").Inc()
		return c.JSON(fiber.Map{"status": "ignored"})
	}

	if sig.Failed {
		metrics.CallbacksTotal.WithLabelValues("error").Inc()
		if !h.watcher.Fail(c.Context(), sig.JobID, sig.Reason) {
			return c.JSON(fiber.Map{"status": "ignored"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}

	claimed, err := h.watcher.Complete(c.Context(), sig.JobID, sig.AudioURL)
	if err != nil {
		metrics.CallbacksTotal.WithLabelValues("failed").Inc()
		h.log.Error("callback completion failed", "job_id", sig.JobID, "error", err)
		return response.FromError(c, err)
	}
	if !claimed {
		metrics.CallbacksTotal.WithLabelValues("duplicate").Inc()
		return c.JSON(fiber.Map{"status": "ignored"})
	}

	metrics.CallbacksTotal.WithLabelValues("complete").Inc()
	return c.JSON(fiber.Map{"status": "ok"})
}
