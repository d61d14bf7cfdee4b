package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/musicvideo/internal/jobstore"
	"github.com/makeasinger/musicvideo/internal/model"
	"github.com/makeasinger/musicvideo/internal/notifier"
	"github.com/makeasinger/musicvideo/pkg/response"
)

const keepAliveInterval = 15 * time.Second

// EventHandler streams the single terminal event of a job over SSE
type EventHandler struct {
	notifier *notifier.Notifier
	store    jobstore.Store
	timeout  time.Duration
	log      *slog.Logger
}

func NewEventHandler(n *notifier.Notifier, store jobstore.Store, timeout time.Duration, log *slog.Logger) *EventHandler {
	return &EventHandler{
		notifier: n,
		store:    store,
		timeout:  timeout,
		log:      log.With("component", "events"),
	}
}

// Stream handles GET /events/:jobId. Exactly one "complete" or "error"
// event is written, then the stream closes.
func (h *EventHandler) Stream(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	rcv, err := h.notifier.Attach(jobID)
	switch {
	case errors.Is(err, notifier.ErrUnknownJob):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, notifier.ErrAlreadyAttached):
		return response.Conflict(c, "Another client is already waiting on this job")
	case err != nil:
		return response.ServiceError(c, err.Error())
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		type result struct {
			ev  model.Event
			err error
		}
		done := make(chan result, 1)
		go func() {
			ev, err := rcv.Wait(ctx)
			done <- result{ev, err}
		}()

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case r := <-done:
				ev := r.ev
				if r.err != nil {
					h.log.Warn("event wait ended without result", "job_id", jobID, "error", r.err)
					ev = model.NewTimeoutEvent(jobID)
				} else if _, err := h.store.ConsumeIfPresent(context.Background(), jobID); err != nil && !errors.Is(err, model.ErrJobNotFound) {
					h.log.Warn("could not evict delivered job", "job_id", jobID, "error", err)
				}
				if err := writeEvent(w, ev); err != nil {
					h.log.Info("client went away before delivery", "job_id", jobID, "error", err)
				}
				return
			case <-ticker.C:
				_, err := w.WriteString(": keep-alive\n\n")
				if err == nil {
					err = w.Flush()
				}
				if err != nil {
					h.log.Info("client disconnected", "job_id", jobID)
					cancel()
					<-done
					return
				}
			}
		}
	})
	return nil
}

// writeEvent writes one SSE frame
func writeEvent(w *bufio.Writer, ev model.Event) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
		return err
	}
	return w.Flush()
}
