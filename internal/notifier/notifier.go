package notifier

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/makeasinger/musicvideo/internal/model"
)

var (
	ErrUnknownJob      = errors.New("no completion slot for job")
	ErrAlreadyAttached = errors.New("a reader is already waiting on this job")
)

type slot struct {
	events    chan model.Event
	published bool
	attached  bool
	expiresAt time.Time
}

// Notifier holds one single-use completion slot per job. The pipeline
// publishes exactly one terminal event into it; at most one reader waits.
type Notifier struct {
	mu    sync.Mutex
	slots map[string]*slot
	ttl   time.Duration
	now   func() time.Time
	log   *slog.Logger
}

func New(ttl time.Duration, log *slog.Logger) *Notifier {
	return &Notifier{
		slots: make(map[string]*slot),
		ttl:   ttl,
		now:   time.Now,
		log:   log.With("component", "notifier"),
	}
}

// Register opens the slot for a job. Registering twice keeps the first slot.
func (n *Notifier) Register(jobID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.slots[jobID]; ok {
		return
	}
	n.slots[jobID] = &slot{
		events:    make(chan model.Event, 1),
		expiresAt: n.now().Add(n.ttl),
	}
}

// Drop removes a slot that no event will ever reach. A slot with a reader
// attached is kept.
func (n *Notifier) Drop(jobID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if s, ok := n.slots[jobID]; ok && !s.attached {
		delete(n.slots, jobID)
	}
}

// Publish fills the slot. Only the first event is kept; later calls and
// calls for unknown jobs return false.
func (n *Notifier) Publish(jobID string, ev model.Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	s, ok := n.slots[jobID]
	if !ok {
		n.log.Warn("publish to unknown job", "job_id", jobID, "kind", ev.Kind)
		return false
	}
	if s.published {
		n.log.Debug("duplicate publish dropped", "job_id", jobID, "kind", ev.Kind)
		return false
	}
	s.published = true
	s.events <- ev
	return true
}

// Receiver is the single reader attached to a job's slot
type Receiver struct {
	n     *Notifier
	jobID string
	s     *slot
}

// Attach claims the reader side of a job's slot
func (n *Notifier) Attach(jobID string) (*Receiver, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	s, ok := n.slots[jobID]
	if !ok {
		return nil, ErrUnknownJob
	}
	if s.attached {
		return nil, ErrAlreadyAttached
	}
	s.attached = true
	return &Receiver{n: n, jobID: jobID, s: s}, nil
}

// Wait blocks until the terminal event arrives or ctx ends. On delivery the
// slot is removed. On ctx end the attachment is released so another reader
// may attach later.
func (r *Receiver) Wait(ctx context.Context) (model.Event, error) {
	select {
	case ev := <-r.s.events:
		r.n.mu.Lock()
		if cur, ok := r.n.slots[r.jobID]; ok && cur == r.s {
			delete(r.n.slots, r.jobID)
		}
		r.n.mu.Unlock()
		return ev, nil
	case <-ctx.Done():
		r.n.mu.Lock()
		r.s.attached = false
		r.n.mu.Unlock()
		return model.Event{}, ctx.Err()
	}
}

// Await attaches and waits in one call
func (n *Notifier) Await(ctx context.Context, jobID string) (model.Event, error) {
	r, err := n.Attach(jobID)
	if err != nil {
		return model.Event{}, err
	}
	return r.Wait(ctx)
}

// Pending returns the number of open slots
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.slots)
}

// Sweep drops expired slots that nobody is waiting on
func (n *Notifier) Sweep() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	removed := 0
	for id, s := range n.slots {
		if !s.attached && !now.Before(s.expiresAt) {
			delete(n.slots, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled
func (n *Notifier) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := n.Sweep(); removed > 0 {
				n.log.Info("dropped abandoned completion slots", "count", removed)
			}
		}
	}
}
