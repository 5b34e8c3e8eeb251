package pipeline

import (
	"errors"
	"fmt"
	"sync"
)

// Handler state errors. Misuse of the dispatch protocol is a supervisor
// bug, reported rather than papered over.
var (
	ErrAlreadyDispatched = errors.New("pipeline: tick already dispatched")
	ErrNotDispatched     = errors.New("pipeline: no tick dispatched")
	ErrEnded             = errors.New("pipeline: handler ended")
)

// Job is one unit of per-tick work owned by a single worker. Run is
// called once per dispatched tick, always from the same goroutine, so a
// Job may keep unguarded per-worker state between ticks.
type Job interface {
	Name() string
	Run(tick uint64) error
}

type jobResult struct {
	name string
	err  error
}

// Handler runs a fixed set of jobs, one worker goroutine per job, under
// a strict dispatch protocol: Send hands a tick to every worker, Receive
// blocks until every worker has finished it, End shuts the pool down.
// Send and Receive must alternate; the channel handshake gives the
// supervisor a happens-before edge over all worker writes for the tick.
type Handler struct {
	jobs     []Job
	dispatch []chan uint64
	done     chan jobResult
	wg       sync.WaitGroup

	inFlight bool
	ended    bool
	endOnce  sync.Once
}

// NewHandler starts one worker per job. The workers idle until the first
// Send.
func NewHandler(jobs []Job) *Handler {
	h := &Handler{
		jobs:     jobs,
		dispatch: make([]chan uint64, len(jobs)),
		done:     make(chan jobResult, len(jobs)),
	}
	for i, job := range jobs {
		ch := make(chan uint64)
		h.dispatch[i] = ch
		h.wg.Add(1)
		go h.worker(job, ch)
	}
	return h
}

// Len returns the number of jobs.
func (h *Handler) Len() int { return len(h.jobs) }

func (h *Handler) worker(job Job, dispatch <-chan uint64) {
	defer h.wg.Done()
	for tick := range dispatch {
		tracef("job %s: tick %d start", job.Name(), tick)
		err := job.Run(tick)
		if err != nil {
			opsf("job %s: tick %d: %v", job.Name(), tick, err)
		}
		h.done <- jobResult{name: job.Name(), err: err}
	}
}

// Send dispatches a tick to every worker without waiting for completion.
// The caller is free to do other work (loading the next frame) and must
// call Receive before the next Send.
func (h *Handler) Send(tick uint64) error {
	if h.ended {
		return ErrEnded
	}
	if h.inFlight {
		return ErrAlreadyDispatched
	}
	h.inFlight = true
	for _, ch := range h.dispatch {
		ch <- tick
	}
	return nil
}

// Receive blocks until every worker has completed the in-flight tick.
// Individual job failures are joined into one error; the tick is still
// considered consumed, so the supervisor can dispatch the next one.
func (h *Handler) Receive() error {
	if h.ended {
		return ErrEnded
	}
	if !h.inFlight {
		return ErrNotDispatched
	}
	var errs []error
	for range h.jobs {
		res := <-h.done
		if res.err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", res.name, res.err))
		}
	}
	h.inFlight = false
	return errors.Join(errs...)
}

// SendAndReceive runs one tick synchronously.
func (h *Handler) SendAndReceive(tick uint64) error {
	if err := h.Send(tick); err != nil {
		return err
	}
	return h.Receive()
}

// End drains any in-flight tick, stops the workers, and waits for them
// to exit. Idempotent; the handler accepts no further Send or Receive
// afterwards.
func (h *Handler) End() {
	h.endOnce.Do(func() {
		if h.inFlight {
			for range h.jobs {
				<-h.done
			}
			h.inFlight = false
		}
		for _, ch := range h.dispatch {
			close(ch)
		}
		h.wg.Wait()
		h.ended = true
	})
}
