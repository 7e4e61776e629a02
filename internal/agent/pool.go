// ABOUTME: Bounded worker pool that runs agent handles off the request goroutine
// ABOUTME: Enforces a per-call timeout; timed-out workers are abandoned and free their slot when done

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
)

// Gauge tracks in-flight invocations. prometheus.Gauge satisfies it.
type Gauge interface {
	Inc()
	Dec()
}

// Pool limits how many handles run concurrently.
type Pool struct {
	sem     *semaphore.Weighted
	workers int
	gauge   Gauge
	logger  *slog.Logger
}

// NewPool creates a pool with the given number of worker slots.
// gauge may be nil.
func NewPool(workers int, gauge Gauge, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: workers,
		gauge:   gauge,
		logger:  logger.With("component", "agent-pool"),
	}
}

// Workers returns the number of worker slots.
func (p *Pool) Workers() int {
	return p.workers
}

type result struct {
	reply string
	err   error
}

// Invoke runs h.Process on a worker and waits for the reply. A timeout of
// zero means no deadline beyond ctx. Waiting for a free slot counts against
// the timeout.
//
// Every failure is returned as a *Failure with Op "process"; a deadline
// miss wraps ErrTimeout. The worker's context is cancelled when Invoke
// returns, and a worker that outlives its caller has its result dropped.
func (p *Pool) Invoke(ctx context.Context, h Handle, prompt string, timeout time.Duration) (string, error) {
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	agentID := ""
	if b, ok := h.(*Bound); ok {
		agentID = b.Spec.AgentID
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", &Failure{Op: "process", AgentID: agentID, Err: ctxFailure(err)}
	}

	// Buffered so an abandoned worker never blocks on send
	results := make(chan result, 1)

	go func() {
		if p.gauge != nil {
			p.gauge.Inc()
			defer p.gauge.Dec()
		}
		defer p.sem.Release(1)
		defer func() {
			if rec := recover(); rec != nil {
				p.logger.Error("agent panicked", "agent_id", agentID, "panic", rec)
				results <- result{err: fmt.Errorf("panic: %v", rec)}
			}
		}()

		reply, err := h.Process(ctx, prompt)
		results <- result{reply: reply, err: err}
	}()

	select {
	case r := <-results:
		if r.err != nil {
			if ctx.Err() != nil {
				return "", &Failure{Op: "process", AgentID: agentID, Err: ctxFailure(ctx.Err())}
			}
			return "", &Failure{Op: "process", AgentID: agentID, Err: r.err}
		}
		return r.reply, nil
	case <-ctx.Done():
		p.logger.Warn("abandoning agent invocation", "agent_id", agentID, "error", ctx.Err())
		return "", &Failure{Op: "process", AgentID: agentID, Err: ctxFailure(ctx.Err())}
	}
}

func ctxFailure(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
