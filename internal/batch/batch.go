// Package batch fans work out in fixed-size concurrent chunks.
//
// Items are split into sequential chunks of the concurrency limit. Every item
// in a chunk runs concurrently and the next chunk starts only when the whole
// chunk has finished, so peak concurrency never exceeds the limit. One item's
// failure never cancels its siblings.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// DefaultConcurrency is the chunk size used when none is given.
const DefaultConcurrency = 3

// Item is one unit of work.
type Item[T any] struct {
	ID    string
	Value T
}

// Outcome is the result of one item. Exactly one of Value or Err is meaningful.
type Outcome[R any] struct {
	ItemID string
	Value  R
	Err    error
}

// Failure pairs a failed item with its error.
type Failure struct {
	ItemID string
	Err    error
}

// Result combines every item's outcome. Outcomes are in input order.
type Result[R any] struct {
	Total     int
	Succeeded int
	Failed    int
	Failures  []Failure
	Outcomes  []Outcome[R]
	Duration  time.Duration
}

// PanicError is the failure recorded for an item whose function panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("batch item panicked: %v", e.Value)
}

// Coordinator runs batches with a fixed concurrency limit.
type Coordinator struct {
	concurrency int
	logger      *slog.Logger
}

// NewCoordinator creates a coordinator. A limit below one uses DefaultConcurrency.
func NewCoordinator(concurrency int, logger *slog.Logger) *Coordinator {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{concurrency: concurrency, logger: logger.With("component", "batch")}
}

// Concurrency returns the chunk size.
func (c *Coordinator) Concurrency() int {
	return c.concurrency
}

// Run processes items with the coordinator's limit.
func Run[T, R any](ctx context.Context, c *Coordinator, items []Item[T], fn func(context.Context, Item[T]) (R, error)) Result[R] {
	return RunWithLimit(ctx, c, items, c.concurrency, fn)
}

// RunWithLimit processes items in chunks of limit. Items in chunks not yet
// started when ctx is cancelled fail with the context error.
func RunWithLimit[T, R any](ctx context.Context, c *Coordinator, items []Item[T], limit int, fn func(context.Context, Item[T]) (R, error)) Result[R] {
	if limit < 1 {
		limit = c.concurrency
	}
	start := time.Now()
	res := Result[R]{
		Total:    len(items),
		Outcomes: make([]Outcome[R], len(items)),
	}

	for lo := 0; lo < len(items); lo += limit {
		hi := min(lo+limit, len(items))

		if err := ctx.Err(); err != nil {
			for i := lo; i < len(items); i++ {
				res.Outcomes[i] = Outcome[R]{ItemID: items[i].ID, Err: err}
			}
			break
		}

		var wg sync.WaitGroup
		for i := lo; i < hi; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res.Outcomes[i] = runOne(ctx, c.logger, items[i], fn)
			}(i)
		}
		wg.Wait()

		c.logger.Debug("chunk finished", "from", lo, "to", hi, "total", len(items))
	}

	for _, o := range res.Outcomes {
		if o.Err != nil {
			res.Failed++
			res.Failures = append(res.Failures, Failure{ItemID: o.ItemID, Err: o.Err})
		} else {
			res.Succeeded++
		}
	}
	res.Duration = time.Since(start)
	return res
}

func runOne[T, R any](ctx context.Context, logger *slog.Logger, item Item[T], fn func(context.Context, Item[T]) (R, error)) (out Outcome[R]) {
	out.ItemID = item.ID
	defer func() {
		if r := recover(); r != nil {
			logger.Error("batch item panicked", "item_id", item.ID, "panic", r)
			out.Err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	out.Value, out.Err = fn(ctx, item)
	return out
}
