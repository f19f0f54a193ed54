package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testCoordinator(limit int) *Coordinator {
	return NewCoordinator(limit, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func makeItems(n int) []Item[int] {
	items := make([]Item[int], n)
	for i := range items {
		items[i] = Item[int]{ID: fmt.Sprintf("item-%d", i), Value: i}
	}
	return items
}

// ========================================
// Independence Tests
// ========================================

func TestRun_OneFailureIsIsolated(t *testing.T) {
	const n = 7
	for _, limit := range []int{1, 2, 3, 7, 10} {
		for failAt := 0; failAt < n; failAt++ {
			t.Run(fmt.Sprintf("limit=%d/fail=%d", limit, failAt), func(t *testing.T) {
				res := RunWithLimit(context.Background(), testCoordinator(3), makeItems(n), limit,
					func(_ context.Context, it Item[int]) (int, error) {
						if it.Value == failAt {
							return 0, errors.New("boom")
						}
						return it.Value * 10, nil
					})

				if res.Total != n || res.Succeeded != n-1 || res.Failed != 1 {
					t.Fatalf("got total=%d ok=%d failed=%d, want %d/%d/1", res.Total, res.Succeeded, res.Failed, n, n-1)
				}
				if res.Failures[0].ItemID != fmt.Sprintf("item-%d", failAt) {
					t.Errorf("failure references %s, want item-%d", res.Failures[0].ItemID, failAt)
				}
				for i, o := range res.Outcomes {
					if o.ItemID != fmt.Sprintf("item-%d", i) {
						t.Errorf("outcome %d out of order: %s", i, o.ItemID)
					}
					if i != failAt && o.Value != i*10 {
						t.Errorf("outcome %d value = %d, want %d", i, o.Value, i*10)
					}
				}
			})
		}
	}
}

func TestRun_PanicBecomesFailure(t *testing.T) {
	res := Run(context.Background(), testCoordinator(2), makeItems(3), func(_ context.Context, it Item[int]) (string, error) {
		if it.Value == 1 {
			panic("provider exploded")
		}
		return "ok", nil
	})

	if res.Succeeded != 2 || res.Failed != 1 {
		t.Fatalf("ok=%d failed=%d, want 2/1", res.Succeeded, res.Failed)
	}
	var pe *PanicError
	if !errors.As(res.Failures[0].Err, &pe) {
		t.Fatalf("failure error = %T, want *PanicError", res.Failures[0].Err)
	}
	if pe.Value != "provider exploded" || len(pe.Stack) == 0 {
		t.Errorf("unexpected panic error: %+v", pe)
	}
}

// ========================================
// Chunking Tests
// ========================================

func TestRun_PeakConcurrencyNeverExceedsLimit(t *testing.T) {
	var (
		active, peak atomic.Int32
	)
	res := Run(context.Background(), testCoordinator(3), makeItems(10), func(_ context.Context, _ Item[int]) (struct{}, error) {
		cur := active.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return struct{}{}, nil
	})

	if res.Succeeded != 10 {
		t.Fatalf("Succeeded = %d, want 10", res.Succeeded)
	}
	if p := peak.Load(); p > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", p)
	}
}

func TestRun_ChunksAreSequential(t *testing.T) {
	var (
		mu    sync.Mutex
		order []int
	)
	// Item 0 is slow; item 2 is in the second chunk and must not start until it finishes.
	Run(context.Background(), testCoordinator(2), makeItems(3), func(_ context.Context, it Item[int]) (int, error) {
		if it.Value == 0 {
			time.Sleep(20 * time.Millisecond)
		}
		mu.Lock()
		order = append(order, it.Value)
		mu.Unlock()
		return 0, nil
	})

	if len(order) != 3 || order[2] != 2 {
		t.Errorf("completion order = %v, want item 2 last", order)
	}
}

func TestRun_CancelledBeforeChunk(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	res := Run(ctx, testCoordinator(2), makeItems(5), func(_ context.Context, it Item[int]) (int, error) {
		calls.Add(1)
		if it.Value == 1 {
			cancel()
		}
		return it.Value, nil
	})

	if calls.Load() != 2 {
		t.Errorf("fn called %d times, want 2 (first chunk only)", calls.Load())
	}
	if res.Succeeded != 2 || res.Failed != 3 {
		t.Errorf("ok=%d failed=%d, want 2/3", res.Succeeded, res.Failed)
	}
	for _, f := range res.Failures {
		if !errors.Is(f.Err, context.Canceled) {
			t.Errorf("failure %s error = %v, want context.Canceled", f.ItemID, f.Err)
		}
	}
}

func TestRun_Empty(t *testing.T) {
	res := Run(context.Background(), testCoordinator(3), nil, func(_ context.Context, _ Item[int]) (int, error) {
		t.Error("fn should not be called")
		return 0, nil
	})
	if res.Total != 0 || res.Succeeded != 0 || res.Failed != 0 {
		t.Errorf("empty batch result = %+v", res)
	}
}

func TestNewCoordinator_DefaultConcurrency(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultConcurrency},
		{-2, DefaultConcurrency},
		{5, 5},
	}
	for _, tt := range tests {
		if got := NewCoordinator(tt.in, nil).Concurrency(); got != tt.want {
			t.Errorf("NewCoordinator(%d).Concurrency() = %d, want %d", tt.in, got, tt.want)
		}
	}
}
