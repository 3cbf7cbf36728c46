package streamutil

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestConsumeWithParallelismRunsAll(t *testing.T) {
	const total = 100
	for _, n := range []int{1, 4, 16, 64} {
		var inFlight int32
		var maxInFlight int32
		futures := make([]Future[int], total)
		for i := 0; i < total; i++ {
			i := i
			futures[i] = func(ctx context.Context) (int, error) {
				cur := atomic.AddInt32(&inFlight, 1)
				for {
					old := atomic.LoadInt32(&maxInFlight)
					if cur <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, cur) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return i, nil
			}
		}

		results, err := ConsumeWithParallelism(context.Background(), n, futures)
		if err != nil {
			t.Fatalf("n=%d: unexpected error: %v", n, err)
		}
		if len(results) != total {
			t.Fatalf("n=%d: got %d results, want %d", n, len(results), total)
		}
		if atomic.LoadInt32(&maxInFlight) > int32(n) {
			t.Errorf("n=%d: observed %d in flight, want <= %d", n, maxInFlight, n)
		}
	}
}

func TestConsumeWithParallelismPropagatesFirstError(t *testing.T) {
	boom := errors.New("boom")
	futures := []Future[int]{
		func(ctx context.Context) (int, error) { return 1, nil },
		func(ctx context.Context) (int, error) { return 0, boom },
		func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		},
	}
	_, err := ConsumeWithParallelism(context.Background(), 3, futures)
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestConsumeWithParallelismSequential(t *testing.T) {
	var order []int
	futures := make([]Future[int], 5)
	for i := 0; i < 5; i++ {
		i := i
		futures[i] = func(ctx context.Context) (int, error) {
			order = append(order, i)
			return i, nil
		}
	}
	results, err := ConsumeWithParallelism(context.Background(), 0, futures)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range results {
		if v != i {
			t.Errorf("sequential results out of order: %v", results)
			break
		}
	}
	if len(order) != 5 {
		t.Fatalf("expected all 5 to run sequentially, got %v", order)
	}
}
