package streamutil

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Future is one unit of work fed to ConsumeWithParallelism: a function that
// produces a T or fails, given a context it must respect for cancellation.
type Future[T any] func(ctx context.Context) (T, error)

// ConsumeWithParallelism runs futures with at most parallelism of them
// in flight concurrently, per spec.md §4.1. It makes no ordering guarantee
// on completion. The first error encountered is returned, and the context
// passed to still-running futures is canceled so that cooperative futures
// stop promptly (spec.md's "cancels by dropping in-flight futures").
//
// parallelism == 0 means run sequentially (one at a time), matching the
// spec's explicit n=0 case.
func ConsumeWithParallelism[T any](ctx context.Context, parallelism int, futures []Future[T]) ([]T, error) {
	results := make([]T, len(futures))

	if parallelism == 0 {
		for i, fut := range futures {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			v, err := fut(ctx)
			if err != nil {
				return nil, err
			}
			results[i] = v
		}
		return results, nil
	}

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(parallelism)

	for i, fut := range futures {
		i, fut := i, fut
		grp.Go(func() error {
			v, err := fut(grpCtx)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ConsumeChanWithParallelism is the streamed variant of
// ConsumeWithParallelism: futures arrive on a channel rather than as a
// pre-built slice, matching spec.md's "stream of futures" framing for
// write_local_data's output. It returns once the channel is closed and all
// in-flight futures have completed, or as soon as one fails.
func ConsumeChanWithParallelism[T any](ctx context.Context, parallelism int, futures <-chan Future[T]) ([]T, error) {
	if parallelism == 0 {
		var results []T
		for fut := range futures {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			v, err := fut(ctx)
			if err != nil {
				return nil, err
			}
			results = append(results, v)
		}
		return results, nil
	}

	var results []T
	mu := make(chan struct{}, 1)
	mu <- struct{}{}

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(parallelism)

	for {
		select {
		case <-grpCtx.Done():
			if err := grp.Wait(); err != nil {
				return nil, err
			}
			return nil, grpCtx.Err()
		case fut, ok := <-futures:
			if !ok {
				if err := grp.Wait(); err != nil {
					return nil, err
				}
				return results, nil
			}
			grp.Go(func() error {
				v, err := fut(grpCtx)
				if err != nil {
					return err
				}
				<-mu
				results = append(results, v)
				mu <- struct{}{}
				return nil
			})
		}
	}
}
