// Package execctx implements the execution context shared by every
// asynchronous operation in a transfer: a clonable handle carrying a
// bounded error channel, background-worker spawning, and subprocess
// supervision, grounded on original_source/dbcrossbarlib/src/context.rs.
package execctx

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Context is a clonable, thread-safe handle passed explicitly through the
// planner and every driver call. It never holds global state (spec.md §9).
type Context struct {
	log          *logrus.Entry
	errCh        chan error
	reportErrOne sync.Once
	wg           *sync.WaitGroup
}

// Create returns a new Context and a function that waits for every
// background worker spawned from it (and its children) to finish, returning
// nil on clean completion or the first error reported by any worker.
func Create(log *logrus.Logger) (Context, func(ctx context.Context) error) {
	c := Context{
		log:   log.WithField("span", uuid.NewString()),
		errCh: make(chan error, 1),
		wg:    &sync.WaitGroup{},
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	wait := func(ctx context.Context) error {
		select {
		case err := <-c.errCh:
			return err
		case <-done:
			select {
			case err := <-c.errCh:
				return err
			default:
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c, wait
}

// Log returns the logger associated with this Context.
func (c Context) Log() *logrus.Entry {
	return c.log
}

// Child returns a new Context that shares this Context's error channel and
// worker group, but carries additional structured logging fields -- the Go
// analog of context.rs's slog `child` with an `o!` key-value set.
func (c Context) Child(fields logrus.Fields) Context {
	return Context{
		log:   c.log.WithFields(fields),
		errCh: c.errCh,
		wg:    c.wg,
	}
}

// SpawnWorker runs fn in a background goroutine. If fn returns an error, it
// is sent to the shared error channel on a best-effort basis: since the
// channel has capacity 1, a second and later error is dropped and logged at
// debug level instead of blocking the worker forever (spec.md §7).
func (c Context) SpawnWorker(fn func(ctx context.Context) error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := fn(context.Background()); err != nil {
			select {
			case c.errCh <- err:
			default:
				c.log.WithError(err).Debug("suppressing additional background worker error")
			}
		}
	}()
}

// SpawnProcess monitors an already-started *exec.Cmd the way SpawnWorker
// monitors a future: a non-zero exit, or a Wait error, is reported as a
// worker failure named by name.
func (c Context) SpawnProcess(name string, cmd *exec.Cmd) {
	c.SpawnWorker(func(context.Context) error {
		if err := cmd.Wait(); err != nil {
			return fmt.Errorf("%s failed: %w", name, err)
		}
		return nil
	})
}
