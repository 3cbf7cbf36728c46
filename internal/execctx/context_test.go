package execctx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func newTestContext() (Context, func(context.Context) error) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return Create(log)
}

func TestContextCleanCompletion(t *testing.T) {
	c, wait := newTestContext()
	c.SpawnWorker(func(context.Context) error { return nil })
	c.SpawnWorker(func(context.Context) error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := wait(ctx); err != nil {
		t.Fatalf("expected clean completion, got %v", err)
	}
}

func TestContextReportsFirstError(t *testing.T) {
	c, wait := newTestContext()
	boom := errors.New("boom")
	c.SpawnWorker(func(context.Context) error { return boom })
	c.SpawnWorker(func(context.Context) error {
		time.Sleep(100 * time.Millisecond)
		return errors.New("second error, suppressed")
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := wait(ctx)
	if !errors.Is(err, boom) && err.Error() != boom.Error() {
		t.Fatalf("expected first error %v, got %v", boom, err)
	}
}

func TestChildSharesErrorChannel(t *testing.T) {
	c, wait := newTestContext()
	child := c.Child(logrus.Fields{"driver": "postgres"})
	boom := errors.New("child failure")
	child.SpawnWorker(func(context.Context) error { return boom })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := wait(ctx); err == nil {
		t.Fatal("expected child worker error to propagate to parent's wait")
	}
}
