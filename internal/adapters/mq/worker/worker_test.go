package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/signpost/internal/adapters/mq/queue"
	"github.com/okian/signpost/internal/adapters/mq/worker"
	"github.com/okian/signpost/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type recorder struct {
	mu    sync.Mutex
	seen  []string
	fail  map[string]bool
	delay time.Duration
}

func (r *recorder) Handle(_ context.Context, raw queue.Item) error { //nolint:gocritic // test double
	time.Sleep(r.delay)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[raw.Title] {
		return errors.New("store unavailable")
	}
	r.seen = append(r.seen, raw.Title)
	return nil
}

func (r *recorder) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker over a queue", t, func() {
		_ = logger.Init()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		rec := &recorder{fail: map[string]bool{"bad": true}}
		w := worker.NewInMemoryWorker(q, rec, worker.WithName("test-worker"))
		go w.Run(ctx)

		convey.Convey("It hands every claim to the handler", func() {
			convey.So(q.Enqueue(ctx, queue.Item{Title: "a"}), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, queue.Item{Title: "bad"}), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, queue.Item{Title: "b"}), convey.ShouldBeNil)

			convey.So(q.Close(), convey.ShouldBeNil)
			sctx, scancel := context.WithTimeout(ctx, time.Second)
			defer scancel()
			deadline := time.Now().Add(time.Second)
			for len(rec.titles()) < 2 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			convey.So(rec.titles(), convey.ShouldResemble, []string{"a", "b"})
			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of workers", t, func() {
		_ = logger.Init()
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		rec := &recorder{delay: time.Millisecond}
		p := worker.NewPool(4, q, rec)
		convey.So(p.Size(), convey.ShouldEqual, 4)
		p.Start(ctx)

		for i := 0; i < 40; i++ {
			convey.So(q.Enqueue(ctx, queue.Item{Title: string(rune('A' + i))}), convey.ShouldBeNil)
		}

		convey.Convey("Shutdown drains the queue before returning", func() {
			convey.So(p.Shutdown(ctx), convey.ShouldBeNil)
			convey.So(rec.titles(), convey.ShouldHaveLength, 40)
		})
	})

	convey.Convey("A HandlerFunc adapts a plain function", t, func() {
		var called bool
		h := worker.HandlerFunc(func(context.Context, queue.Item) error {
			called = true
			return nil
		})
		convey.So(h.Handle(context.Background(), queue.Item{}), convey.ShouldBeNil)
		convey.So(called, convey.ShouldBeTrue)
	})
}
