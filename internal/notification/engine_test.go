package notification_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/scraping050/proyecto-garantias-sub001/internal/notification"
	"github.com/scraping050/proyecto-garantias-sub001/internal/notification/notificationmocks"
)

type memoryCache struct {
	mu      sync.Mutex
	records []notification.Record
	saves   int
}

func (c *memoryCache) Load(context.Context) ([]notification.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notification.Record(nil), c.records...), nil
}

func (c *memoryCache) Save(_ context.Context, records []notification.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = records
	c.saves++
	return nil
}

func (c *memoryCache) saved() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saves == 0 {
		return nil
	}
	return ids(c.records)
}

// slowCache holds Load until gate is closed.
type slowCache struct {
	gate    chan struct{}
	once    sync.Once
	started chan struct{}
}

func (c *slowCache) loading() chan struct{} {
	c.once.Do(func() {
		c.started = make(chan struct{})
	})
	return c.started
}

func (c *slowCache) Load(ctx context.Context) ([]notification.Record, error) {
	close(c.loading())
	select {
	case <-c.gate:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *slowCache) Save(context.Context, []notification.Record) error {
	return nil
}

var _ = Describe("Engine", func() {

	var (
		ctrl    *gomock.Controller
		api     *notificationmocks.MockAPI
		engine  *notification.Engine
		opts    []notification.EngineOption
		listing notification.Snapshot
		mu      sync.Mutex
		failing bool
	)

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		api = notificationmocks.NewMockAPI(ctrl)
		listing = notification.Snapshot{Records: []notification.Record{rec(1, false, at(1)), rec(2, false, at(0))}, AsOf: at(5)}
		failing = false
		opts = []notification.EngineOption{
			notification.WithMutationRetries(0),
			notification.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
		}
		api.EXPECT().List(gomock.Any()).DoAndReturn(func(context.Context) (notification.Snapshot, error) {
			mu.Lock()
			defer mu.Unlock()
			if failing {
				return notification.Snapshot{}, &notification.NetworkError{Op: "list notifications", Err: errors.New("offline")}
			}
			return listing, nil
		}).AnyTimes()
	})

	JustBeforeEach(func() {
		engine = notification.NewEngine(api, opts...)
	})

	Context("Lifecycle", func() {
		It("should not run before anyone asks for it", func() {
			Expect(engine.Status().Running).To(BeFalse())
			Expect(engine.View(notification.Filter{})).To(BeEmpty())
		})

		It("should start with the first handle and stop with the last", func() {
			first := engine.Acquire(time.Minute)
			second := engine.Acquire(0)
			Eventually(func() []int64 { return ids(engine.View(notification.Filter{})) }).Should(Equal([]int64{1, 2}))
			Expect(engine.Status().Running).To(BeTrue())

			first.Release()
			Expect(engine.Status().Running).To(BeTrue())
			second.Release()
			second.Release()
			Expect(engine.Status().Running).To(BeFalse())
		})

		It("should poll as often as the most demanding handle asks", func() {
			slow := engine.Acquire(time.Minute)
			fast := engine.Acquire(10 * time.Second)
			idle := engine.Acquire(0)
			Expect(engine.Status().Poll.Interval).To(Equal(10 * time.Second))

			fast.Release()
			Expect(engine.Status().Poll.Interval).To(Equal(time.Minute))
			slow.Release()
			Expect(engine.Status().Poll.Interval).To(BeZero())
			idle.Release()
		})

		It("should start again after a full stop", func() {
			engine.Acquire(0).Release()
			h := engine.Acquire(0)
			defer h.Release()
			Expect(engine.Status().Running).To(BeTrue())
			Eventually(engine.UnreadCount).Should(Equal(2))
		})
	})

	Context("Mutations", func() {
		It("should go through the coordinator and show up in the views", func() {
			h := engine.Acquire(0)
			defer h.Release()
			Eventually(engine.UnreadCount).Should(Equal(2))

			api.EXPECT().MarkRead(gomock.Any(), int64(1)).Return(nil, nil)
			api.EXPECT().Delete(gomock.Any(), int64(2)).Return(nil)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			changes := engine.Subscribe(ctx)

			Expect(engine.MarkAsRead(ctx, 1)).To(Succeed())
			Eventually(changes).Should(Receive())
			Expect(engine.Delete(ctx, 2)).To(Succeed())

			Expect(engine.UnreadCount()).To(BeZero())
			Expect(ids(engine.View(notification.Filter{}))).To(Equal([]int64{1}))
			Expect(engine.Summary().Total).To(Equal(1))
		})

		It("should ask for a fresh snapshot when mark all fails", func() {
			h := engine.Acquire(0)
			defer h.Release()
			Eventually(engine.UnreadCount).Should(Equal(2))

			api.EXPECT().MarkAllRead(gomock.Any()).Return(&notification.NetworkError{Op: "mark all", Err: errors.New("offline")})
			Expect(engine.MarkAllAsRead(context.Background())).NotTo(Succeed())
			Eventually(engine.UnreadCount).Should(Equal(2))
		})
	})

	Context("With a cache", func() {
		var cache *memoryCache

		BeforeEach(func() {
			cache = &memoryCache{records: []notification.Record{rec(9, false, at(-10))}}
			opts = append(opts, notification.WithCache(cache))
		})

		It("should serve cached records until the server answers", func() {
			mu.Lock()
			failing = true
			mu.Unlock()

			h := engine.Acquire(0)
			defer h.Release()
			Eventually(func() []int64 { return ids(engine.View(notification.Filter{})) }).Should(Equal([]int64{9}))
			Consistently(func() []int64 { return ids(engine.View(notification.Filter{})) }).Should(Equal([]int64{9}))
		})

		It("should let the first snapshot replace the cache and persist it", func() {
			h := engine.Acquire(0)
			defer h.Release()
			Eventually(func() []int64 { return ids(engine.View(notification.Filter{})) }).Should(Equal([]int64{1, 2}))
			Eventually(cache.saved).Should(Equal([]int64{1, 2}))
		})
	})

	Context("With a slow cache", func() {
		var cache *slowCache

		BeforeEach(func() {
			cache = &slowCache{gate: make(chan struct{})}
			opts = append(opts, notification.WithCache(cache))
		})

		It("should answer status while the cache is still loading", func() {
			acquired := make(chan *notification.Handle, 1)
			go func() {
				acquired <- engine.Acquire(0)
			}()
			var h *notification.Handle
			Eventually(acquired).Should(Receive(&h))
			Eventually(cache.loading).Should(BeClosed())

			status := make(chan notification.Status, 1)
			go func() {
				status <- engine.Status()
			}()
			Eventually(status).Should(Receive(HaveField("Running", BeTrue())))

			close(cache.gate)
			Eventually(func() []int64 { return ids(engine.View(notification.Filter{})) }).Should(Equal([]int64{1, 2}))
			h.Release()
		})
	})

	Context("With push", func() {
		var stream *fakeStream

		BeforeEach(func() {
			stream = &fakeStream{}
			opts = append(opts, notification.WithPush(stream))
		})

		It("should report the push connection", func() {
			Expect(engine.Status().PushEnabled).To(BeTrue())
			h := engine.Acquire(0)
			Eventually(func() bool { return engine.Status().PushConnected }).Should(BeTrue())

			stream.last().events <- notification.Event{Kind: notification.EventCreated, Record: rec(3, false, at(10)), ID: 3}
			Eventually(engine.UnreadCount).Should(Equal(3))

			h.Release()
			Expect(engine.Status().PushConnected).To(BeFalse())
		})
	})
})
