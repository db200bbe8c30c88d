package notification

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// Cache keeps the last known records across restarts. Cached records are
// only ever merged as deltas; the first snapshot stays authoritative.
type Cache interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
}

const cacheTimeout = 10 * time.Second

type Status struct {
	Poll          PollStatus `json:"poll"`
	PushEnabled   bool       `json:"pushEnabled"`
	PushConnected bool       `json:"pushConnected"`
	Version       uint64     `json:"version"`
	Running       bool       `json:"running"`
}

// Engine owns the one Store of the process and the workers feeding it.
// Consumers hold a Handle while they need live data; workers start with
// the first handle and stop with the last one.
type Engine struct {
	store    *Store
	poller   *Poller
	listener *Listener
	coord    *Coordinator
	cache    Cache

	backOff func() backoff.BackOff

	mu      sync.Mutex
	holders map[uint64]time.Duration
	nextID  uint64
	cancel  context.CancelFunc
	running *sync.WaitGroup
	// stopping is the previous generation, possibly still draining
	stopping *sync.WaitGroup
}

type EngineOption func(*Engine)

func WithPush(stream PushStream) EngineOption {
	return func(e *Engine) {
		if stream != nil {
			e.listener = NewListener(e.store, stream)
		}
	}
}

func WithCache(cache Cache) EngineOption {
	return func(e *Engine) {
		e.cache = cache
	}
}

func WithFetchTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.poller.SetFetchTimeout(d)
	}
}

func WithMutationRetries(n uint64) EngineOption {
	return func(e *Engine) {
		e.coord.SetRetries(n)
	}
}

// WithBackOff replaces the retry policy of both mutations and push
// reconnects.
func WithBackOff(fn func() backoff.BackOff) EngineOption {
	return func(e *Engine) {
		e.backOff = fn
	}
}

func NewEngine(api API, opts ...EngineOption) *Engine {
	store := NewStore()
	poller := NewPoller(store, api, 0)
	e := &Engine{
		store:   store,
		poller:  poller,
		coord:   NewCoordinator(store, api, poller),
		holders: make(map[uint64]time.Duration),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.backOff != nil {
		e.coord.SetBackOff(e.backOff)
		if e.listener != nil {
			e.listener.SetReconnectBackOff(e.backOff)
		}
	}
	return e
}

type Handle struct {
	engine *Engine
	id     uint64
	once   sync.Once
}

// Acquire registers a consumer that wants the store refreshed every
// pollEvery (0 means push and on-demand refreshes only). The effective
// interval is the shortest positive one among live handles.
func (e *Engine) Acquire(pollEvery time.Duration) *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	h := &Handle{engine: e, id: e.nextID}
	e.holders[h.id] = pollEvery
	e.poller.SetInterval(e.intervalLocked())
	if e.cancel == nil {
		e.startLocked()
	}
	return h
}

// Release is safe to call more than once.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.engine.release(h.id)
	})
}

func (e *Engine) release(id uint64) {
	e.mu.Lock()
	delete(e.holders, id)
	e.poller.SetInterval(e.intervalLocked())
	if len(e.holders) > 0 || e.cancel == nil {
		e.mu.Unlock()
		return
	}
	cancel, running := e.cancel, e.running
	e.cancel, e.running, e.stopping = nil, nil, running
	e.mu.Unlock()

	cancel()
	running.Wait()
	log.Info().Msg("notification engine stopped")
}

func (e *Engine) intervalLocked() time.Duration {
	var interval time.Duration
	for _, d := range e.holders {
		if d > 0 && (interval == 0 || d < interval) {
			interval = d
		}
	}
	return interval
}

// startLocked begins a fresh generation of workers once the previous one
// has fully stopped.
func (e *Engine) startLocked() {
	if e.stopping != nil {
		e.stopping.Wait()
		e.stopping = nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	e.cancel, e.running = cancel, wg

	if e.cache != nil {
		changes := e.store.Subscribe(ctx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.persist(changes)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		// cached records go in before the first snapshot so it can prune them
		if e.cache != nil {
			e.warmStart(ctx)
		}
		e.poller.Run(ctx)
	}()
	if e.listener != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.listener.Run(ctx)
		}()
	}
	log.Info().Dur("poll_interval", e.intervalLocked()).Bool("push", e.listener != nil).Msg("notification engine started")
}

func (e *Engine) warmStart(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, cacheTimeout)
	defer cancel()
	records, err := e.cache.Load(ctx)
	if err != nil {
		log.Err(err).Msg("could not load cached notifications")
		return
	}
	e.store.Merge(Batch{Mode: ModeDelta, Records: records})
}

func (e *Engine) persist(changes <-chan Change) {
	for range changes {
		saveCtx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
		if err := e.cache.Save(saveCtx, e.store.Records()); err != nil {
			log.Err(err).Msg("could not save notifications to cache")
		}
		cancel()
	}
}

// Refresh forces an immediate snapshot, e.g. when a consumer is opened.
func (e *Engine) Refresh() {
	e.poller.Refresh()
}

func (e *Engine) View(f Filter) []Record {
	return Project(e.store.Records(), f)
}

func (e *Engine) UnreadCount() int {
	return e.store.UnreadCount()
}

func (e *Engine) Summary() Summary {
	return Summarize(e.store.Records())
}

func (e *Engine) Subscribe(ctx context.Context) <-chan Change {
	return e.store.Subscribe(ctx)
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	running := e.cancel != nil
	e.mu.Unlock()
	st := Status{
		Poll:        e.poller.Status(),
		PushEnabled: e.listener != nil,
		Version:     e.store.Version(),
		Running:     running,
	}
	if e.listener != nil {
		st.PushConnected = e.listener.Connected()
	}
	return st
}

func (e *Engine) MarkAsRead(ctx context.Context, id int64) error {
	return e.coord.MarkAsRead(ctx, id)
}

func (e *Engine) MarkAllAsRead(ctx context.Context) error {
	return e.coord.MarkAllAsRead(ctx)
}

func (e *Engine) Delete(ctx context.Context, id int64) error {
	return e.coord.Delete(ctx, id)
}
