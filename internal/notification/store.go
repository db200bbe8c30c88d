package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type Mode int8

const (
	// ModeSnapshot treats the batch as the complete server state.
	ModeSnapshot Mode = iota
	// ModeDelta only adds or updates.
	ModeDelta
)

// Batch is the single input shape accepted by Store.Merge. AsOf only
// matters for snapshots: records created after it are never removed by
// absence, since the snapshot could not have known about them.
type Batch struct {
	Mode    Mode
	Records []Record
	AsOf    time.Time
}

// tombstoneRetention is how long after a deletion a snapshot must be taken
// before the deleted ID is forgotten. Events older than that are no longer
// expected to arrive.
const tombstoneRetention = time.Hour

type Change struct {
	Version uint64
}

// entry is the last server-confirmed copy of a record plus the local
// mutations still waiting for an answer. A pending read shows the record
// as read, a pending delete hides it; base stays intact for rollback.
type entry struct {
	base          Record
	readPending   uint64
	deletePending uint64
}

func (e *entry) pending() bool {
	return e.readPending != 0 || e.deletePending != 0
}

func (e *entry) observe() (Record, bool) {
	if e == nil {
		return Record{}, false
	}
	r := e.base
	if e.readPending != 0 {
		r.IsRead = true
	}
	return r, e.deletePending == 0
}

func differs(before Record, wasVisible bool, after Record, visible bool) bool {
	if wasVisible != visible {
		return true
	}
	return visible && !before.equal(after)
}

// Store is the single source of truth for notification records. Every
// writer goes through Merge, Remove or the coordinator's overlay methods,
// which all run under one lock, so the conflict rule lives in one place.
type Store struct {
	mu         sync.Mutex
	entries    map[int64]*entry
	tombstones map[int64]time.Time
	token      uint64
	version    uint64

	subMu sync.Mutex
	subs  map[chan Change]struct{}
}

func NewStore() *Store {
	return &Store{
		entries:    make(map[int64]*entry),
		tombstones: make(map[int64]time.Time),
		subs:       make(map[chan Change]struct{}),
	}
}

// Merge applies a batch from any update source and reports whether the
// observable state changed. Subscribers are only woken on change.
func (s *Store) Merge(b Batch) bool {
	return s.update(func() bool {
		changed := false
		var seen map[int64]struct{}
		if b.Mode == ModeSnapshot {
			seen = make(map[int64]struct{}, len(b.Records))
		}
		for _, r := range b.Records {
			if !r.valid() {
				log.Warn().Int64("id", r.ID).Str("title", r.Title).Msg("dropping malformed notification record")
				continue
			}
			if seen != nil {
				seen[r.ID] = struct{}{}
			}
			if s.upsertLocked(r) {
				changed = true
			}
		}
		if b.Mode == ModeSnapshot && s.pruneLocked(seen, b.AsOf) {
			changed = true
		}
		return changed
	})
}

// Remove drops a record the server reported as deleted.
func (s *Store) Remove(id int64) bool {
	if id <= 0 {
		return false
	}
	return s.update(func() bool {
		return s.removeLocked(id)
	})
}

// Records returns the visible records, newest first.
func (s *Store) Records() []Record {
	s.mu.Lock()
	out := make([]Record, 0, len(s.entries))
	for _, e := range s.entries {
		if r, visible := e.observe(); visible {
			out = append(out, r)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].before(out[j])
	})
	return out
}

func (s *Store) Get(id int64) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[id].observe()
}

func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if r, visible := e.observe(); visible && !r.IsRead {
			n++
		}
	}
	return n
}

func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Subscribe returns a channel that receives the latest change version
// whenever the observable state changes. It holds at most one pending
// value; a slow reader only ever sees the newest version. The channel is
// closed when ctx is done.
func (s *Store) Subscribe(ctx context.Context) <-chan Change {
	ch := make(chan Change, 1)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()
	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			s.subMu.Lock()
			delete(s.subs, ch)
			close(ch)
			s.subMu.Unlock()
		}()
	}
	return ch
}

func (s *Store) update(fn func() bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !fn() {
		return false
	}
	s.version++
	s.publish(Change{Version: s.version})
	return true
}

func (s *Store) publish(c Change) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- c:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- c:
		default:
		}
	}
}

func (s *Store) upsertLocked(r Record) bool {
	if _, dead := s.tombstones[r.ID]; dead {
		return false
	}
	e, ok := s.entries[r.ID]
	if !ok {
		s.entries[r.ID] = &entry{base: r}
		return true
	}
	if !r.newerThan(e.base) && (e.pending() || e.base.newerThan(r)) {
		return false
	}
	before, wasVisible := e.observe()
	e.base = r
	after, visible := e.observe()
	return differs(before, wasVisible, after, visible)
}

func (s *Store) pruneLocked(seen map[int64]struct{}, asOf time.Time) bool {
	changed := false
	for id, e := range s.entries {
		if _, ok := seen[id]; ok {
			continue
		}
		if !asOf.IsZero() && e.base.CreatedAt.After(asOf) {
			continue
		}
		if _, visible := e.observe(); visible {
			changed = true
		}
		delete(s.entries, id)
	}
	if asOf.IsZero() {
		return changed
	}
	for id, deletedAt := range s.tombstones {
		if _, ok := seen[id]; !ok && asOf.Sub(deletedAt) > tombstoneRetention {
			delete(s.tombstones, id)
		}
	}
	return changed
}

func (s *Store) removeLocked(id int64) bool {
	s.tombstones[id] = time.Now()
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	delete(s.entries, id)
	_, visible := e.observe()
	return visible
}

func (s *Store) nextToken() uint64 {
	s.token++
	return s.token
}

// beginRead marks id as read locally. ok is false when there is nothing
// to do: the record is unknown, hidden, or already read.
func (s *Store) beginRead(id int64) (token uint64, ok bool) {
	s.update(func() bool {
		e, found := s.entries[id]
		if r, visible := e.observe(); !found || !visible || r.IsRead {
			return false
		}
		token = s.nextToken()
		e.readPending = token
		ok = true
		return true
	})
	return token, ok
}

// beginReadAll marks every visible unread record as read under one token.
func (s *Store) beginReadAll() (token uint64, ids []int64) {
	s.update(func() bool {
		for id, e := range s.entries {
			if r, visible := e.observe(); visible && !r.IsRead {
				if token == 0 {
					token = s.nextToken()
				}
				e.readPending = token
				ids = append(ids, id)
			}
		}
		return len(ids) > 0
	})
	return token, ids
}

// settleRead folds a pending read into the base copy. The next remote copy
// that is not older replaces it, which is what lets a snapshot overwrite
// reads the server never acknowledged.
func (s *Store) settleRead(token uint64, ids ...int64) bool {
	return s.update(func() bool {
		changed := false
		for _, id := range ids {
			e, ok := s.entries[id]
			if !ok || e.readPending != token {
				continue
			}
			before, wasVisible := e.observe()
			e.readPending = 0
			e.base.IsRead = true
			after, visible := e.observe()
			if differs(before, wasVisible, after, visible) {
				changed = true
			}
		}
		return changed
	})
}

func (s *Store) revertRead(token uint64, ids ...int64) bool {
	return s.update(func() bool {
		changed := false
		for _, id := range ids {
			e, ok := s.entries[id]
			if !ok || e.readPending != token {
				continue
			}
			before, wasVisible := e.observe()
			e.readPending = 0
			after, visible := e.observe()
			if differs(before, wasVisible, after, visible) {
				changed = true
			}
		}
		return changed
	})
}

// beginDelete hides id locally while keeping its last known state for a
// possible rollback.
func (s *Store) beginDelete(id int64) (token uint64, ok bool) {
	s.update(func() bool {
		e, found := s.entries[id]
		if _, visible := e.observe(); !found || !visible {
			return false
		}
		token = s.nextToken()
		e.deletePending = token
		ok = true
		return true
	})
	return token, ok
}

func (s *Store) confirmDelete(id int64, token uint64) bool {
	return s.update(func() bool {
		e, ok := s.entries[id]
		if ok && e.deletePending != token {
			return false
		}
		return s.removeLocked(id)
	})
}

func (s *Store) revertDelete(id int64, token uint64) bool {
	return s.update(func() bool {
		e, ok := s.entries[id]
		if !ok || e.deletePending != token {
			return false
		}
		e.deletePending = 0
		_, visible := e.observe()
		return visible
	})
}
