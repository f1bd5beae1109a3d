package reminder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/eventbus"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// Persister is the durable side of the store. storage.Store satisfies it.
type Persister interface {
	SaveReminders(ctx context.Context, snap storage.Snapshot) error
	LoadReminders(ctx context.Context) (storage.Snapshot, error)
}

// Entry is a reminder together with its 1-based position in the owner's list.
type Entry struct {
	Position int
	Reminder
}

// Store holds every pending reminder, keyed by owner, in insertion order.
// Operations on one owner are serialized; different owners never contend
// beyond the brief map lookup. Every mutation rewrites the whole snapshot.
type Store struct {
	log     logx.Logger
	persist Persister
	bus     *eventbus.Bus
	now     func() time.Time

	maxPerOwner atomic.Int64

	mu     sync.RWMutex
	owners map[int64]*ownerList

	// persistMu orders snapshot capture and write, so the newest capture is
	// always the last one written.
	persistMu     sync.Mutex
	persistErrors atomic.Uint64
}

type ownerList struct {
	mu    sync.Mutex
	items []Reminder
}

type StoreOption func(*Store)

func WithStoreLogger(log logx.Logger) StoreOption { return func(s *Store) { s.log = log } }

func WithStoreEvents(bus *eventbus.Bus) StoreOption { return func(s *Store) { s.bus = bus } }

// WithClock overrides time.Now for due filtering.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMaxPerOwner caps pending reminders per owner; n <= 0 means unlimited.
func WithMaxPerOwner(n int) StoreOption {
	return func(s *Store) { s.maxPerOwner.Store(int64(n)) }
}

// NewStore returns an empty store. A nil persister keeps state in memory only.
func NewStore(p Persister, opts ...StoreOption) *Store {
	s := &Store{
		persist: p,
		now:     time.Now,
		owners:  map[int64]*ownerList{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

// SetMaxPerOwner updates the per-owner cap at runtime.
func (s *Store) SetMaxPerOwner(n int) { s.maxPerOwner.Store(int64(n)) }

func (s *Store) MaxPerOwner() int { return int(s.maxPerOwner.Load()) }

// PersistErrors counts failed snapshot writes since start.
func (s *Store) PersistErrors() uint64 { return s.persistErrors.Load() }

func (s *Store) list(owner int64, create bool) *ownerList {
	s.mu.RLock()
	l := s.owners[owner]
	s.mu.RUnlock()
	if l != nil || !create {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l = s.owners[owner]; l == nil {
		l = &ownerList{}
		s.owners[owner] = l
	}
	return l
}

// Add appends r to its owner's list. A missing ID is generated. A failed
// snapshot write is logged and does not undo the append.
func (s *Store) Add(ctx context.Context, r Reminder) (Reminder, error) {
	if r.Text == "" {
		return Reminder{}, ErrMissingReminderText
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.FireAt = r.FireAt.Round(0).Truncate(time.Microsecond)

	l := s.list(r.Owner, true)
	l.mu.Lock()
	if limit := int(s.maxPerOwner.Load()); limit > 0 && len(l.items) >= limit {
		l.mu.Unlock()
		return Reminder{}, fmt.Errorf("%w: limit %d", ErrTooManyReminders, limit)
	}
	l.items = append(l.items, r)
	l.mu.Unlock()

	s.persistSnapshot(ctx, "add", r.Owner)
	publish(s.bus, EventCreated, s.now(), Lifecycle{Reminder: r})
	return r, nil
}

// List returns the owner's reminders that are not yet due. Positions are
// those of the full list, so a due-but-unfired reminder still occupies its
// number.
func (s *Store) List(owner int64) []Entry {
	l := s.list(owner, false)
	if l == nil {
		return nil
	}
	now := s.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.items))
	for i, r := range l.items {
		if r.Due(now) {
			continue
		}
		out = append(out, Entry{Position: i + 1, Reminder: r})
	}
	return out
}

// Len is the number of reminders held for owner, due ones included.
func (s *Store) Len(owner int64) int {
	l := s.list(owner, false)
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// RemoveByPosition removes the reminder at 1-based position pos.
func (s *Store) RemoveByPosition(ctx context.Context, owner int64, pos int) (Reminder, error) {
	l := s.list(owner, false)
	if l == nil {
		return Reminder{}, fmt.Errorf("%w: %d", ErrNoSuchPosition, pos)
	}

	l.mu.Lock()
	if pos < 1 || pos > len(l.items) {
		l.mu.Unlock()
		return Reminder{}, fmt.Errorf("%w: %d", ErrNoSuchPosition, pos)
	}
	r := l.items[pos-1]
	l.items = append(l.items[:pos-1:pos-1], l.items[pos:]...)
	l.mu.Unlock()

	s.persistSnapshot(ctx, "cancel", owner)
	publish(s.bus, EventRemoved, s.now(), Lifecycle{Reminder: r, Reason: ReasonCanceled})
	return r, nil
}

// RemoveOnFire removes the reminder with the given id. It reports false when
// the reminder is already gone (canceled or cleared before it fired).
func (s *Store) RemoveOnFire(ctx context.Context, owner int64, id string) (Reminder, bool) {
	l := s.list(owner, false)
	if l == nil {
		return Reminder{}, false
	}

	l.mu.Lock()
	idx := -1
	for i := range l.items {
		if l.items[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		l.mu.Unlock()
		return Reminder{}, false
	}
	r := l.items[idx]
	l.items = append(l.items[:idx:idx], l.items[idx+1:]...)
	l.mu.Unlock()

	s.persistSnapshot(ctx, "fire", owner)
	return r, true
}

// Contains reports whether the reminder is still pending.
func (s *Store) Contains(owner int64, id string) bool {
	l := s.list(owner, false)
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].ID == id {
			return true
		}
	}
	return false
}

// Clear empties the owner's list and returns how many reminders it held.
func (s *Store) Clear(ctx context.Context, owner int64) (int, error) {
	l := s.list(owner, false)
	if l == nil {
		return 0, ErrAlreadyEmpty
	}

	l.mu.Lock()
	removed := l.items
	if len(removed) == 0 {
		l.mu.Unlock()
		return 0, ErrAlreadyEmpty
	}
	l.items = nil
	l.mu.Unlock()

	s.persistSnapshot(ctx, "clear", owner)
	now := s.now()
	for _, r := range removed {
		publish(s.bus, EventRemoved, now, Lifecycle{Reminder: r, Reason: ReasonCleared})
	}
	return len(removed), nil
}

// All returns a copy of every owner's list.
func (s *Store) All() map[int64][]Reminder {
	s.mu.RLock()
	lists := make(map[int64]*ownerList, len(s.owners))
	for owner, l := range s.owners {
		lists[owner] = l
	}
	s.mu.RUnlock()

	out := make(map[int64][]Reminder, len(lists))
	for owner, l := range lists {
		l.mu.Lock()
		if len(l.items) > 0 {
			out[owner] = append([]Reminder(nil), l.items...)
		}
		l.mu.Unlock()
	}
	return out
}

// Count is the total number of pending reminders.
func (s *Store) Count() int {
	n := 0
	for _, rs := range s.All() {
		n += len(rs)
	}
	return n
}

// Owners returns owner ids with at least one reminder, ascending.
func (s *Store) Owners() []int64 {
	all := s.All()
	out := make([]int64, 0, len(all))
	for owner := range all {
		out = append(out, owner)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Load replaces the in-memory state with the durable snapshot. On failure the
// store is left empty and an error wrapping ErrPersistenceLoad is returned;
// callers are expected to log it and carry on.
func (s *Store) Load(ctx context.Context) (int, error) {
	if s.persist == nil {
		return 0, nil
	}
	snap, err := s.persist.LoadReminders(ctx)
	if err != nil {
		s.mu.Lock()
		s.owners = map[int64]*ownerList{}
		s.mu.Unlock()
		s.log.Warn("reminder snapshot unreadable; starting empty", logx.Err(err))
		return 0, fmt.Errorf("%w: %w", ErrPersistenceLoad, err)
	}

	owners := make(map[int64]*ownerList, len(snap))
	n := 0
	for owner, recs := range snap {
		if len(recs) == 0 {
			continue
		}
		items := make([]Reminder, 0, len(recs))
		for _, rec := range recs {
			r := fromRecord(owner, rec)
			if r.ID == "" {
				r.ID = uuid.NewString()
			}
			items = append(items, r)
		}
		owners[owner] = &ownerList{items: items}
		n += len(items)
	}

	s.mu.Lock()
	s.owners = owners
	s.mu.Unlock()
	s.log.Info("reminders loaded", logx.Int("count", n), logx.Int("owners", len(owners)))
	return n, nil
}

// Snapshot converts the current state to its durable form.
func (s *Store) Snapshot() storage.Snapshot {
	all := s.All()
	snap := make(storage.Snapshot, len(all))
	for owner, rs := range all {
		recs := make([]storage.ReminderRecord, 0, len(rs))
		for _, r := range rs {
			recs = append(recs, r.record())
		}
		snap[owner] = recs
	}
	return snap
}

func (s *Store) persistSnapshot(ctx context.Context, op string, owner int64) {
	if s.persist == nil {
		return
	}
	if ctx == nil || ctx.Err() != nil {
		// A canceled request must not skip the write; the snapshot is shared.
		ctx = context.WithoutCancel(nonNil(ctx))
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if err := s.persist.SaveReminders(ctx, s.Snapshot()); err != nil {
		s.persistErrors.Add(1)
		err = errors.Join(ErrPersistenceWrite, err)
		s.log.Error("reminder snapshot write failed", logx.String("op", op), logx.Int64("owner", owner), logx.Err(err))
	}
}

func nonNil(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
