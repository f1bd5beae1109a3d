package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	"remindbot/internal/runtime/supervisor"
	logx "remindbot/pkg/logx"
)

// Notifier delivers a fired reminder to its owner.
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, r Reminder) error

func (f NotifierFunc) Notify(ctx context.Context, r Reminder) error { return f(ctx, r) }

// DefaultSweepSchedule re-arms reminders that have no countdown.
const DefaultSweepSchedule = "@every 1m"

// sweepParser accepts five or six fields and descriptors such as "@every 1m".
var sweepParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler arms one independent countdown per reminder. When a countdown
// expires the reminder is removed from the store, then the notifier runs.
// Canceling a reminder does not stop its countdown; the removal on fire
// simply finds nothing and no notification is sent.
type Scheduler struct {
	store  *Store
	notify Notifier
	log    logx.Logger
	bus    *eventbus.Bus
	now    func() time.Time

	sweepSpec string

	mu      sync.Mutex
	running bool
	sup     *supervisor.Supervisor
	c       *cron.Cron
	timers  map[string]*time.Timer

	fired   atomic.Uint64
	skipped atomic.Uint64
}

type SchedulerOption func(*Scheduler)

func WithSchedulerLogger(log logx.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = log }
}

func WithSchedulerEvents(bus *eventbus.Bus) SchedulerOption {
	return func(s *Scheduler) { s.bus = bus }
}

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSweepSchedule sets the cron spec of the reconcile sweep. An empty spec
// disables the sweep.
func WithSweepSchedule(spec string) SchedulerOption {
	return func(s *Scheduler) { s.sweepSpec = strings.TrimSpace(spec) }
}

func NewScheduler(store *Store, n Notifier, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:     store,
		notify:    n,
		now:       time.Now,
		sweepSpec: DefaultSweepSchedule,
		timers:    map[string]*time.Timer{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

// Start arms a countdown for every reminder already in the store (loaded
// from the snapshot) and starts the reconcile sweep. Reminders whose time
// has passed fire immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}

	var c *cron.Cron
	if s.sweepSpec != "" {
		c = cron.New(cron.WithParser(sweepParser), cron.WithLocation(time.Local))
		if _, err := c.AddFunc(s.sweepSpec, func() { s.Reconcile() }); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("sweep schedule %q: %w", s.sweepSpec, err)
		}
	}

	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))
	s.c = c
	s.running = true
	s.mu.Unlock()

	armed := s.Reconcile()
	if c != nil {
		c.Start()
	}
	s.log.Info("scheduler started", logx.Int("armed", armed), logx.String("sweep", s.sweepSpec))
	return nil
}

// Stop stops the sweep and every pending countdown, then waits for
// in-flight notifications. The store is left untouched so the next start
// re-arms everything.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	c, sup := s.c, s.sup
	s.c = nil
	for _, t := range s.timers {
		_ = t.Stop()
	}
	s.timers = map[string]*time.Timer{}
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	err := sup.Stop(ctx)
	s.log.Info("scheduler stopped", logx.Uint64("fired", s.fired.Load()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Arm starts the countdown for r. Arming an id that already has a pending
// countdown is a no-op.
func (s *Scheduler) Arm(r Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNotRunning
	}
	s.armLocked(r)
	return nil
}

func (s *Scheduler) armLocked(r Reminder) bool {
	if _, ok := s.timers[r.ID]; ok {
		return false
	}
	delay := max(r.FireAt.Sub(s.now()), 0)
	s.timers[r.ID] = time.AfterFunc(delay, func() { s.expire(r) })
	s.log.Debug("countdown armed", logx.String("id", r.ID), logx.Int64("owner", r.Owner), logx.Duration("in", delay))
	return true
}

func (s *Scheduler) expire(r Reminder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	delete(s.timers, r.ID)
	s.sup.Go("reminder.fire", func(ctx context.Context) error {
		s.fire(ctx, r)
		return nil
	})
}

func (s *Scheduler) fire(ctx context.Context, r Reminder) {
	got, ok := s.store.RemoveOnFire(ctx, r.Owner, r.ID)
	if !ok {
		s.skipped.Add(1)
		s.log.Debug("reminder gone before firing", logx.String("id", r.ID), logx.Int64("owner", r.Owner))
		return
	}
	s.fired.Add(1)
	publish(s.bus, EventFired, s.now(), Lifecycle{Reminder: got})

	if s.notify == nil {
		return
	}
	if err := s.notify.Notify(ctx, got); err != nil {
		s.log.Warn("reminder notification failed", logx.String("id", got.ID), logx.Int64("owner", got.Owner), logx.Err(err))
	}
}

// Reconcile arms every stored reminder that has no countdown and returns how
// many were armed.
func (s *Scheduler) Reconcile() int {
	all := s.store.All()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return 0
	}
	n := 0
	for _, rs := range all {
		for _, r := range rs {
			if s.armLocked(r) {
				n++
			}
		}
	}
	if n > 0 {
		s.log.Debug("sweep armed reminders", logx.Int("count", n))
	}
	return n
}

// Armed is the number of countdowns still waiting to expire.
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stats are lifetime counters of fired and skipped countdowns.
type Stats struct {
	Armed   int
	Fired   uint64
	Skipped uint64
}

func (s *Scheduler) Stats() Stats {
	return Stats{Armed: s.Armed(), Fired: s.fired.Load(), Skipped: s.skipped.Load()}
}
