// Package app assembles the reminder bot: config, logging, storage, the
// reminder engine, the Telegram adapter and the command router.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor
	sups *supervisor.Registry

	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.Bus
	db   storage.Store

	adapter kit.Adapter
	router  *router.Router
	updates chan kit.Update

	reminders *reminder.Store
	sched     *reminder.Scheduler
	notif     *reminder.DirectNotifier
	audit     *auditor
}

// Done is closed once the app context ends, through Stop or a fatal error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err is the first fatal error, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.FailFast())
	a.sups.Set("app", a.sup)

	events, unsub := a.bus.Subscribe(256)
	a.sup.Go0("reminder.audit", func(c context.Context) {
		defer unsub()
		a.audit.run(c, events)
	})

	// Countdowns outlive the app context so Stop can let in-flight
	// notifications finish.
	if err := a.sched.Start(context.WithoutCancel(a.sup.Context())); err != nil {
		return err
	}
	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if p, ok := a.adapter.(interface{ Supervisor() *supervisor.Supervisor }); ok {
		a.sups.Set("telegram.adapter", p.Supervisor())
	}
	a.sup.Go("router", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})

	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		sub := a.cfgm.Subscribe(1)
		a.sup.Go0("config.apply", func(c context.Context) {
			defer a.cfgm.Unsubscribe(sub)
			prev := a.cfgm.Get()
			for {
				select {
				case <-c.Done():
					return
				case next, ok := <-sub:
					if !ok {
						return
					}
					a.applyConfig(prev, next)
					prev = next
				}
			}
		})
		a.sup.Go("config.watch", a.cfgm.Watch)
	}

	a.log.Info("app started", logx.Int("pending", a.reminders.Count()))
	return nil
}

// applyConfig pushes the hot-reloadable settings of next into the running
// components. Keys that need a restart are only reported.
func (a *App) applyConfig(prev, next *Config) {
	if next == nil {
		return
	}
	changes := config.Diff(prev, next)
	if len(changes) == 0 {
		a.log.Debug("config reload had no effective changes")
		return
	}

	setLogTarget(a.logs, next)
	a.logs.Apply(loggingConfig(next))
	a.router.SetOwners(next.Telegram.OwnerUserIDs)
	a.router.SetPrefixes(next.Reminders.CommandPrefixes)
	a.reminders.SetMaxPerOwner(next.Reminders.MaxPerOwner)
	a.notif.SetRate(next.Reminders.NotifyRatePerSec)

	var live, later []string
	for _, c := range changes {
		if c.Restart {
			later = append(later, c.Key)
		} else {
			live = append(live, c.Key)
		}
	}
	if len(later) > 0 {
		a.log.Warn("config changes need a restart", logx.String("keys", strings.Join(later, ",")))
	}
	if len(live) > 0 {
		a.log.Info("config applied", logx.String("keys", strings.Join(live, ",")))
	}
}

// Stop shuts components down in dependency order. Each step gets its own
// budget so a stuck one cannot eat the whole deadline.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	a.stopStep(ctx, "scheduler", 3*time.Second, a.sched.Stop)
	a.stopStep(ctx, "adapter", 2*time.Second, a.adapter.Stop)
	a.stopStep(ctx, "supervisor", 3*time.Second, func(c context.Context) error {
		if err := a.sup.Wait(c); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	a.stopStep(ctx, "storage", time.Second, func(context.Context) error {
		if a.db == nil {
			return nil
		}
		return a.db.Close()
	})

	a.sups.Delete("app")
	a.sups.Delete("telegram.adapter")
	a.log.Info("stopped")
	return a.logs.Close()
}

func (a *App) stopStep(ctx context.Context, name string, budget time.Duration, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	began := time.Now()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("panic: %v", p)
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step failed", logx.String("step", name), logx.Err(err))
			return
		}
		a.log.Debug("stop step done", logx.String("step", name), logx.Duration("took", time.Since(began)))
	case <-ctx.Done():
		a.log.Warn("stop step timed out", logx.String("step", name), logx.Duration("budget", budget))
	}
}

func (a *App) Reminders() *reminder.Store { return a.reminders }
