package app

import (
	"context"
	"sync/atomic"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// Audit actions.
const (
	actionCreate = "create"
	actionCancel = "cancel"
	actionClear  = "clear"
	actionFire   = "fire"
	actionLost   = "lost"
)

// lifecycleCounters are process-lifetime totals per audit action.
type lifecycleCounters struct {
	created  atomic.Uint64
	canceled atomic.Uint64
	cleared  atomic.Uint64
	fired    atomic.Uint64
	lost     atomic.Uint64
}

// auditor turns reminder lifecycle events into audit entries and counters.
type auditor struct {
	store    storage.Store // nil when storage is disabled
	log      logx.Logger
	counters lifecycleCounters
}

func (a *auditor) run(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.handle(ctx, ev)
		}
	}
}

func (a *auditor) handle(ctx context.Context, ev eventbus.Event) {
	lc, ok := ev.Data.(reminder.Lifecycle)
	if !ok {
		return
	}
	var action string
	switch ev.Type {
	case reminder.EventCreated:
		action = actionCreate
		a.counters.created.Add(1)
	case reminder.EventFired:
		action = actionFire
		a.counters.fired.Add(1)
	case reminder.EventLost:
		action = actionLost
		a.counters.lost.Add(1)
	case reminder.EventRemoved:
		if lc.Reason == reminder.ReasonCleared {
			action = actionClear
			a.counters.cleared.Add(1)
		} else {
			action = actionCancel
			a.counters.canceled.Add(1)
		}
	default:
		return
	}
	if a.store == nil {
		return
	}

	r := lc.Reminder
	e := storage.AuditEntry{
		At:         ev.Time,
		OwnerID:    r.Owner,
		ChatID:     r.Origin.ChatID,
		Action:     action,
		ReminderID: r.ID,
		FireAt:     storage.FormatTimestamp(r.FireAt),
	}
	if lc.Err != nil {
		e.Error = lc.Err.Error()
	}
	if err := a.store.AppendAudit(context.WithoutCancel(ctx), e); err != nil {
		a.log.Warn("audit append failed", logx.String("action", action), logx.String("id", r.ID), logx.Err(err))
	}
}
