package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

// listTextLimit caps each reminder body in the list reply.
const listTextLimit = 200

type handlers struct {
	store *reminder.Store
	sched *reminder.Scheduler
	notif *reminder.DirectNotifier
	audit *auditor
	bus   *eventbus.Bus
	sups  *supervisor.Registry
	now   func() time.Time
}

func (h *handlers) commands() []router.Command {
	return []router.Command{
		{
			Name:        "remind",
			Aliases:     []string{"reminder", "нагадай", "нагадати", "нагадування"},
			Description: "set a reminder: remind 10min text | remind at 18:30 text",
			Menu:        true,
			Handle:      h.create,
		},
		{
			Name:        "reminders",
			Aliases:     []string{"myreminders", "моїнагадування", "нагадування"},
			Description: "list your pending reminders",
			Args:        router.ArgsNone,
			Menu:        true,
			Handle:      h.list,
		},
		{
			Name:        "cancel",
			Aliases:     []string{"скасувати"},
			Description: "cancel a reminder by its list number",
			Menu:        true,
			Handle:      h.cancel,
		},
		{
			Name:        "clearreminders",
			Aliases:     []string{"clear reminders", "очиститинагадування", "очистити нагадування"},
			Description: "delete all your reminders",
			Args:        router.ArgsNone,
			Menu:        true,
			Handle:      h.clear,
		},
		{
			Name:        "help",
			Aliases:     []string{"start", "допомога", "початок"},
			Description: "how to use the reminder bot",
			Menu:        true,
			Handle:      h.help,
		},
		{
			Name:        "stats",
			Description: "reminder engine counters",
			Access:      router.AccessOwnerOnly,
			Args:        router.ArgsNone,
			Handle:      h.stats,
		},
	}
}

func langOf(req *router.Request) reminder.Locale {
	if req.Message == nil {
		return reminder.LocaleEN
	}
	return reminder.DetectLocale(req.Message.Text)
}

func senderName(req *router.Request) string {
	if req.Message == nil {
		return ""
	}
	if n := strings.TrimSpace(req.Message.FromName); n != "" {
		return n
	}
	return req.Message.FromUsername
}

func (h *handlers) create(ctx context.Context, req *router.Request) error {
	lang := langOf(req)
	if strings.TrimSpace(req.Args) == "" {
		return req.Reply(ctx, reminder.T(lang, reminder.MsgExamples))
	}

	expr, err := reminder.Parse(req.Args, h.now())
	switch {
	case errors.Is(err, reminder.ErrClockOutOfRange):
		return req.Reply(ctx, reminder.T(lang, reminder.MsgInvalidClock))
	case err != nil:
		req.Logger.Debug("time expression rejected", logx.Err(err))
		return req.Reply(ctx, reminder.T(lang, reminder.MsgInvalidTime))
	}
	body := strings.TrimSpace(expr.Body)
	if body == "" {
		return req.Reply(ctx, reminder.T(lang, reminder.MsgNoText))
	}

	r, err := h.store.Add(ctx, reminder.Reminder{
		Owner:     req.FromID,
		OwnerName: senderName(req),
		FireAt:    expr.At,
		Text:      body,
		Lang:      lang,
		Origin:    req.Chat,
	})
	if errors.Is(err, reminder.ErrTooManyReminders) {
		return req.Reply(ctx, reminder.T(lang, reminder.MsgTooMany, h.store.MaxPerOwner()))
	}
	if err != nil {
		return err
	}
	if err := h.sched.Arm(r); err != nil {
		// the sweep arms it once the scheduler runs
		req.Logger.Warn("countdown not armed", logx.String("id", r.ID), logx.Err(err))
	}
	req.Logger.Info("reminder created", logx.String("id", r.ID), logx.Time("fire_at", r.FireAt), logx.String("kind", expr.Kind.String()))
	return req.Reply(ctx, reminder.T(lang, reminder.MsgAdded, expr.Describe(lang), tgui.Esc(body)))
}

func (h *handlers) list(ctx context.Context, req *router.Request) error {
	lang := langOf(req)
	entries := h.store.List(req.FromID)
	if len(entries) == 0 {
		return req.Reply(ctx, reminder.T(lang, reminder.MsgNoReminders, tgui.Mention(senderName(req), req.FromID)))
	}

	now := h.now()
	var b strings.Builder
	b.WriteString(reminder.T(lang, reminder.MsgYourReminders, len(entries)))
	for _, e := range entries {
		b.WriteByte('\n')
		text := tgui.Esc(tgui.Clip(e.Text, listTextLimit))
		b.WriteString(reminder.T(lang, reminder.MsgReminderLine, e.Position, text, remaining(lang, e.FireAt, now)))
	}
	return req.Reply(ctx, b.String())
}

// remaining renders the time left as "less than a minute", "in N min" or
// the local HH:MM of the fire time.
func remaining(lang reminder.Locale, at, now time.Time) string {
	d := at.Sub(now)
	switch {
	case d < time.Minute:
		return reminder.T(lang, reminder.MsgLessThanMinute)
	case d < time.Hour:
		return reminder.T(lang, reminder.MsgInMinutes, int(d/time.Minute))
	}
	return at.Local().Format("15:04")
}

func (h *handlers) cancel(ctx context.Context, req *router.Request) error {
	lang := langOf(req)
	fields := strings.Fields(req.Args)
	if len(fields) == 0 {
		return req.Reply(ctx, reminder.T(lang, reminder.MsgCancelUsage))
	}
	pos, err := strconv.Atoi(fields[0])
	if err != nil {
		return req.Reply(ctx, reminder.T(lang, reminder.MsgCancelUsage))
	}

	r, err := h.store.RemoveByPosition(ctx, req.FromID, pos)
	if errors.Is(err, reminder.ErrNoSuchPosition) {
		return req.Reply(ctx, reminder.T(lang, reminder.MsgNoSuchNumber, pos))
	}
	if err != nil {
		return err
	}
	req.Logger.Info("reminder canceled", logx.String("id", r.ID), logx.Int("position", pos))
	return req.Reply(ctx, reminder.T(lang, reminder.MsgCanceled, pos))
}

func (h *handlers) clear(ctx context.Context, req *router.Request) error {
	lang := langOf(req)
	n, err := h.store.Clear(ctx, req.FromID)
	if errors.Is(err, reminder.ErrAlreadyEmpty) {
		return req.Reply(ctx, reminder.T(lang, reminder.MsgAlreadyEmpty))
	}
	if err != nil {
		return err
	}
	req.Logger.Info("reminders cleared", logx.Int("count", n))
	return req.Reply(ctx, reminder.T(lang, reminder.MsgCleared))
}

func (h *handlers) help(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, reminder.T(langOf(req), reminder.MsgHelp))
}

func (h *handlers) stats(ctx context.Context, req *router.Request) error {
	ss := h.sched.Stats()
	ns := h.notif.Stats()

	var b strings.Builder
	b.WriteString(tgui.Bold("Reminders") + "\n")
	fmt.Fprintf(&b, "pending: %d (owners %d, limit %d)\n", h.store.Count(), len(h.store.Owners()), h.store.MaxPerOwner())
	fmt.Fprintf(&b, "armed: %d, fired: %d, skipped: %d\n", ss.Armed, ss.Fired, ss.Skipped)
	fmt.Fprintf(&b, "delivered: %d, fallbacks: %d, lost: %d\n", ns.Delivered, ns.Fallbacks, ns.Lost)
	fmt.Fprintf(&b, "persist errors: %d, events dropped: %d\n", h.store.PersistErrors(), h.bus.Dropped())
	if h.audit != nil {
		c := &h.audit.counters
		fmt.Fprintf(&b, "created: %d, canceled: %d, cleared: %d\n", c.created.Load(), c.canceled.Load(), c.cleared.Load())
	}

	if sups := h.sups.Snapshot(); len(sups) > 0 {
		names := make([]string, 0, len(sups))
		for name := range sups {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("\n" + tgui.Bold("Supervisors") + "\n")
		for _, name := range names {
			c := sups[name].Counters()
			fmt.Fprintf(&b, "%s: active %d, started %d, panics %d\n", tgui.Code(name), c.Active, c.Started, c.Panics)
		}
	}
	return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}
