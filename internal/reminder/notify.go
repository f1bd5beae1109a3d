package reminder

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"remindbot/internal/eventbus"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

// Sender is the slice of the chat transport the notifier needs.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// DirectNotifier sends a fired reminder to the owner's private chat. When that
// fails it posts one "open a private chat" notice in the chat the reminder was
// created in. Nothing is retried beyond that single fallback.
type DirectNotifier struct {
	send    Sender
	log     logx.Logger
	bus     *eventbus.Bus
	limiter *rate.Limiter

	delivered atomic.Uint64
	fallbacks atomic.Uint64
	lost      atomic.Uint64
}

type NotifierOption func(*DirectNotifier)

func WithNotifierLogger(log logx.Logger) NotifierOption {
	return func(n *DirectNotifier) { n.log = log }
}

func WithNotifierEvents(bus *eventbus.Bus) NotifierOption {
	return func(n *DirectNotifier) { n.bus = bus }
}

// WithRate limits outgoing sends to perSec messages per second; <= 0 disables.
func WithRate(perSec float64) NotifierOption {
	return func(n *DirectNotifier) { n.SetRate(perSec) }
}

func NewDirectNotifier(send Sender, opts ...NotifierOption) *DirectNotifier {
	n := &DirectNotifier{
		send:    send,
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	for _, o := range opts {
		o(n)
	}
	if n.log.IsZero() {
		n.log = logx.Nop()
	}
	return n
}

// SetRate changes the send rate at runtime.
func (n *DirectNotifier) SetRate(perSec float64) {
	if perSec <= 0 {
		n.limiter.SetLimit(rate.Inf)
	} else {
		n.limiter.SetLimit(rate.Limit(perSec))
		n.limiter.SetBurst(max(1, int(perSec)))
	}
	n.log.Debug("send rate set", logx.Float64("per_sec", perSec), logx.Bool("unlimited", perSec <= 0))
}

var htmlOpts = &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}

func (n *DirectNotifier) Notify(ctx context.Context, r Reminder) error {
	log := n.log.With(logx.String("id", r.ID), logx.Int64("owner", r.Owner))

	n.wait(ctx)
	text := T(r.Lang, MsgRemindNow, tgui.Esc(r.Text))
	_, derr := n.send.SendText(ctx, kit.DirectTarget(r.Owner), text, htmlOpts)
	if derr == nil {
		n.delivered.Add(1)
		log.Info("reminder delivered")
		return nil
	}
	log.Warn("direct delivery failed; trying origin chat", logx.Err(derr))

	origin := r.Origin
	if origin.ChatID == 0 || origin.ChatID == r.Owner {
		return n.giveUp(r, derr, fmt.Errorf("no group chat to fall back to"))
	}

	n.wait(ctx)
	notice := T(r.Lang, MsgOpenDM, tgui.Mention(r.OwnerName, r.Owner))
	if _, ferr := n.send.SendText(ctx, origin, notice, htmlOpts); ferr != nil {
		return n.giveUp(r, derr, ferr)
	}
	n.fallbacks.Add(1)
	log.Info("fallback notice posted", logx.Int64("chat_id", origin.ChatID))
	return nil
}

// wait honors the send rate. A canceled ctx does not block delivery: the
// attempt still happens once.
func (n *DirectNotifier) wait(ctx context.Context) {
	if err := n.limiter.Wait(ctx); err != nil {
		n.log.Debug("send limiter wait aborted", logx.Err(err))
	}
}

func (n *DirectNotifier) giveUp(r Reminder, direct, fallback error) error {
	n.lost.Add(1)
	err := fmt.Errorf("%w: direct: %v; fallback: %v", ErrNotificationDelivery, direct, fallback)
	n.log.Error("reminder lost", logx.String("id", r.ID), logx.Int64("owner", r.Owner), logx.Err(err))
	publish(n.bus, EventLost, time.Now(), Lifecycle{Reminder: r, Err: err})
	return err
}

// NotifyStats are lifetime delivery counters.
type NotifyStats struct {
	Delivered uint64
	Fallbacks uint64
	Lost      uint64
}

func (n *DirectNotifier) Stats() NotifyStats {
	return NotifyStats{Delivered: n.delivered.Load(), Fallbacks: n.fallbacks.Load(), Lost: n.lost.Load()}
}
