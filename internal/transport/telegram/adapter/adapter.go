// Package adapter connects the bot to the Telegram Bot API via telebot.
package adapter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// APIURL points at a local Bot API server or a test double.
	APIURL string
	// Offline skips the getMe call in New.
	Offline bool
}

const (
	defaultAPIURL = "https://api.telegram.org"
	stopGrace     = 2 * time.Second
)

var pollRestart = supervisor.Restart{
	MinBackoff:  500 * time.Millisecond,
	MaxBackoff:  10 * time.Second,
	OnCleanExit: true,
	Fatal:       true,
}

type Adapter struct {
	log logx.Logger
	bot *tele.Bot

	out     atomic.Pointer[chan<- kit.Update]
	dropped atomic.Uint64
	dropLog rate.Sometimes

	mu  sync.Mutex
	sup *supervisor.Supervisor

	menuMu sync.Mutex
	menu   []kit.BotCommand
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.APIURL) == "" {
		cfg.APIURL = defaultAPIURL
	}
	bot, err := tele.NewBot(tele.Settings{
		URL:     strings.TrimRight(cfg.APIURL, "/"),
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: cfg.PollTimeout},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{log: log, bot: bot, dropLog: rate.Sometimes{Interval: 5 * time.Second}}
	bot.Handle(tele.OnText, func(c tele.Context) error {
		if up, ok := toUpdate(c.Message()); ok {
			a.forward(up)
		}
		return nil
	})
	return a, nil
}

// Supervisor exposes the polling goroutines for diagnostics; nil when stopped.
func (a *Adapter) Supervisor() *supervisor.Supervisor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sup
}

// forward never blocks the poller. Updates that do not fit are counted and
// reported at most every five seconds.
func (a *Adapter) forward(up kit.Update) {
	out := a.out.Load()
	if out == nil {
		return
	}
	select {
	case *out <- up:
	default:
		total := a.dropped.Add(1)
		a.dropLog.Do(func() {
			a.log.Warn("updates dropped; consumer too slow", logx.Uint64("total", total), logx.Int("queue", cap(*out)))
		})
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sup != nil {
		return nil
	}
	a.out.Store(&out)
	sup := supervisor.New(ctx, supervisor.WithLogger(a.log))
	sup.Go0("telebot.stop", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	// bot.Start blocks until bot.Stop; an early return while running is a
	// poller failure and gets restarted.
	sup.GoRestart("telebot.poll", pollRestart, func(context.Context) error {
		a.log.Info("polling")
		a.bot.Start()
		return nil
	})
	a.sup = sup
	return nil
}

// Stop ends polling. A long poll still in flight is abandoned after a short
// grace period rather than holding up shutdown.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	sup := a.sup
	a.sup = nil
	a.mu.Unlock()
	a.out.Store(nil)
	if sup == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, stopGrace)
	defer cancel()
	err := sup.Stop(ctx)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		a.log.Warn("polling did not stop in time")
	case err != nil:
		a.log.Debug("polling ended with error", logx.Err(err))
	}
	a.log.Info("stopped", logx.Uint64("dropped_updates", a.dropped.Load()))
	return nil
}

func toUpdate(m *tele.Message) (kit.Update, bool) {
	if m == nil || m.Chat == nil || m.Sender == nil {
		return kit.Update{}, false
	}
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID:           m.ID,
		ChatID:       m.Chat.ID,
		ThreadID:     m.ThreadID,
		FromID:       m.Sender.ID,
		FromUsername: m.Sender.Username,
		FromName:     displayName(m.Sender),
		Text:         m.Text,
		IsPrivate:    m.Private(),
	}}, true
}

// displayName prefers "First Last" and falls back to the username.
func displayName(u *tele.User) string {
	if name := strings.Join(strings.Fields(u.FirstName+" "+u.LastName), " "); name != "" {
		return name
	}
	return u.Username
}
