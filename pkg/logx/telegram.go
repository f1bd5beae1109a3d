package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "remindbot/internal/transport"
)

// Sender delivers log lines to a chat.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

const (
	tgQueueSize  = 128
	tgMaxMessage = 3500
	tgMaxValue   = 500
)

// telegramSink is a zerolog.LevelWriter that queues formatted records for a
// single background sender. Writes never block; a full queue or an exhausted
// rate budget drops the record.
type telegramSink struct {
	send Sender

	mu       sync.Mutex
	target   kit.ChatTarget
	minLevel zerolog.Level
	limiter  *rate.Limiter

	queue    chan string
	start    sync.Once
	cancel   context.CancelFunc
	finished chan struct{}
}

func newTelegramSink(send Sender) *telegramSink {
	return &telegramSink{
		send:     send,
		minLevel: zerolog.WarnLevel,
		limiter:  rate.NewLimiter(1, 1),
		queue:    make(chan string, tgQueueSize),
	}
}

func (t *telegramSink) configure(cfg TelegramConfig) {
	perSec := max(1, cfg.RatePerSec)
	t.mu.Lock()
	t.minLevel = ParseLevel(cfg.MinLevel, zerolog.WarnLevel)
	t.limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
	if cfg.ThreadID != 0 {
		t.target.ThreadID = cfg.ThreadID
	}
	t.mu.Unlock()

	t.start.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		finished := make(chan struct{})
		t.mu.Lock()
		t.cancel, t.finished = cancel, finished
		t.mu.Unlock()
		go t.loop(ctx, finished)
	})
}

func (t *telegramSink) setTarget(chatID int64, threadID int) {
	t.mu.Lock()
	t.target.ChatID = chatID
	if threadID != 0 {
		t.target.ThreadID = threadID
	}
	t.mu.Unlock()
}

func (t *telegramSink) loop(ctx context.Context, finished chan struct{}) {
	defer close(finished)
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-t.queue:
			t.mu.Lock()
			to := t.target
			t.mu.Unlock()
			if t.send == nil || to.ChatID == 0 {
				continue
			}
			_, _ = t.send.SendText(ctx, to, text, &kit.SendOptions{DisablePreview: true})
		}
	}
}

func (t *telegramSink) close() {
	t.mu.Lock()
	cancel, finished := t.cancel, t.finished
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		<-finished
	}
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(zerolog.NoLevel, p)
}

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	muted := t.target.ChatID == 0 || level < t.minLevel || !t.limiter.Allow()
	t.mu.Unlock()
	if muted {
		return len(p), nil
	}
	select {
	case t.queue <- renderRecord(p):
	default:
	}
	return len(p), nil
}

// renderRecord turns a JSON record into "LEVEL message" followed by one
// "key: value" line per field in key order.
func renderRecord(p []byte) string {
	var rec map[string]any
	if err := json.Unmarshal(p, &rec); err != nil {
		return clip(strings.TrimSpace(string(p)), tgMaxMessage)
	}
	level, _ := rec[zerolog.LevelFieldName].(string)
	msg, _ := rec[zerolog.MessageFieldName].(string)
	delete(rec, zerolog.LevelFieldName)
	delete(rec, zerolog.MessageFieldName)
	delete(rec, zerolog.TimestampFieldName)

	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(strings.ToUpper(level))
	b.WriteByte(' ')
	b.WriteString(msg)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", k, clip(fmt.Sprint(rec[k]), tgMaxValue))
	}
	return clip(b.String(), tgMaxMessage)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
