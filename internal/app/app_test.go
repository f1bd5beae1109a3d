package app

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

type sentMsg struct {
	to   kit.ChatTarget
	text string
}

type fakeAdapter struct {
	mu   sync.Mutex
	sent []sentMsg
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{to: to, text: text})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) to(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.to.ChatID == chatID {
			out = append(out, m.text)
		}
	}
	return out
}

func (f *fakeAdapter) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].text
}

var noon = time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)

type harness struct {
	t     *testing.T
	ad    *fakeAdapter
	rt    *router.Router
	store *reminder.Store
	h     *handlers
}

func newHarness(t *testing.T, storeOpts ...reminder.StoreOption) *harness {
	t.Helper()
	now := func() time.Time { return noon }
	ad := &fakeAdapter{}
	store := reminder.NewStore(nil, append([]reminder.StoreOption{reminder.WithClock(now)}, storeOpts...)...)
	notif := reminder.NewDirectNotifier(ad)
	sched := reminder.NewScheduler(store, notif, reminder.WithSweepSchedule(""), reminder.WithSchedulerClock(now))
	require.NoError(t, sched.Start(context.Background()))
	t.Cleanup(func() { _ = sched.Stop(context.Background()) })

	h := &handlers{store: store, sched: sched, notif: notif, audit: &auditor{}, now: now}
	rt := router.New(logx.Nop(), ad, []int64{1})
	rt.SetCommands(h.commands())
	return &harness{t: t, ad: ad, rt: rt, store: store, h: h}
}

// say routes text from user 7 in group -100 and returns the reply.
func (hs *harness) say(text string) string {
	hs.t.Helper()
	req, cmd, ok := hs.rt.Resolve(&kit.Message{ID: 1, ChatID: -100, FromID: 7, FromName: "Ann", Text: text})
	require.True(hs.t, ok, text)
	require.NoError(hs.t, cmd.Handle(context.Background(), req))
	return hs.ad.last()
}

func TestCreateListCancelClear(t *testing.T) {
	hs := newHarness(t)

	assert.Contains(t, hs.say("!remind"), "Examples:")

	got := hs.say("!remind 10min Drink <water>")
	assert.True(t, strings.HasPrefix(got, "Got it! Reminding in DM in 10 min: <b>Drink &lt;water&gt;</b>"), got)
	assert.Contains(t, hs.say("/remind at 18:30 Dinner"), "at 18:30")

	assert.Equal(t,
		"<b>Your reminders (2):</b>\n1. <b>Drink &lt;water&gt;</b> — in 10 min\n2. <b>Dinner</b> — 18:30",
		hs.say("!reminders"))

	assert.Equal(t, reminder.T(reminder.LocaleEN, reminder.MsgCancelUsage), hs.say("!cancel x"))
	assert.Equal(t, reminder.T(reminder.LocaleEN, reminder.MsgCancelUsage), hs.say("!cancel"))
	assert.Equal(t, "No reminder with number 5. Check list: <code>!reminders</code>", hs.say("!cancel 5"))
	assert.Equal(t, "Reminder #1 canceled.", hs.say("!cancel 1"))

	entries := hs.store.List(7)
	require.Len(t, entries, 1)
	assert.Equal(t, "Dinner", entries[0].Text)
	assert.Equal(t, kit.ChatTarget{ChatID: -100}, entries[0].Origin)
	assert.Equal(t, "Ann", entries[0].OwnerName)

	assert.Equal(t, "All your reminders cleared! Fresh start ✂️", hs.say("!clear reminders"))
	assert.Equal(t, "You already have no active reminders 😊", hs.say("!clearreminders"))
	assert.Contains(t, hs.say("!reminders"), `<a href="tg://user?id=7">Ann</a>, you have no active reminders`)
}

func TestCreateRejections(t *testing.T) {
	hs := newHarness(t)

	assert.Equal(t, "Invalid time (00:00–23:59).", hs.say("!remind at 25:00 x"))
	assert.Equal(t, "Didn't understand the time. Examples: 10min, 30s, at 18:30", hs.say("!remind soon please"))
	assert.Equal(t, "Please add reminder text after the time!", hs.say("!remind 10min"))
	assert.Equal(t, "Вкажи текст після часу!", hs.say("!нагадай 10хв"))
	assert.Zero(t, hs.store.Count())
}

func TestUkrainianFlow(t *testing.T) {
	hs := newHarness(t)

	got := hs.say("!нагадування 5 хв пити воду")
	assert.True(t, strings.HasPrefix(got, "Ок! Нагадаю в приват через 5 хв: <b>пити воду</b>"), got)
	assert.Equal(t, "<b>Твої нагадування (1):</b>\n1. <b>пити воду</b> — через 5 хв", hs.say("!нагадування"))
	assert.Equal(t, "Нагадування №1 скасовано.", hs.say("!скасувати 1"))
}

func TestCreateRespectsMaxPerOwner(t *testing.T) {
	hs := newHarness(t, reminder.WithMaxPerOwner(1))

	hs.say("!remind 10min a")
	assert.Contains(t, hs.say("!remind 10min b"), "limit 1")
	assert.Equal(t, 1, hs.store.Len(7))
}

func TestHelpAndStats(t *testing.T) {
	hs := newHarness(t)
	assert.Contains(t, hs.say("!допомога"), "Reminder commands")

	hs.say("!remind 10min a")
	req, cmd, ok := hs.rt.Resolve(&kit.Message{ChatID: 1, FromID: 1, Text: "!stats"})
	require.True(t, ok)
	require.Equal(t, router.AccessOwnerOnly, cmd.Access)
	require.NoError(t, cmd.Handle(context.Background(), req))
	assert.Contains(t, hs.ad.last(), "pending: 1 (owners 1, limit 0)")
	assert.Contains(t, hs.ad.last(), "armed: 1")
}

func TestRemaining(t *testing.T) {
	en := reminder.LocaleEN
	assert.Equal(t, "less than a minute", remaining(en, noon.Add(59*time.Second), noon))
	assert.Equal(t, "less than a minute", remaining(en, noon.Add(-time.Second), noon))
	assert.Equal(t, "in 5 min", remaining(en, noon.Add(5*time.Minute+30*time.Second), noon))
	assert.Equal(t, "13:00", remaining(en, noon.Add(time.Hour), noon))
}

func TestAuditorWritesEntriesAndCounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.json")
	db, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)

	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	a := &auditor{store: db, log: logx.Nop()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.run(ctx, events)
	}()

	store := reminder.NewStore(db, reminder.WithStoreEvents(bus))
	r, err := store.Add(ctx, reminder.Reminder{Owner: 3, FireAt: time.Now().Add(time.Hour), Text: "x"})
	require.NoError(t, err)
	_, err = store.RemoveByPosition(ctx, 3, 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return a.counters.canceled.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
	unsub()
	require.NoError(t, db.Close())
	assert.Equal(t, uint64(1), a.counters.created.Load())

	f, err := os.Open(filepath.Join(filepath.Dir(path), "reminders.audit.jsonl"))
	require.NoError(t, err)
	defer f.Close()
	var actions []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e storage.AuditEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		assert.Equal(t, r.ID, e.ReminderID)
		assert.Equal(t, int64(3), e.OwnerID)
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{actionCreate, actionCancel}, actions)
}

func TestAppEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Telegram:  config.TelegramConfig{Token: "T", OwnerUserIDs: []int64{1}, Workers: 2},
		Storage:   &config.StorageConfig{Driver: "sqlite", Path: filepath.Join(dir, "remindbot.db")},
		Reminders: config.RemindersConfig{SweepSchedule: config.SweepOff},
	}
	ad := &fakeAdapter{}
	a, err := newApp(nil, cfg, ad)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	a.updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: -100, FromID: 7, FromName: "Ann", Text: "!remind 1s Drink water"}}

	require.Eventually(t, func() bool { return len(ad.to(-100)) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Contains(t, ad.to(-100)[0], "Got it!")

	require.Eventually(t, func() bool { return len(ad.to(7)) == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "REMINDER: <b>Drink water</b> 🚨", ad.to(7)[0])
	assert.Zero(t, a.Reminders().Count())
	require.Eventually(t, func() bool { return a.audit.counters.fired.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(stopCtx, StopAppStop))
}

func TestAppRestoresRemindersAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Telegram:  config.TelegramConfig{Token: "T"},
		Storage:   &config.StorageConfig{Driver: "file", Path: filepath.Join(dir, "reminders.json")},
		Reminders: config.RemindersConfig{SweepSchedule: config.SweepOff},
	}

	first, err := newApp(nil, cfg, &fakeAdapter{})
	require.NoError(t, err)
	_, err = first.Reminders().Add(context.Background(), reminder.Reminder{Owner: 9, FireAt: time.Now().Add(time.Hour), Text: "later"})
	require.NoError(t, err)
	require.NoError(t, first.db.Close())

	second, err := newApp(nil, cfg, &fakeAdapter{})
	require.NoError(t, err)
	defer second.db.Close()
	entries := second.Reminders().List(9)
	require.Len(t, entries, 1)
	assert.Equal(t, "later", entries[0].Text)
}

func TestApplyConfigUpdatesRuntimeKnobs(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg := &Config{Telegram: config.TelegramConfig{Token: "T"}, Reminders: config.RemindersConfig{SweepSchedule: config.SweepOff}}
	a, err := newApp(nil, cfg, &fakeAdapter{})
	require.NoError(t, err)

	next := *cfg
	next.Telegram.OwnerUserIDs = []int64{7}
	next.Reminders = config.RemindersConfig{CommandPrefixes: []string{"."}, MaxPerOwner: 3, SweepSchedule: config.SweepOff}
	a.applyConfig(cfg, &next)

	assert.Equal(t, 3, a.Reminders().MaxPerOwner())
	_, _, ok := a.router.Resolve(&kit.Message{Text: "!reminders"})
	assert.False(t, ok)
	req, _, ok := a.router.Resolve(&kit.Message{FromID: 7, Text: ".reminders"})
	require.True(t, ok)
	assert.True(t, req.IsOwner())
}

func TestStorageDefaultsToSnapshotFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := config.ReadFile(writeConfig(t, `{"telegram":{"token":"x"},"reminders":{"sweep_schedule":"off"}}`))
	require.NoError(t, err)

	a, err := newApp(nil, cfg, &fakeAdapter{})
	require.NoError(t, err)
	require.NotNil(t, a.db)
	_, err = a.Reminders().Add(context.Background(), reminder.Reminder{Owner: 4, FireAt: time.Now().Add(time.Hour), Text: "kept"})
	require.NoError(t, err)
	require.NoError(t, a.db.Close())

	raw, err := os.ReadFile(config.DefaultSnapshotPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"kept"`)
}

func TestStorageNoneDisablesPersistence(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "bot.log")
	cfg := &Config{
		Telegram:  config.TelegramConfig{Token: "T"},
		Logging:   config.LoggingConfig{Level: "info", File: config.LoggingFile{Enabled: true, Path: logPath}},
		Storage:   &config.StorageConfig{Driver: "none"},
		Reminders: config.RemindersConfig{SweepSchedule: config.SweepOff},
	}
	a, err := newApp(nil, cfg, &fakeAdapter{})
	require.NoError(t, err)
	assert.Nil(t, a.db)
	require.NoError(t, a.logs.Close())

	b, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), "storage disabled")
}

func TestStorageConfig(t *testing.T) {
	cases := []struct {
		name    string
		sec     *config.StorageConfig
		want    storage.Config
		enabled bool
	}{
		{"absent", nil, storage.Config{Driver: "file", Path: config.DefaultSnapshotPath}, true},
		{"blank driver", &config.StorageConfig{Path: "/tmp/r.json"}, storage.Config{Driver: "file", Path: "/tmp/r.json"}, true},
		{"sqlite default path", &config.StorageConfig{Driver: "SQLite"}, storage.Config{Driver: "sqlite", Path: config.DefaultSQLitePath, BusyTimeout: time.Second}, true},
		{"sqlite3 busy", &config.StorageConfig{Driver: "sqlite3", Path: "x.db", BusyTimeout: "3s"}, storage.Config{Driver: "sqlite", Path: "x.db", BusyTimeout: 3 * time.Second}, true},
		{"none", &config.StorageConfig{Driver: "none", Path: "ignored"}, storage.Config{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, enabled, err := storageConfig(&Config{Storage: tc.sec})
			require.NoError(t, err)
			assert.Equal(t, tc.enabled, enabled)
			assert.Equal(t, tc.want, got)
		})
	}

	_, _, err := storageConfig(&Config{Storage: &config.StorageConfig{Driver: "redis"}})
	require.Error(t, err)
	_, _, err = storageConfig(&Config{Storage: &config.StorageConfig{Driver: "sqlite", BusyTimeout: "-1s"}})
	require.Error(t, err)
}

func TestUnreadableSnapshotIsLoggedOnce(t *testing.T) {
	dir := t.TempDir()
	snap := filepath.Join(dir, "reminders.json")
	require.NoError(t, os.WriteFile(snap, []byte(`{"abc": 1}`), 0o600))
	logPath := filepath.Join(dir, "bot.log")
	cfg := &Config{
		Telegram:  config.TelegramConfig{Token: "T"},
		Logging:   config.LoggingConfig{Level: "info", File: config.LoggingFile{Enabled: true, Path: logPath}},
		Storage:   &config.StorageConfig{Driver: "file", Path: snap},
		Reminders: config.RemindersConfig{SweepSchedule: config.SweepOff},
	}
	a, err := newApp(nil, cfg, &fakeAdapter{})
	require.NoError(t, err)
	assert.Zero(t, a.Reminders().Count())
	require.NoError(t, a.db.Close())
	require.NoError(t, a.logs.Close())

	b, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(b), "snapshot unreadable"))
	assert.Zero(t, strings.Count(string(b), "reminders loaded"))
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}
