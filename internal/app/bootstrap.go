package app

import (
	"cmp"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram/adapter"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

type Config = config.Config

// NewApp loads the config at cfgPath and connects to Telegram.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	poll, err := config.DurationOr("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: poll},
		logx.NewConsole("INFO").With(logx.String("comp", "telegram.adapter")))
	if err != nil {
		return nil, err
	}
	return newApp(cfgm, cfg, ad)
}

// newApp wires every component around ad. cfgm may be nil, in which case
// the config is never reloaded.
func newApp(cfgm *config.Manager, cfg *Config, ad kit.Adapter) (*App, error) {
	// The Telegram log sink needs its target before the first Apply.
	boot := loggingConfig(cfg)
	boot.Telegram.Enabled = false
	logs, root := logx.New(boot, ad)
	setLogTarget(logs, cfg)
	logs.Apply(loggingConfig(cfg))
	log := root.With(logx.String("comp", "app"))

	db, err := openStorage(cfg, root)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	var persist reminder.Persister
	if db != nil {
		persist = db
	}
	rs := reminder.NewStore(persist,
		reminder.WithStoreLogger(root.With(logx.String("comp", "reminder.store"))),
		reminder.WithStoreEvents(bus),
		reminder.WithMaxPerOwner(cfg.Reminders.MaxPerOwner),
	)
	// A failed load leaves the store empty; Load has logged why.
	_, _ = rs.Load(context.Background())

	notif := reminder.NewDirectNotifier(ad,
		reminder.WithNotifierLogger(root.With(logx.String("comp", "reminder.notifier"))),
		reminder.WithNotifierEvents(bus),
		reminder.WithRate(cfg.Reminders.NotifyRatePerSec),
	)
	sched := reminder.NewScheduler(rs, notif,
		reminder.WithSchedulerLogger(root.With(logx.String("comp", "reminder.scheduler"))),
		reminder.WithSchedulerEvents(bus),
		reminder.WithSweepSchedule(sweepSchedule(cfg)),
	)

	sups := supervisor.NewRegistry()
	rt := router.New(root.With(logx.String("comp", "telegram.router")), ad, cfg.Telegram.OwnerUserIDs,
		router.WithWorkers(cfg.Telegram.Workers),
		router.WithPrefixes(cfg.Reminders.CommandPrefixes),
		router.WithRegistry(sups),
	)
	audit := &auditor{store: db, log: root.With(logx.String("comp", "audit"))}
	h := &handlers{store: rs, sched: sched, notif: notif, audit: audit, bus: bus, sups: sups, now: time.Now}
	rt.SetCommands(h.commands())

	return &App{
		cfgm:      cfgm,
		sups:      sups,
		log:       log,
		logs:      logs,
		bus:       bus,
		db:        db,
		adapter:   ad,
		reminders: rs,
		sched:     sched,
		notif:     notif,
		audit:     audit,
		router:    rt,
		updates:   make(chan kit.Update, 256),
	}, nil
}

func openStorage(cfg *Config, log logx.Logger) (storage.Store, error) {
	sc, enabled, err := storageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !enabled {
		log.Warn("storage disabled; reminders will not survive a restart")
		return nil, nil
	}
	db, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	return db, nil
}

// storageConfig resolves the storage section. Without one, reminders go to
// the JSON snapshot at config.DefaultSnapshotPath; driver "none" reports
// enabled=false.
func storageConfig(cfg *Config) (sc storage.Config, enabled bool, err error) {
	var sec config.StorageConfig
	if cfg.Storage != nil {
		sec = *cfg.Storage
	}
	path := strings.TrimSpace(sec.Path)
	switch driver := strings.ToLower(strings.TrimSpace(sec.Driver)); driver {
	case config.DriverNone:
		return sc, false, nil
	case "", config.DriverFile:
		return storage.Config{Driver: config.DriverFile, Path: cmp.Or(path, config.DefaultSnapshotPath)}, true, nil
	case config.DriverSQLite, "sqlite3":
		busy, err := config.DurationOr("storage.busy_timeout", sec.BusyTimeout, time.Second)
		if err != nil {
			return sc, false, err
		}
		return storage.Config{Driver: config.DriverSQLite, Path: cmp.Or(path, config.DefaultSQLitePath), BusyTimeout: busy}, true, nil
	default:
		return sc, false, fmt.Errorf("storage.driver: unknown driver %q", sec.Driver)
	}
}

// sweepSchedule maps reminders.sweep_schedule onto the scheduler option.
func sweepSchedule(cfg *Config) string {
	spec := strings.TrimSpace(cfg.Reminders.SweepSchedule)
	switch {
	case strings.EqualFold(spec, config.SweepOff):
		return ""
	case spec == "":
		return reminder.DefaultSweepSchedule
	}
	return spec
}

func loggingConfig(cfg *Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

// setLogTarget points the Telegram log sink at telegram.group_log. A blank
// or non-numeric value mutes the sink.
func setLogTarget(logs *logx.Service, cfg *Config) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(cfg.Telegram.GroupLog), 10, 64)
	if err != nil {
		chatID = 0
	}
	logs.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
}
