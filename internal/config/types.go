package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Storage defaults to a JSON snapshot at DefaultSnapshotPath when absent.
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Reminders RemindersConfig `json:"reminders"`
}

// StorageConfig selects where reminders are persisted. Driver "none" keeps
// them in memory only.
//
//	"storage": { "driver": "sqlite", "path": "./remindbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=file sqlite sqlite3 none"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty" validate:"omitempty,duration"` // Go duration string (sqlite)
}

type TelegramConfig struct {
	// Token may be left empty when TELEGRAM_TOKEN is set.
	Token        string  `json:"token" validate:"required"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout" validate:"omitempty,duration"`
	// Workers sizes the command worker pool; 0 uses the CPU count.
	Workers int `json:"workers,omitempty" validate:"gte=0"`
}

type LoggingConfig struct {
	Level    string          `json:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" validate:"required_if=Enabled true"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level" validate:"omitempty,oneof=trace debug info warn warning error"`
	RatePerSec int    `json:"rate_per_sec" validate:"gte=0"`
}

// RemindersConfig tunes the reminder engine. Every field is optional.
type RemindersConfig struct {
	// CommandPrefixes defaults to ["!", "/"].
	CommandPrefixes []string `json:"command_prefixes,omitempty" validate:"dive,required"`
	// SweepSchedule is a cron spec for the re-arm sweep ("@every 1m" when
	// empty, "off" disables it).
	SweepSchedule string `json:"sweep_schedule,omitempty" validate:"omitempty,cronspec"`
	// MaxPerOwner caps pending reminders per user; 0 means unlimited.
	MaxPerOwner int `json:"max_per_owner,omitempty" validate:"gte=0"`
	// NotifyRatePerSec throttles outgoing reminder messages; 0 means unlimited.
	NotifyRatePerSec float64 `json:"notify_rate_per_sec,omitempty" validate:"gte=0"`
}

// SweepOff disables the periodic re-arm sweep.
const SweepOff = "off"

// Storage defaults.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverNone   = "none"

	DefaultSnapshotPath = "./reminders.json"
	DefaultSQLitePath   = "./remindbot.db"
)
