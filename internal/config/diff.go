package config

import (
	"reflect"
	"slices"
	"strings"
)

// Change is one config key whose value differs between two configs.
type Change struct {
	Key string
	// Restart means the running bot keeps the old value until restarted.
	Restart bool
}

// Diff lists the keys that differ between a and b in a fixed order. Values
// are never included, so the result is safe to log.
func Diff(a, b *Config) []Change {
	if a == nil {
		a = &Config{}
	}
	if b == nil {
		b = &Config{}
	}
	var out []Change
	add := func(key string, differs, restart bool) {
		if differs {
			out = append(out, Change{Key: key, Restart: restart})
		}
	}
	trim := strings.TrimSpace

	add("telegram.token", trim(a.Telegram.Token) != trim(b.Telegram.Token), true)
	add("telegram.poll_timeout", trim(a.Telegram.PollTimeout) != trim(b.Telegram.PollTimeout), true)
	add("telegram.workers", a.Telegram.Workers != b.Telegram.Workers, true)
	add("telegram.owner_user_ids", !slices.Equal(a.Telegram.OwnerUserIDs, b.Telegram.OwnerUserIDs), false)
	add("telegram.group_log", trim(a.Telegram.GroupLog) != trim(b.Telegram.GroupLog), false)
	add("logging", a.Logging != b.Logging, false)
	add("storage", !reflect.DeepEqual(a.Storage, b.Storage), true)
	add("reminders.command_prefixes", !slices.Equal(a.Reminders.CommandPrefixes, b.Reminders.CommandPrefixes), false)
	add("reminders.sweep_schedule", trim(a.Reminders.SweepSchedule) != trim(b.Reminders.SweepSchedule), true)
	add("reminders.max_per_owner", a.Reminders.MaxPerOwner != b.Reminders.MaxPerOwner, false)
	add("reminders.notify_rate_per_sec", a.Reminders.NotifyRatePerSec != b.Reminders.NotifyRatePerSec, false)
	return out
}
