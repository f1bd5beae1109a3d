// Package storage persists the pending reminders and an audit trail of
// reminder actions, either as JSON files or in SQLite.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	// Driver is "file" or "sqlite"; "none" and "" disable storage.
	Driver string
	Path   string
	// BusyTimeout applies to sqlite only.
	BusyTimeout time.Duration
}

type Store interface {
	// SaveReminders replaces the stored snapshot with snap.
	SaveReminders(ctx context.Context, snap Snapshot) error
	// LoadReminders returns the last saved snapshot (empty if none was saved).
	LoadReminders(ctx context.Context) (Snapshot, error)
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// ReminderRecord is the durable form of one pending reminder.
//
// The file backend only keeps FireAt and Text; the remaining fields are
// zero after a file load.
type ReminderRecord struct {
	ID        string
	FireAt    time.Time
	Text      string
	Lang      string
	ChatID    int64
	ThreadID  int
	OwnerName string
}

// Snapshot maps owner ID to that owner's reminders in insertion order.
type Snapshot map[int64][]ReminderRecord

// Count returns the total number of reminders in the snapshot.
func (s Snapshot) Count() int {
	n := 0
	for _, rs := range s {
		n += len(rs)
	}
	return n
}

// AuditEntry is one reminder action. Its JSON form is the file audit line.
type AuditEntry struct {
	At         time.Time `json:"at"`
	OwnerID    int64     `json:"owner_id"`
	ChatID     int64     `json:"chat_id,omitempty"`
	Action     string    `json:"action"`
	ReminderID string    `json:"reminder_id,omitempty"`
	FireAt     string    `json:"fire_at,omitempty"`
	Error      string    `json:"err,omitempty"`
}

const timestampLayout = "2006-01-02T15:04:05"

// FormatTimestamp renders t as a naive ISO-8601 local wall-clock timestamp.
// Microseconds are appended only when non-zero; anything finer is dropped.
func FormatTimestamp(t time.Time) string {
	t = t.Local()
	s := t.Format(timestampLayout)
	if us := t.Nanosecond() / 1000; us != 0 {
		s += fmt.Sprintf(".%06d", us)
	}
	return s
}

// ParseTimestamp parses a naive ISO-8601 timestamp in the local zone.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.ParseInLocation(timestampLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
