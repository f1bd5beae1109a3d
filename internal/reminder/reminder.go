// Package reminder is the reminder scheduling and lifecycle engine:
// time-expression parsing, the per-owner store with durable snapshots,
// the countdown dispatcher and the owner notifier.
package reminder

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
)

var (
	// ErrInvalidTimeExpression means no time grammar matched the input.
	ErrInvalidTimeExpression = errors.New("invalid time expression")
	// ErrClockOutOfRange is a clock-shaped token outside 00:00-23:59.
	ErrClockOutOfRange = wrapInvalid("clock out of range")
	// ErrMissingReminderText means a time parsed but no body text remained.
	ErrMissingReminderText = errors.New("missing reminder text")
	ErrNoSuchPosition      = errors.New("no such reminder position")
	ErrAlreadyEmpty        = errors.New("reminder list already empty")
	ErrTooManyReminders    = errors.New("too many pending reminders")

	ErrPersistenceWrite     = errors.New("reminder snapshot write failed")
	ErrPersistenceLoad      = errors.New("reminder snapshot load failed")
	ErrNotificationDelivery = errors.New("reminder notification not delivered")
	ErrNotRunning           = errors.New("scheduler not running")
)

type invalidErr struct{ msg string }

func (e invalidErr) Error() string { return ErrInvalidTimeExpression.Error() + ": " + e.msg }
func (e invalidErr) Unwrap() error { return ErrInvalidTimeExpression }

func wrapInvalid(msg string) error { return invalidErr{msg: msg} }

// Locale selects the user-facing language of a reminder.
type Locale string

const (
	LocaleUA Locale = "ua"
	LocaleEN Locale = "en"
)

// Tag maps the locale onto a BCP 47 tag for the message catalog.
func (l Locale) Tag() language.Tag {
	if l == LocaleUA {
		return language.Ukrainian
	}
	return language.English
}

// ParseLocale maps a stored locale string back; unknown values yield ("", false).
func ParseLocale(s string) (Locale, bool) {
	switch Locale(strings.ToLower(strings.TrimSpace(s))) {
	case LocaleUA:
		return LocaleUA, true
	case LocaleEN:
		return LocaleEN, true
	}
	return "", false
}

const uaLetters = "абвгґджзклмнпрстуфхцчшщьйіїє"

// lowerString folds case with a fresh Caser; Casers are stateful and must
// not be shared between goroutines.
func lowerString(s string) string { return cases.Lower(language.Und).String(s) }

// DetectLocale returns LocaleUA when text contains any Ukrainian letter.
func DetectLocale(text string) Locale {
	if strings.ContainsAny(lowerString(text), uaLetters) {
		return LocaleUA
	}
	return LocaleEN
}

// Reminder is one scheduled one-shot notification. Reminders are never
// edited in place; they are created, then removed.
type Reminder struct {
	ID        string
	Owner     int64
	OwnerName string
	FireAt    time.Time
	Text      string
	Lang      Locale
	// Origin is the chat the reminder was created in, used for the
	// fallback notice when the owner cannot be reached directly.
	Origin kit.ChatTarget
}

// Due reports whether the reminder's fire time is at or before now.
func (r Reminder) Due(now time.Time) bool { return !r.FireAt.After(now) }

func (r Reminder) record() storage.ReminderRecord {
	return storage.ReminderRecord{
		ID:        r.ID,
		FireAt:    r.FireAt,
		Text:      r.Text,
		Lang:      string(r.Lang),
		ChatID:    r.Origin.ChatID,
		ThreadID:  r.Origin.ThreadID,
		OwnerName: r.OwnerName,
	}
}

func fromRecord(owner int64, rec storage.ReminderRecord) Reminder {
	lang, ok := ParseLocale(rec.Lang)
	if !ok {
		// Snapshots that only carry (time, text) pairs lose the locale.
		lang = DetectLocale(rec.Text)
	}
	return Reminder{
		ID:        rec.ID,
		Owner:     owner,
		OwnerName: rec.OwnerName,
		FireAt:    rec.FireAt,
		Text:      rec.Text,
		Lang:      lang,
		Origin:    kit.ChatTarget{ChatID: rec.ChatID, ThreadID: rec.ThreadID},
	}
}
