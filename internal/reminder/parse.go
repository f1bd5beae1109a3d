package reminder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MatchKind tags which grammar produced an Expression.
type MatchKind int

const (
	NoMatch MatchKind = iota
	MatchClock
	MatchDuration
)

func (k MatchKind) String() string {
	switch k {
	case MatchClock:
		return "clock"
	case MatchDuration:
		return "duration"
	default:
		return "none"
	}
}

// Unit is a relative-duration unit.
type Unit int

const (
	UnitMinute Unit = iota
	UnitSecond
	UnitHour
	UnitDay
)

// Seconds is the unit multiplier.
func (u Unit) Seconds() int64 {
	switch u {
	case UnitSecond:
		return 1
	case UnitHour:
		return 3600
	case UnitDay:
		return 86400
	default:
		return 60
	}
}

func (u Unit) msgKey() string {
	switch u {
	case UnitSecond:
		return MsgUnitSecond
	case UnitHour:
		return MsgUnitHour
	case UnitDay:
		return MsgUnitDay
	default:
		return MsgUnitMinute
	}
}

// MaxDelay bounds how far ahead a relative expression may schedule.
const MaxDelay = 10 * 365 * 24 * time.Hour

// Expression is the result of a successful Parse.
type Expression struct {
	Kind MatchKind
	// At is the absolute fire time; Delay is At minus the parse-time now.
	At    time.Time
	Delay time.Duration
	// Span holds byte offsets of the matched time expression in the input.
	Span [2]int
	// Body is the input with Span removed. It may be empty; rejecting an
	// empty body is the caller's decision.
	Body string

	Hour, Minute int
	Tomorrow     bool

	Value int64
	Unit  Unit
}

// Describe renders the human-readable time ("in 10 min", "at 18:30 tomorrow").
func (e Expression) Describe(lang Locale) string {
	switch e.Kind {
	case MatchClock:
		s := T(lang, MsgAtClock, fmt.Sprintf("%02d:%02d", e.Hour, e.Minute))
		if e.Tomorrow {
			s += " " + T(lang, MsgTomorrow)
		}
		return s
	case MatchDuration:
		return T(lang, MsgInDuration, e.Value, T(lang, e.Unit.msgKey()))
	}
	return ""
}

var (
	// Optional marker word, then H:MM or HH:MM. The token must start the
	// text or follow whitespace and must not run into a third minute digit;
	// letters may follow directly ("18:30h").
	clockRe = regexp.MustCompile(`(?i)(?:^|\s)((?:о|в|на|at|a)\s*)?(\d{1,2}):(\d{2})(?:\D|$)`)
	// Integer magnitude with an optional letter run that may name a unit.
	// Digits glued to a word ("x10min") still count.
	durationRe = regexp.MustCompile(`(\d+)(\s*(\p{L}+))?`)
)

// unitSpellings lists full spellings per unit; a token names a unit when it
// is a prefix of one of them.
var unitSpellings = []struct {
	unit  Unit
	words []string
}{
	{UnitSecond, []string{"seconds", "secs", "с", "сек", "секунд", "секунди", "секунду", "секунда"}},
	{UnitMinute, []string{"minutes", "mins", "хв", "хвилин", "хвилини", "хвилину", "хвилина"}},
	{UnitHour, []string{"hours", "hrs", "год", "години", "годину", "година", "годин"}},
	{UnitDay, []string{"days", "д", "дн", "днів", "дні", "день", "доби", "доба"}},
}

func lookupUnit(token string) (Unit, bool) {
	token = lowerString(token)
	if token == "" {
		return UnitMinute, false
	}
	for _, u := range unitSpellings {
		for _, w := range u.words {
			if strings.HasPrefix(w, token) {
				return u.unit, true
			}
		}
	}
	return UnitMinute, false
}

// Parse extracts a time expression from text. The clock grammar is tried
// first, then the relative-duration grammar. It fails with an error wrapping
// ErrInvalidTimeExpression when neither matches.
func Parse(text string, now time.Time) (Expression, error) {
	if m := clockRe.FindStringSubmatchIndex(text); m != nil {
		return parseClock(text, m, now)
	}
	if e, ok := parseDuration(text, now); ok {
		return e, nil
	}
	if durationRe.MatchString(text) {
		// Digits were present but the magnitude was unusable.
		return Expression{}, wrapInvalid("duration out of range")
	}
	return Expression{}, ErrInvalidTimeExpression
}

func parseClock(text string, m []int, now time.Time) (Expression, error) {
	start := m[4]
	if m[2] >= 0 {
		start = m[2]
	}
	end := m[7]

	h, _ := strconv.Atoi(text[m[4]:m[5]])
	mi, _ := strconv.Atoi(text[m[6]:m[7]])
	if h > 23 || mi > 59 {
		return Expression{}, ErrClockOutOfRange
	}

	y, mo, d := now.Date()
	at := time.Date(y, mo, d, h, mi, 0, 0, now.Location())
	tomorrow := false
	if !at.After(now) {
		at = time.Date(y, mo, d+1, h, mi, 0, 0, now.Location())
		tomorrow = true
	}

	return Expression{
		Kind:     MatchClock,
		At:       at,
		Delay:    at.Sub(now),
		Span:     [2]int{start, end},
		Body:     cutSpan(text, start, end),
		Hour:     h,
		Minute:   mi,
		Tomorrow: tomorrow,
	}, nil
}

func parseDuration(text string, now time.Time) (Expression, bool) {
	matches := durationRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return Expression{}, false
	}

	// Prefer the first magnitude followed by a recognized unit; otherwise
	// the first magnitude alone, in minutes.
	pick, unit, withUnit := matches[0], UnitMinute, false
	for _, m := range matches {
		if m[6] < 0 {
			continue
		}
		if u, ok := lookupUnit(text[m[6]:m[7]]); ok {
			pick, unit, withUnit = m, u, true
			break
		}
	}

	start, end := pick[2], pick[3]
	if withUnit {
		end = pick[7]
	}

	value, err := strconv.ParseInt(text[pick[2]:pick[3]], 10, 64)
	if err != nil || value <= 0 || value > int64(MaxDelay/time.Second)/unit.Seconds() {
		return Expression{}, false
	}
	delay := time.Duration(value*unit.Seconds()) * time.Second
	at := now.Add(delay).Truncate(time.Microsecond)

	return Expression{
		Kind:  MatchDuration,
		At:    at,
		Delay: at.Sub(now),
		Span:  [2]int{start, end},
		Body:  cutSpan(text, start, end),
		Value: value,
		Unit:  unit,
	}, true
}

func cutSpan(text string, start, end int) string {
	before := strings.TrimSpace(text[:start])
	after := strings.TrimSpace(text[end:])
	switch {
	case before == "":
		return after
	case after == "":
		return before
	}
	return before + " " + after
}
