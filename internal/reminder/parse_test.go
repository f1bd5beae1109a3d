package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(h, m int) time.Time { return time.Date(2026, 3, 14, h, m, 0, 0, time.Local) }

func TestParseDurationUnits(t *testing.T) {
	now := at(12, 0)
	cases := []struct {
		in      string
		seconds int64
		body    string
	}{
		{"10min Drink water", 600, "Drink water"},
		{"30s tea", 30, "tea"},
		{"45 sec stretch", 45, "stretch"},
		{"2 h nap", 7200, "nap"},
		{"3 hours deploy", 10800, "deploy"},
		{"1 day rent", 86400, "rent"},
		{"7 m walk", 420, "walk"},
		{"5 Drink", 300, "Drink"},
		{"10хв Пити воду", 600, "Пити воду"},
		{"3 год сон", 10800, "сон"},
		{"2 дні відпустка", 172800, "відпустка"},
		{"20 с чай", 20, "чай"},
		{"Drink 2 glasses in 10min", 600, "Drink 2 glasses in"},
		{"x10min tea", 600, "x tea"},
		{"1500s boil", 1500, "boil"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			e, err := Parse(tc.in, now)
			require.NoError(t, err)
			require.Equal(t, MatchDuration, e.Kind)
			assert.Equal(t, tc.seconds, e.Value*e.Unit.Seconds())
			assert.Equal(t, time.Duration(tc.seconds)*time.Second, e.Delay)
			assert.True(t, e.At.Equal(now.Add(e.Delay)))
			assert.Equal(t, tc.body, e.Body)
		})
	}
}

func TestParseDurationDescribe(t *testing.T) {
	now := at(12, 0)
	e, err := Parse("10min Drink water", now)
	require.NoError(t, err)
	require.Equal(t, "in 10 min", e.Describe(LocaleEN))
	require.Equal(t, "через 10 хв", e.Describe(LocaleUA))
	require.True(t, e.At.Equal(now.Add(600*time.Second)))

	e, err = Parse("2 d trip", now)
	require.NoError(t, err)
	require.Equal(t, "in 2 day", e.Describe(LocaleEN))
}

func TestParseClockRollsForward(t *testing.T) {
	e, err := Parse("at 18:30 Dinner", at(19, 0))
	require.NoError(t, err)
	require.Equal(t, MatchClock, e.Kind)
	require.True(t, e.Tomorrow)
	require.True(t, e.At.Equal(time.Date(2026, 3, 15, 18, 30, 0, 0, time.Local)))
	require.Equal(t, "Dinner", e.Body)
	require.Contains(t, e.Describe(LocaleEN), "tomorrow")
	require.Equal(t, "о 18:30 завтра", e.Describe(LocaleUA))

	e, err = Parse("at 18:30 Dinner", at(17, 0))
	require.NoError(t, err)
	require.False(t, e.Tomorrow)
	require.True(t, e.At.Equal(at(18, 30)))
	require.Equal(t, "at 18:30", e.Describe(LocaleEN))
	require.Equal(t, 90*time.Minute, e.Delay)

	// Exactly now counts as passed.
	e, err = Parse("18:30 Dinner", at(18, 30))
	require.NoError(t, err)
	require.True(t, e.Tomorrow)
	require.Equal(t, 24*time.Hour, e.Delay)
}

func TestParseClockMarkersAndPlacement(t *testing.T) {
	now := at(8, 0)
	cases := []struct {
		in   string
		body string
		h, m int
	}{
		{"о 9:05 Зарядка", "Зарядка", 9, 5},
		{"Вечеря в 19:00", "Вечеря", 19, 0},
		{"Dinner at18:30", "Dinner", 18, 30},
		{"AT 10:00 standup", "standup", 10, 0},
		{"Kate 9:15 walk", "Kate walk", 9, 15},
		{"на 23:59 спати", "спати", 23, 59},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			e, err := Parse(tc.in, now)
			require.NoError(t, err)
			require.Equal(t, MatchClock, e.Kind)
			assert.Equal(t, tc.body, e.Body)
			assert.Equal(t, tc.h, e.Hour)
			assert.Equal(t, tc.m, e.Minute)
		})
	}
}

func TestParseClockBeforeDuration(t *testing.T) {
	e, err := Parse("10min then at 18:30 call", at(12, 0))
	require.NoError(t, err)
	require.Equal(t, MatchClock, e.Kind)
	require.Equal(t, "10min then call", e.Body)
}

func TestParseClockWinsOverGluedSuffix(t *testing.T) {
	e, err := Parse("18:30h tea", at(12, 0))
	require.NoError(t, err)
	require.Equal(t, MatchClock, e.Kind)
	require.Equal(t, 18, e.Hour)
	require.Equal(t, 30, e.Minute)
	require.Equal(t, "h tea", e.Body)

	// A third minute digit is not a clock; the magnitudes fall to the
	// duration grammar.
	e, err = Parse("18:305 x", at(12, 0))
	require.NoError(t, err)
	require.Equal(t, MatchDuration, e.Kind)
}

func TestParseRejects(t *testing.T) {
	now := at(12, 0)

	for _, in := range []string{"25:00 x", "18:75 x", "at 24:00 x"} {
		_, err := Parse(in, now)
		require.ErrorIs(t, err, ErrClockOutOfRange, in)
		require.ErrorIs(t, err, ErrInvalidTimeExpression, in)
	}

	for _, in := range []string{"Drink water", "", "0 min nothing", "99999999999999999999 s"} {
		_, err := Parse(in, now)
		require.ErrorIs(t, err, ErrInvalidTimeExpression, in)
	}
}

func TestParseEmptyBodyIsCallersCall(t *testing.T) {
	e, err := Parse("5 ", at(12, 0))
	require.NoError(t, err)
	require.Equal(t, "", e.Body)
	require.Equal(t, 5*time.Minute, e.Delay)
}

func TestDetectLocale(t *testing.T) {
	require.Equal(t, LocaleUA, DetectLocale("нагадай 10хв Пити воду"))
	require.Equal(t, LocaleUA, DetectLocale("ПРИВІТ"))
	require.Equal(t, LocaleEN, DetectLocale("remind 10min Drink water"))
	require.Equal(t, LocaleEN, DetectLocale("10:30"))
}

func TestMessages(t *testing.T) {
	require.Equal(t, "Нагадування №2 скасовано.", T(LocaleUA, MsgCanceled, 2))
	require.Equal(t, "Reminder #3 canceled.", T(LocaleEN, MsgCanceled, 3))
	require.Equal(t, "Reminder #1234 canceled.", T(LocaleEN, MsgCanceled, 1234))
	require.Equal(t, "Нагадування №1234 скасовано.", T(LocaleUA, MsgCanceled, 1234))
	require.Equal(t, "Too many active reminders (limit 10000). Cancel one first: <code>!reminders</code>", T(LocaleEN, MsgTooMany, 10000))
	require.Equal(t, "REMINDER: <b>tea</b> 🚨", T(LocaleEN, MsgRemindNow, "tea"))
	require.Equal(t, T(LocaleUA, MsgHelp), T(LocaleEN, MsgHelp))
}

func TestDescribeLargeMagnitudesAreNotGrouped(t *testing.T) {
	e, err := Parse("1500s tea", at(12, 0))
	require.NoError(t, err)
	require.Equal(t, "in 1500 s", e.Describe(LocaleEN))
	require.Equal(t, "через 1500 с", e.Describe(LocaleUA))
}
