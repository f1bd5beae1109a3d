package reminder

import (
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys. Templates are Telegram HTML; user-supplied arguments must be
// escaped by the caller.
const (
	MsgNoReminders   = "no_reminders"
	MsgYourReminders = "your_reminders"
	MsgReminderLine  = "reminder_line"
	MsgAdded         = "added"
	MsgCanceled      = "canceled"
	MsgNoSuchNumber  = "no_such_number"
	MsgCancelUsage   = "cancel_usage"
	MsgCleared       = "cleared"
	MsgAlreadyEmpty  = "already_empty"
	MsgNoText        = "no_text"
	MsgInvalidTime   = "invalid_time"
	MsgInvalidClock  = "invalid_clock"
	MsgTooMany       = "too_many"
	MsgOpenDM        = "pls_open_dm"
	MsgRemindNow     = "remind_now"
	MsgExamples      = "examples"
	MsgHelp          = "help"

	MsgLessThanMinute = "less_than_minute"
	MsgInMinutes      = "in_minutes"
	MsgAtClock        = "at_clock"
	MsgTomorrow       = "tomorrow"
	MsgInDuration     = "in_duration"
	MsgUnitSecond     = "unit_s"
	MsgUnitMinute     = "unit_min"
	MsgUnitHour       = "unit_h"
	MsgUnitDay        = "unit_day"
)

const helpText = "<b>Команди нагадувача / Reminder commands:</b>\n\n" +
	"<code>!нагадай 10хв Текст</code> / <code>!remind 10min Text</code> - нагадати через час / remind after a delay\n" +
	"<code>!нагадай о 18:30 Текст</code> / <code>!remind at 18:30 Text</code> - нагадати о певний час / remind at a clock time\n" +
	"<code>!моїнагадування</code> / <code>!reminders</code> - показати нагадування / list reminders\n" +
	"<code>!скасувати 1</code> / <code>!cancel 1</code> - скасувати №1 / cancel #1\n" +
	"<code>!очиститинагадування</code> / <code>!clearreminders</code> - видалити всі / clear all\n\n" +
	"Нагадування приходять у приват. Якщо не приходять, відкрий чат із ботом і натисни Start.\n" +
	"Reminders arrive in a private chat. If they don't, open a chat with the bot and press Start."

const cancelUsage = "Вкажи номер: <code>!скасувати 2</code> або <code>!cancel 3</code>"

var messages = map[Locale]map[string]string{
	LocaleUA: {
		MsgNoReminders:   "%s, у тебе немає активних нагадувань 😊",
		MsgYourReminders: "<b>Твої нагадування (%s):</b>",
		MsgReminderLine:  "%s. <b>%s</b> — %s",
		MsgAdded:         "Ок! Нагадаю в приват %s: <b>%s</b> ⏰\nПереглянути: <code>!моїнагадування</code>\nСкасувати: <code>!скасувати [номер]</code>",
		MsgCanceled:      "Нагадування №%s скасовано.",
		MsgNoSuchNumber:  "Немає нагадування з номером %s. Перевір список: <code>!моїнагадування</code>",
		MsgCancelUsage:   cancelUsage,
		MsgCleared:       "Усі твої нагадування очищено! Тепер чистий аркуш ✂️",
		MsgAlreadyEmpty:  "У тебе вже немає активних нагадувань 😊",
		MsgNoText:        "Вкажи текст після часу!",
		MsgInvalidTime:   "Не зрозумів час. Приклади: 10хв, 30с, о 18:30",
		MsgInvalidClock:  "Час некоректний (00:00–23:59).",
		MsgTooMany:       "Забагато активних нагадувань (максимум %s). Скасуй якесь: <code>!моїнагадування</code>",
		MsgOpenDM:        "%s, відкрий приват із ботом і натисни Start, щоб я міг писати тобі.",
		MsgRemindNow:     "НАГАДУЮ: <b>%s</b> 🚨",
		MsgExamples:      "Приклади:\n<code>!нагадай 10хв Пити воду</code>\n<code>!нагадай о 18:30 Вечеря</code>\nПереглянути: <code>!моїнагадування</code>",
		MsgHelp:          helpText,

		MsgLessThanMinute: "менше хвилини",
		MsgInMinutes:      "через %s хв",
		MsgAtClock:        "о %s",
		MsgTomorrow:       "завтра",
		MsgInDuration:     "через %s %s",
		MsgUnitSecond:     "с",
		MsgUnitMinute:     "хв",
		MsgUnitHour:       "год",
		MsgUnitDay:        "д",
	},
	LocaleEN: {
		MsgNoReminders:   "%s, you have no active reminders 😊",
		MsgYourReminders: "<b>Your reminders (%s):</b>",
		MsgReminderLine:  "%s. <b>%s</b> — %s",
		MsgAdded:         "Got it! Reminding in DM %s: <b>%s</b> ⏰\nView: <code>!reminders</code>\nCancel: <code>!cancel [number]</code>",
		MsgCanceled:      "Reminder #%s canceled.",
		MsgNoSuchNumber:  "No reminder with number %s. Check list: <code>!reminders</code>",
		MsgCancelUsage:   cancelUsage,
		MsgCleared:       "All your reminders cleared! Fresh start ✂️",
		MsgAlreadyEmpty:  "You already have no active reminders 😊",
		MsgNoText:        "Please add reminder text after the time!",
		MsgInvalidTime:   "Didn't understand the time. Examples: 10min, 30s, at 18:30",
		MsgInvalidClock:  "Invalid time (00:00–23:59).",
		MsgTooMany:       "Too many active reminders (limit %s). Cancel one first: <code>!reminders</code>",
		MsgOpenDM:        "%s, please open a private chat with me and press Start so I can message you.",
		MsgRemindNow:     "REMINDER: <b>%s</b> 🚨",
		MsgExamples:      "Examples:\n<code>!remind 10min Drink water</code>\n<code>!remind at 18:30 Dinner</code>\nView: <code>!reminders</code>",
		MsgHelp:          helpText,

		MsgLessThanMinute: "less than a minute",
		MsgInMinutes:      "in %s min",
		MsgAtClock:        "at %s",
		MsgTomorrow:       "tomorrow",
		MsgInDuration:     "in %s %s",
		MsgUnitSecond:     "s",
		MsgUnitMinute:     "min",
		MsgUnitHour:       "h",
		MsgUnitDay:        "day",
	},
}

var catalogue = buildCatalog()

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for lang, msgs := range messages {
		tag := lang.Tag()
		for key, tmpl := range msgs {
			if err := b.SetString(tag, key, tmpl); err != nil {
				panic("reminder: catalog " + string(lang) + "/" + key + ": " + err.Error())
			}
		}
	}
	return b
}

// T formats the message key in lang. Integers are written out plainly,
// since the printer would group their digits ("1,500", "1 500"); templates
// take them as %s.
func T(lang Locale, key string, args ...any) string {
	plain := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case int:
			plain[i] = strconv.Itoa(v)
		case int64:
			plain[i] = strconv.FormatInt(v, 10)
		default:
			plain[i] = a
		}
	}
	return message.NewPrinter(lang.Tag(), message.Catalog(catalogue)).Sprintf(key, plain...)
}
