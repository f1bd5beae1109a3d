package reminder

import (
	"time"

	"remindbot/internal/eventbus"
)

// Lifecycle event types published on the event bus.
const (
	EventCreated = "reminder.created"
	EventFired   = "reminder.fired"
	EventRemoved = "reminder.removed"
	EventLost    = "reminder.lost"
)

// Removal reasons carried by EventRemoved.
const (
	ReasonCanceled = "cancel"
	ReasonCleared  = "clear"
)

// Lifecycle is the payload of every reminder.* event.
type Lifecycle struct {
	Reminder Reminder
	Reason   string
	Err      error
}

func publish(bus *eventbus.Bus, typ string, now time.Time, ev Lifecycle) {
	if bus == nil {
		return
	}
	bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}
