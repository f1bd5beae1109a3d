package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"remindbot/internal/eventbus"
	kit "remindbot/internal/transport"
)

type sentMsg struct {
	to   kit.ChatTarget
	text string
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sentMsg
	failTo map[int64]error
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{to: to, text: text})
	if err := f.failTo[to.ChatID]; err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func fired(origin int64) Reminder {
	return Reminder{
		ID:        "r1",
		Owner:     100,
		OwnerName: "Ann",
		FireAt:    time.Now(),
		Text:      "Drink <3 water",
		Lang:      LocaleEN,
		Origin:    kit.ChatTarget{ChatID: origin, ThreadID: 9},
	}
}

func TestNotifyDirect(t *testing.T) {
	f := &fakeSender{}
	n := NewDirectNotifier(f, WithRate(50))

	require.NoError(t, n.Notify(context.Background(), fired(-500)))
	require.Len(t, f.sent, 1)
	require.Equal(t, kit.DirectTarget(100), f.sent[0].to)
	require.Equal(t, "REMINDER: <b>Drink &lt;3 water</b> 🚨", f.sent[0].text)
	require.Equal(t, uint64(1), n.Stats().Delivered)
}

func TestNotifyFallsBackToOriginOnce(t *testing.T) {
	f := &fakeSender{failTo: map[int64]error{100: errors.New("bot was blocked by the user")}}
	n := NewDirectNotifier(f)

	require.NoError(t, n.Notify(context.Background(), fired(-500)))
	require.Len(t, f.sent, 2)
	require.Equal(t, kit.ChatTarget{ChatID: -500, ThreadID: 9}, f.sent[1].to)
	require.Contains(t, f.sent[1].text, `<a href="tg://user?id=100">Ann</a>`)
	require.Contains(t, f.sent[1].text, "please open a private chat")
	require.Equal(t, uint64(1), n.Stats().Fallbacks)
}

func TestNotifyLostWhenBothFail(t *testing.T) {
	f := &fakeSender{failTo: map[int64]error{
		100:  errors.New("forbidden"),
		-500: errors.New("chat not found"),
	}}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()
	n := NewDirectNotifier(f, WithNotifierEvents(bus))

	err := n.Notify(context.Background(), fired(-500))
	require.ErrorIs(t, err, ErrNotificationDelivery)
	require.Len(t, f.sent, 2)
	require.Equal(t, uint64(1), n.Stats().Lost)

	ev := <-events
	require.Equal(t, EventLost, ev.Type)
	require.Equal(t, "r1", ev.Data.(Lifecycle).Reminder.ID)
}

func TestNotifyNoFallbackFromPrivateChat(t *testing.T) {
	f := &fakeSender{failTo: map[int64]error{100: errors.New("forbidden")}}
	n := NewDirectNotifier(f)

	err := n.Notify(context.Background(), fired(100))
	require.ErrorIs(t, err, ErrNotificationDelivery)
	require.Len(t, f.sent, 1)
}
