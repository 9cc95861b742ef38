package updates

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/tgcollect/internal/collector"
	"github.com/dokzlo13/tgcollect/internal/eventbus"
	"github.com/dokzlo13/tgcollect/internal/models"
)

type recorder struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (r *recorder) Publish(e eventbus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

const sample = `{"update_id":1,"message":{"message_id":10,"chat":{"id":1001},"from":{"id":5},"text":"hi"}}

not json
{"update_id":2}
{"update_id":3,"message_reaction":{"chat":{"id":1001},"message_id":10,"user":{"id":5},"old_reaction":[],"new_reaction":[{"type":"emoji","emoji":"👍"}]}}
{"update_id":4,"callback_query":{"id":"q1","from":{"id":6},"data":"yes"}}
{"update_id":5,"message_deleted":{"chat":{"id":1001},"message_id":10}}
{"update_id":6,"message":{"message_id":11,"chat":{"id":1}},"callback_query":{"id":"q2","from":{"id":6}}}
`

func TestReplay_PublishesTypedEvents(t *testing.T) {
	rec := &recorder{}
	stats, err := Replay(context.Background(), strings.NewReader(sample), rec, Options{})
	require.NoError(t, err)

	assert.Equal(t, Stats{Lines: 8, Published: 4, Skipped: 3}, stats)
	require.Len(t, rec.events, 4)

	assert.Equal(t, eventbus.EventTypeMessage, rec.events[0].Type)
	m := rec.events[0].Payload.(*models.Message)
	assert.Equal(t, 10, m.ID)
	assert.Equal(t, int64(1001), m.Chat.ID)
	assert.Equal(t, "hi", m.Text)

	assert.Equal(t, eventbus.EventTypeMessageReaction, rec.events[1].Type)
	r := rec.events[1].Payload.(*models.MessageReactionUpdated)
	require.Len(t, r.Added(), 1)
	assert.Equal(t, "👍", r.Added()[0].Identifier())

	assert.Equal(t, eventbus.EventTypeCallbackQuery, rec.events[2].Type)
	assert.Equal(t, "yes", rec.events[2].Payload.(*models.CallbackQuery).Data)

	assert.Equal(t, eventbus.EventTypeMessageDeleted, rec.events[3].Type)
	assert.Equal(t, 10, rec.events[3].Payload.(*models.MessageDeleted).MessageID)
}

func TestReplay_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	lines := strings.Repeat(`{"message":{"message_id":1,"chat":{"id":1}}}`+"\n", 1000)
	stats, err := Replay(ctx, strings.NewReader(lines), rec, Options{Interval: 10 * time.Millisecond})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, stats.Published, 1000)
}

func TestUpdate_Event(t *testing.T) {
	_, err := (&Update{}).Event()
	assert.ErrorIs(t, err, errNoPayload)

	e, err := (&Update{CallbackQuery: &models.CallbackQuery{ID: "x"}}).Event()
	require.NoError(t, err)
	assert.Equal(t, eventbus.EventTypeCallbackQuery, e.Type)
}

// A replay larger than the bus queue must not lose events
func TestReplay_WaitsForBusQueue(t *testing.T) {
	bus := eventbus.NewWithConfig(1, 8)
	defer bus.Close(context.Background())

	const n = 200
	mc, err := collector.NewMessageCollector(context.Background(), bus, 1001, collector.MessageOptions{
		Max:  n,
		Time: 10 * time.Second,
	})
	require.NoError(t, err)

	ended := make(chan collector.Reason, 1)
	mc.OnCollect(func(*models.Message, *collector.Collection[int, *models.Message]) {
		time.Sleep(100 * time.Microsecond)
	})
	mc.OnEnd(func(_ *collector.Collection[int, *models.Message], reason collector.Reason) {
		ended <- reason
	})

	var b strings.Builder
	for i := 1; i <= n; i++ {
		b.WriteString(`{"message":{"message_id":`)
		b.WriteString(strconv.Itoa(i))
		b.WriteString(`,"chat":{"id":1001}}}` + "\n")
	}

	stats, err := Replay(context.Background(), strings.NewReader(b.String()), bus, Options{})
	require.NoError(t, err)
	assert.Equal(t, n, stats.Published)

	select {
	case reason := <-ended:
		assert.Equal(t, collector.ReasonLimit, reason)
	case <-time.After(5 * time.Second):
		t.Fatalf("collector did not reach limit, collected %d", mc.Collected().Len())
	}
	assert.Equal(t, n, mc.Collected().Len())
}
