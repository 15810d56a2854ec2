package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanout(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	b.Publish(Event{Type: ScheduleFired, Data: Firing{Schedule: "backup"}})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			assert.Equal(t, ScheduleFired, e.Type)
			assert.False(t, e.Time.IsZero())
			assert.Equal(t, "backup", e.Data.(Firing).Schedule)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	unsubA()
	unsubA()
	_, open := <-a
	assert.False(t, open)

	b.Publish(Event{Type: TaskStarted})
	e := <-c
	assert.Equal(t, TaskStarted, e.Type)
}

func TestSlowSubscriberDrops(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	for i := 0; i < 3; i++ {
		b.Publish(Event{Type: TaskFinished})
	}
	require.Len(t, ch, 1)
	assert.Equal(t, uint64(2), b.Dropped())
}

func TestNop(t *testing.T) {
	var b Bus = Nop{}
	b.Publish(Event{Type: ScheduleFault})
	ch, unsub := b.Subscribe(1)
	unsub()
	_, open := <-ch
	assert.False(t, open)
}
