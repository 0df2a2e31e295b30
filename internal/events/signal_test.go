package events_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbarrios/gastosync/internal/events"
)

func TestSignalGetBeforeSet(t *testing.T) {
	sig := events.NewSignal[int]()

	_, ok := sig.Get()
	assert.False(t, ok)

	sig.Set(7)
	v, ok := sig.Get()
	assert.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestSubscribeDeliversCurrentValueFirst(t *testing.T) {
	sig := events.NewSignal[string]()
	sig.Set("initial")

	sub := sig.Subscribe(4)
	defer sub.Cancel()

	assert.Equal(t, "initial", <-sub.C)

	sig.Set("update")
	assert.Equal(t, "update", <-sub.C)
}

func TestSubscribeBeforeFirstValue(t *testing.T) {
	sig := events.NewSignal[string]()

	sub := sig.Subscribe(4)
	defer sub.Cancel()

	select {
	case v := <-sub.C:
		t.Fatalf("unexpected value %q before first Set", v)
	default:
	}

	sig.Set("first")
	assert.Equal(t, "first", <-sub.C)
}

func TestSlowSubscriberDropsUpdates(t *testing.T) {
	sig := events.NewSignal[int]()

	sub := sig.Subscribe(1)
	defer sub.Cancel()

	// Publisher never blocks, even with a full buffer.
	for i := 0; i < 10; i++ {
		sig.Set(i)
	}

	v := <-sub.C
	assert.Equal(t, 0, v)

	// Latest state is always readable directly.
	latest, ok := sig.Get()
	require.True(t, ok)
	assert.Equal(t, 9, latest)
}

func TestCancelIsIdempotent(t *testing.T) {
	sig := events.NewSignal[int]()
	sub := sig.Subscribe(1)

	sub.Cancel()
	sub.Cancel() // must not panic

	_, open := <-sub.C
	assert.False(t, open)

	// Publishing after cancel must not panic either.
	sig.Set(1)
}

func TestMultipleSubscribers(t *testing.T) {
	sig := events.NewSignal[int]()

	a := sig.Subscribe(4)
	defer a.Cancel()
	b := sig.Subscribe(4)
	defer b.Cancel()

	sig.Set(42)

	assert.Equal(t, 42, <-a.C)
	assert.Equal(t, 42, <-b.C)
}
