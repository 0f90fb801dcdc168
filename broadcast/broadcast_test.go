package broadcast

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := New[int]()
	a, cancelA := b.Subscribe(4)
	c, cancelC := b.Subscribe(4)
	defer cancelA()
	defer cancelC()

	b.Publish(1)
	b.Publish(2)

	assert.Equal(t, 1, <-a)
	assert.Equal(t, 2, <-a)
	assert.Equal(t, 1, <-c)
	assert.Equal(t, 2, <-c)
	assert.Equal(t, 2, b.SubscriberCount())
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	b := New[int]()
	ch, cancel := b.Subscribe(2)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 1; i <= 100; i++ {
			b.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	assert.Equal(t, 99, <-ch)
	assert.Equal(t, 100, <-ch)
}

func TestSubscribeReceivesLatest(t *testing.T) {
	b := New[string]()
	_, ok := b.Latest()
	assert.False(t, ok)

	b.Publish("connecting")
	b.Publish("connected")

	ch, cancel := b.Subscribe(1)
	defer cancel()
	assert.Equal(t, "connected", <-ch)

	latest, ok := b.Latest()
	require.True(t, ok)
	assert.Equal(t, "connected", latest)
}

func TestCancelAndClose(t *testing.T) {
	b := New[int]()
	ch, cancel := b.Subscribe(1)
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount())

	other, cancelOther := b.Subscribe(1)
	b.Close()
	b.Close()
	_, open = <-other
	assert.False(t, open)
	cancelOther()

	b.Publish(5)
	late, _ := b.Subscribe(1)
	_, open = <-late
	assert.False(t, open)
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	b := New[int]()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Publish(n*100 + j)
			}
		}(i)
		go func() {
			defer wg.Done()
			ch, cancel := b.Subscribe(1)
			<-ch
			cancel()
		}()
	}
	b.Publish(-1)

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock")
	}
}
