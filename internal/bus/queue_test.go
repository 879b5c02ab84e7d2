package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[string]()
	q.Push("a")
	q.Push("b")
	q.Push("c")
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := NewQueue[string]()

	got := make(chan string, 1)
	go func() {
		v, _ := q.Pop()
		got <- v
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push("late")

	select {
	case v := <-got:
		assert.Equal(t, "late", v)
	case <-time.After(time.Second):
		t.Fatal("Pop never woke up")
	}
}

func TestQueueCloseDrains(t *testing.T) {
	q := NewQueue[int]()
	q.Push(1)
	q.Push(2)
	q.Close()

	// The backlog survives Close.
	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = q.Pop()
	require.True(t, ok)

	// Then Pop reports closed.
	_, ok = q.Pop()
	assert.False(t, ok)

	// Pushes after Close are dropped.
	q.Push(3)
	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestQueueCloseWakesBlockedPop(t *testing.T) {
	q := NewQueue[string]()

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop never woke up")
	}
}
