package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestReadyQueueFIFO: if task A is
// pushed before task B and neither is otherwise removed, A is popped
// before B.
func TestReadyQueueFIFO(t *testing.T) {
	p := NewProcessor(0)
	q := NewReadyQueue()

	a := &Task{id: 1}
	b := &Task{id: 2}
	c := &Task{id: 3}

	q.PushBack(p, a)
	q.PushBack(p, b)
	q.PushBack(p, c)

	require.Equal(t, 3, q.Len(p))
	require.Same(t, a, q.FetchTask(p))
	require.Same(t, b, q.FetchTask(p))
	require.Same(t, c, q.FetchTask(p))
	require.Nil(t, q.FetchTask(p))
}

func TestReadyQueueInterleavedPushFetch(t *testing.T) {
	p := NewProcessor(0)
	q := NewReadyQueue()
	a, b, c := &Task{id: 1}, &Task{id: 2}, &Task{id: 3}

	q.PushBack(p, a)
	require.Same(t, a, q.FetchTask(p))
	q.PushBack(p, b)
	q.PushBack(p, c)
	require.Same(t, b, q.FetchTask(p))
	require.Same(t, c, q.FetchTask(p))
}
