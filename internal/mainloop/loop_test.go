package mainloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_RunsJobsInOrder(t *testing.T) {
	l := New(16)
	l.Start()
	defer l.Stop()

	results := make(chan int, 3)
	for i := 1; i <= 3; i++ {
		i := i
		require.True(t, l.Queue(func() { results <- i }))
	}

	for want := 1; want <= 3; want++ {
		select {
		case got := <-results:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("job %d never ran", want)
		}
	}
}

func TestLoop_QueueAfterStop(t *testing.T) {
	l := New(4)
	l.Start()
	l.Stop()

	assert.False(t, l.Queue(func() {}))
}

func TestLoop_QueueFullDropsJob(t *testing.T) {
	l := New(1)
	// not started, so the buffered slot fills and the next job is dropped
	assert.True(t, l.Queue(func() {}))
	assert.False(t, l.Queue(func() {}))
}

func TestLoop_StopIsIdempotent(t *testing.T) {
	l := New(4)
	l.Start()
	l.Stop()
	l.Stop()
}
