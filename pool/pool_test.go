package pool

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPool(t *testing.T) {
	t.Run("run waits for every job", func(t *testing.T) {
		p := NewPool(3)
		defer p.Cancel()
		var count int64
		jobs := make([]Job, 10)
		for i := range jobs {
			jobs[i] = func() { atomic.AddInt64(&count, 1) }
		}
		require.NoError(t, p.Run(jobs...))
		require.Equal(t, int64(10), atomic.LoadInt64(&count))
	})
	t.Run("call", func(t *testing.T) {
		p := NewPool(1)
		defer p.Cancel()
		done := make(chan struct{})
		require.NoError(t, p.Call(func() { close(done) }))
		<-done
	})
	t.Run("cancelled pool rejects jobs", func(t *testing.T) {
		p := NewPool(2)
		p.Cancel()
		p.Cancel()
		require.Equal(t, ErrPoolClosed, p.Run(func() {}))
	})
}
