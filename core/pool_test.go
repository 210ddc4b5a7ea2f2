package core

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPool(t *testing.T) {
	t.Run("Get and Put", func(t *testing.T) {
		pool := NewBufferPool(128, 0)
		buf := pool.Get()
		require.NotNil(t, buf)
		assert.GreaterOrEqual(t, buf.Cap(), 128)

		buf.WriteString("manifest bytes")
		pool.Put(buf)

		buf2 := pool.Get()
		assert.Equal(t, 0, buf2.Len(), "reused buffer should be reset")
		hits, misses, dropped, size := pool.GetMetrics()
		assert.Equal(t, uint64(1), hits)
		assert.Equal(t, uint64(1), misses)
		assert.Equal(t, uint64(0), dropped)
		assert.Equal(t, 0, size)
	})

	t.Run("Oversized buffers are dropped", func(t *testing.T) {
		pool := NewBufferPool(0, 16)
		pool.Put(bytes.NewBuffer(make([]byte, 0, 1024)))
		_, _, dropped, size := pool.GetMetrics()
		assert.Equal(t, uint64(1), dropped)
		assert.Equal(t, 0, size)
	})

	t.Run("Concurrent Access", func(t *testing.T) {
		pool := NewBufferPool(64, 0)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					buf := pool.Get()
					buf.WriteString("x")
					pool.Put(buf)
				}
			}()
		}
		wg.Wait()
		hits, misses, _, size := pool.GetMetrics()
		assert.Equal(t, uint64(5000), hits+misses)
		assert.Equal(t, int(misses), size)
	})
}

func TestGenericPool(t *testing.T) {
	created := 0
	pool := NewGenericPool(func() []int {
		created++
		return make([]int, 0, 4)
	})
	s := pool.Get()
	require.NotNil(t, s)
	pool.Put(s[:0])
	assert.GreaterOrEqual(t, created, 1)
}
