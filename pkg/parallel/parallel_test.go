package parallel

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_KeepsIndexOrder(t *testing.T) {
	out, err := Map(context.Background(), 20, 4, func(_ context.Context, i int) (int, error) {
		// les premières tâches finissent en dernier
		time.Sleep(time.Duration(20-i) * time.Millisecond)
		return i * i, nil
	})
	require.NoError(t, err)
	for i, v := range out {
		if v != i*i {
			t.Fatalf("out[%d] = %d, want %d", i, v, i*i)
		}
	}
}

func TestMap_RespectsLimit(t *testing.T) {
	var running, peak int32
	_, err := Map(context.Background(), 30, 3, func(_ context.Context, _ int) (struct{}, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&running, -1)
		return struct{}{}, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestMap_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	out, err := Map(context.Background(), 10, 2, func(_ context.Context, i int) (int, error) {
		if i == 5 {
			return 0, boom
		}
		return i, nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, out)
}

func TestMap_Empty(t *testing.T) {
	out, err := Map(context.Background(), 0, 0, func(_ context.Context, _ int) (int, error) {
		t.Fatal("fn must not be called")
		return 0, nil
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMap_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Map(ctx, 5, 1, func(_ context.Context, i int) (int, error) { return i, nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorkers(t *testing.T) {
	assert.Equal(t, runtime.GOMAXPROCS(0), Workers(0))
	assert.Equal(t, runtime.GOMAXPROCS(0), Workers(-3))
	assert.Equal(t, 7, Workers(7))
}

func TestConcat(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3}, Concat([][]int{{1}, nil, {2, 3}}))
	assert.Empty(t, Concat[int](nil))
}
