package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gazemap-go/internal/types"
)

func frame(index int) *types.Frame {
	return &types.Frame{Scene: types.Scene{Index: index}}
}

func TestTakeReturnsNewestAfterConsecutivePuts(t *testing.T) {
	r := New()
	for i := 1; i <= 5; i++ {
		r.Put(frame(i))
	}

	got, err := r.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, got.Scene.Index)

	stats := r.Stats()
	assert.Equal(t, uint64(5), stats.Puts)
	assert.Equal(t, uint64(1), stats.Takes)
	assert.Equal(t, uint64(4), stats.Drops)
}

func TestTakeNeverRedeliversAFrame(t *testing.T) {
	r := New()
	r.Put(frame(1))

	got, err := r.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, got.Scene.Index)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	again, err := r.Take(ctx)
	assert.Nil(t, again)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTakeBlocksUntilPut(t *testing.T) {
	r := New()
	result := make(chan *types.Frame, 1)
	go func() {
		f, err := r.Take(context.Background())
		if err != nil {
			result <- nil
			return
		}
		result <- f
	}()

	select {
	case <-result:
		t.Fatal("Take returned before any Put")
	case <-time.After(20 * time.Millisecond):
	}

	r.Put(frame(7))
	select {
	case f := <-result:
		require.NotNil(t, f)
		assert.Equal(t, 7, f.Scene.Index)
	case <-time.After(time.Second):
		t.Fatal("Take did not wake after Put")
	}
}

func TestPutNeverBlocks(t *testing.T) {
	r := New()
	start := time.Now()
	for i := 0; i < 10000; i++ {
		r.Put(frame(i))
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestCloseWakesTake(t *testing.T) {
	r := New()
	errs := make(chan error, 1)
	go func() {
		_, err := r.Take(context.Background())
		errs <- err
	}()

	time.Sleep(10 * time.Millisecond)
	r.Close()
	r.Close()

	select {
	case err := <-errs:
		assert.True(t, errors.Is(err, ErrClosed))
	case <-time.After(time.Second):
		t.Fatal("Take did not return after Close")
	}

	r.Put(frame(1))
	_, err := r.Take(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

// TestConcurrentTakesDeliverEachFrameOnce checks that with several consumers
// no frame index is observed twice and indexes never go backwards per
// consumer.
func TestConcurrentTakesDeliverEachFrameOnce(t *testing.T) {
	r := New()
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	seen := map[int]int{}
	var wg sync.WaitGroup
	for c := 0; c < 3; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := -1
			for {
				f, err := r.Take(ctx)
				if err != nil {
					return
				}
				if f.Scene.Index <= last {
					t.Errorf("consumer saw index %d after %d", f.Scene.Index, last)
				}
				last = f.Scene.Index
				mu.Lock()
				seen[f.Scene.Index]++
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < 2000; i++ {
		r.Put(frame(i))
	}
	time.Sleep(20 * time.Millisecond)
	cancel()
	wg.Wait()

	for index, count := range seen {
		if count != 1 {
			t.Fatalf("frame %d delivered %d times", index, count)
		}
	}
}
