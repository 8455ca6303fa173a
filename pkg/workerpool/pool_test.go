package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunningPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	p := New(cfg, nil)
	p.Start()
	t.Cleanup(func() { _ = p.Stop() })
	return p
}

func TestDoReturnsOwnResult(t *testing.T) {
	p := newRunningPool(t, Config{Workers: 2, QueueSize: 8})

	res, err := p.Do(context.Background(), "a", func(context.Context) (interface{}, error) {
		return "value", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "value", res)

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.TasksSubmitted)
	assert.Equal(t, int64(1), stats.TasksCompleted)
}

func TestDoNeverRetries(t *testing.T) {
	p := newRunningPool(t, Config{Workers: 1, QueueSize: 4})

	var calls int64
	_, err := p.Do(context.Background(), "a", func(context.Context) (interface{}, error) {
		atomic.AddInt64(&calls, 1)
		return nil, errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
	assert.Equal(t, int64(1), p.Stats().TasksFailed)
}

func TestConcurrentCallersGetTheirOwnResults(t *testing.T) {
	p := newRunningPool(t, Config{Workers: 4, QueueSize: 32})

	var wg sync.WaitGroup
	for _, want := range []string{"a", "b", "c", "d", "e", "f"} {
		want := want
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.Do(context.Background(), want, func(context.Context) (interface{}, error) {
				time.Sleep(5 * time.Millisecond)
				return want, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, want, res)
		}()
	}
	wg.Wait()
}

func TestDoQueueFull(t *testing.T) {
	p := newRunningPool(t, Config{Workers: 1, QueueSize: 1})

	block := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	started := make(chan struct{})
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			p.Do(context.Background(), "slow", func(context.Context) (interface{}, error) {
				select {
				case started <- struct{}{}:
				default:
				}
				<-block
				return nil, nil
			})
		}()
	}
	<-started
	// One task is running and one occupies the single queue slot; give the
	// second submission time to land in the queue.
	time.Sleep(20 * time.Millisecond)

	_, err := p.Do(context.Background(), "rejected", func(context.Context) (interface{}, error) {
		return nil, nil
	})
	assert.ErrorContains(t, err, "queue is full")

	close(block)
	wg.Wait()
}

func TestDoContextCancellation(t *testing.T) {
	p := newRunningPool(t, Config{Workers: 1, QueueSize: 4})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Do(ctx, "slow", func(c context.Context) (interface{}, error) {
			<-c.Done()
			return nil, c.Err()
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDoAfterStop(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1}, nil)
	p.Start()
	require.NoError(t, p.Stop())

	_, err := p.Do(context.Background(), "late", func(context.Context) (interface{}, error) {
		return nil, nil
	})
	assert.ErrorContains(t, err, "shutting down")
}
