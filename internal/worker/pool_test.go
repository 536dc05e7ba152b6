package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ysocial/internal/metrics"
)

func newTestPool(t *testing.T, workers int) (*Pool, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPool(workers, 16, log, m), m
}

func TestPool_OrderPerKey(t *testing.T) {
	p, _ := newTestPool(t, 4)

	var mu sync.Mutex
	got := make(map[string][]int)

	for i := 0; i < 100; i++ {
		for _, key := range []string{"post:1", "post:2", "user:3"} {
			require.NoError(t, p.Submit(key, "append", func(ctx context.Context) error {
				mu.Lock()
				got[key] = append(got[key], i)
				mu.Unlock()
				return nil
			}))
		}
	}
	require.NoError(t, p.Close())

	for key, seq := range got {
		require.Len(t, seq, 100, key)
		for i, v := range seq {
			assert.Equal(t, i, v, "порядок нарушен для %s", key)
		}
	}
}

func TestPool_Do(t *testing.T) {
	p, m := newTestPool(t, 2)
	defer p.Close()

	t.Run("Успешная задача", func(t *testing.T) {
		ran := false
		err := p.Do(context.Background(), "post:1", "ok", func(ctx context.Context) error {
			ran = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, ran)
	})

	t.Run("Ошибка задачи", func(t *testing.T) {
		boom := errors.New("boom")
		err := p.Do(context.Background(), "post:1", "fail", func(ctx context.Context) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, p.Err(), boom)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.WriteTasks.WithLabelValues("error")))
	})

	t.Run("Паника в задаче", func(t *testing.T) {
		err := p.Do(context.Background(), "post:2", "panic", func(ctx context.Context) error {
			panic("oops")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "oops")
	})

	t.Run("Отмененный контекст до постановки", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		ran := false
		err := p.Do(ctx, "user:9", "skipped", func(ctx context.Context) error {
			ran = true
			return nil
		})
		require.NoError(t, p.Flush(context.Background()))

		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, ran)
	})

	t.Run("Отмена после постановки дожидается результата", func(t *testing.T) {
		started := make(chan struct{})
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go func() {
			<-started
			cancel()
		}()

		err := p.Do(ctx, "user:9", "slow", func(context.Context) error {
			close(started)
			time.Sleep(20 * time.Millisecond)
			return nil
		})
		assert.NoError(t, err)
		assert.Error(t, ctx.Err())
	})

	t.Run("Ошибка задачи после отмены", func(t *testing.T) {
		boom := errors.New("constraint")
		started := make(chan struct{})
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go func() {
			<-started
			cancel()
		}()

		err := p.Do(ctx, "user:10", "slow fail", func(context.Context) error {
			close(started)
			time.Sleep(20 * time.Millisecond)
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, context.Canceled)
	})
}

func TestPool_Flush(t *testing.T) {
	p, _ := newTestPool(t, 8)
	defer p.Close()

	var mu sync.Mutex
	done := 0
	for i := 0; i < 50; i++ {
		require.NoError(t, p.Submit(fmt.Sprintf("post:%d", i), "count", func(ctx context.Context) error {
			time.Sleep(time.Millisecond)
			mu.Lock()
			done++
			mu.Unlock()
			return nil
		}))
	}

	require.NoError(t, p.Flush(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 50, done)
}

func TestPool_Close(t *testing.T) {
	p, m := newTestPool(t, 3)

	boom := errors.New("store down")
	require.NoError(t, p.Submit("post:1", "fail", func(ctx context.Context) error { return boom }))

	err := p.Close()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.QueueDepth))

	t.Run("Повторное закрытие", func(t *testing.T) {
		assert.ErrorIs(t, p.Close(), boom)
	})

	t.Run("Отправка после закрытия", func(t *testing.T) {
		assert.ErrorIs(t, p.Submit("post:1", "late", nil), ErrClosed)
		assert.ErrorIs(t, p.Do(context.Background(), "post:1", "late", nil), ErrClosed)
		assert.ErrorIs(t, p.Flush(context.Background()), ErrClosed)
	})
}
