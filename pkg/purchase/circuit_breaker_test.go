package purchase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCircuitBreaker(t *testing.T) {
	threshold := 3
	timeout := 100 * time.Millisecond
	var lastState CircuitBreakerState
	cb := NewDefaultCircuitBreaker(threshold, timeout, func(state CircuitBreakerState) {
		lastState = state
	})

	ctx := context.Background()

	assert.Equal(t, StateClosed, cb.State())

	for i := 0; i < threshold-1; i++ {
		err := cb.Execute(ctx, func() error {
			return errors.New("fail")
		})
		assert.Error(t, err)
		assert.Equal(t, StateClosed, cb.State())
	}

	// Next failure should open the circuit
	err := cb.Execute(ctx, func() error {
		return errors.New("fail")
	})
	assert.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, StateOpen, lastState)

	// When open, Execute should fail fast
	called := false
	err = cb.Execute(ctx, func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	time.Sleep(timeout + 10*time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	err = cb.Execute(ctx, func() error {
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, StateClosed, lastState)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewDefaultCircuitBreaker(2, 50*time.Millisecond, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, func() error { return errors.New("fail") })
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	err := cb.Execute(ctx, func() error { return errors.New("fail") })
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenAdmitsOneTrial(t *testing.T) {
	cb := NewDefaultCircuitBreaker(1, 20*time.Millisecond, nil)
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errors.New("fail") })
	require.Equal(t, StateOpen, cb.State())
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	started := make(chan struct{})
	release := make(chan struct{})
	trialErr := make(chan error, 1)
	go func() {
		trialErr <- cb.Execute(ctx, func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	var mu sync.Mutex
	calls := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := cb.Execute(ctx, func() error {
				mu.Lock()
				calls++
				mu.Unlock()
				return nil
			})
			assert.ErrorIs(t, err, ErrCircuitOpen)
		}()
	}
	wg.Wait()
	assert.Zero(t, calls)

	close(release)
	require.NoError(t, <-trialErr)
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Execute(ctx, func() error { return nil }))
}

func TestCircuitBreaker_CancelledTrialFreesSlot(t *testing.T) {
	cb := NewDefaultCircuitBreaker(1, 20*time.Millisecond, nil)
	_ = cb.Execute(context.Background(), func() error { return errors.New("fail") })
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	err := cb.Execute(context.Background(), func() error { return context.DeadlineExceeded })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateHalfOpen, cb.State())

	assert.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_ContextErrorsDoNotCount(t *testing.T) {
	cb := NewDefaultCircuitBreaker(1, time.Minute, nil)

	err := cb.Execute(context.Background(), func() error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = cb.Execute(ctx, func() error { return errors.New("aborted") })
	assert.Error(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewDefaultCircuitBreaker(2, time.Minute, nil)
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errors.New("fail") })
	_ = cb.Execute(ctx, func() error { return nil })
	_ = cb.Execute(ctx, func() error { return errors.New("fail") })

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_ConcurrentExecute(t *testing.T) {
	cb := NewDefaultCircuitBreaker(3, 100*time.Millisecond, nil)

	ctx := context.Background()
	const goroutines = 100
	errChan := make(chan error, goroutines)
	testErr := errors.New("test error")

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			errChan <- cb.Execute(ctx, func() error {
				if id%10 == 0 {
					return testErr
				}
				return nil
			})
		}(i)
	}

	for i := 0; i < goroutines; i++ {
		err := <-errChan
		if err != nil && !errors.Is(err, ErrCircuitOpen) && !errors.Is(err, testErr) {
			t.Errorf("Unexpected error from concurrent Execute %d: %v", i, err)
		}
	}

	state := cb.State()
	assert.Contains(t, []CircuitBreakerState{StateClosed, StateOpen, StateHalfOpen}, state)
}
