package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unavailable() error {
	return NewAdapterError("places", KindUnavailable, errors.New("503"))
}

func callErr(cb *CircuitBreaker, err error) error {
	_, got := Guard(context.Background(), cb, func(_ context.Context) (struct{}, error) {
		return struct{}{}, err
	})
	return got
}

func TestCircuitBreaker_ClosedPassesThrough(t *testing.T) {
	cb := NewCircuitBreaker("places", DefaultCircuitBreakerConfig())

	val, err := Guard(context.Background(), cb, func(_ context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, val)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("places", CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	for range 3 {
		_ = callErr(cb, unavailable())
	}
	assert.Equal(t, CircuitOpen, cb.State())

	_, err := Guard(context.Background(), cb, func(_ context.Context) (int, error) {
		t.Error("should not be called when circuit is open")
		return 0, nil
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindUnavailable, kind)
}

func TestCircuitBreaker_NotFoundDoesNotTrip(t *testing.T) {
	cb := NewCircuitBreaker("places", CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})

	for range 5 {
		_ = callErr(cb, NewAdapterError("places", KindNotFound, nil))
	}
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker("places", CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	_ = callErr(cb, unavailable())
	_ = callErr(cb, unavailable())
	_ = callErr(cb, nil)
	_ = callErr(cb, unavailable())
	_ = callErr(cb, unavailable())
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Now()
	var transitions []CircuitState
	cb := NewCircuitBreaker("places", CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Second,
		OnStateChange: func(_, to CircuitState) {
			transitions = append(transitions, to)
		},
	})
	cb.nowFunc = func() time.Time { return now }

	_ = callErr(cb, unavailable())
	assert.Equal(t, CircuitOpen, cb.State())

	now = now.Add(11 * time.Second)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	require.NoError(t, callErr(cb, nil))
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, []CircuitState{CircuitOpen, CircuitHalfOpen, CircuitClosed}, transitions)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("places", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	cb.nowFunc = func() time.Time { return now }

	_ = callErr(cb, unavailable())
	now = now.Add(2 * time.Second)
	_ = callErr(cb, unavailable())
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker("places", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	_ = callErr(cb, unavailable())
	require.Equal(t, CircuitOpen, cb.State())

	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestServiceBreakers_GetIsStable(t *testing.T) {
	sb := NewServiceBreakers(DefaultCircuitBreakerConfig())

	var wg sync.WaitGroup
	got := make([]*CircuitBreaker, 20)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = sb.Get("pexels")
		}(i)
	}
	wg.Wait()

	for _, cb := range got {
		assert.Same(t, got[0], cb)
	}
	assert.NotSame(t, got[0], sb.Get("places"))
	assert.Len(t, sb.States(), 2)
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}
