package future

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteDeliversValue(t *testing.T) {
	f := New[int]()
	go f.Complete(42)

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestFailDeliversError(t *testing.T) {
	f := New[int]()
	boom := errors.New("boom")
	f.Fail(boom)

	_, err := f.Wait(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestFirstCompletionWins(t *testing.T) {
	f := New[string]()
	f.Complete("first")
	f.Complete("second")
	f.Fail(errors.New("too late"))

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestWaitRespectsContext(t *testing.T) {
	f := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestContextErrorDoesNotResolve(t *testing.T) {
	f := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _ = f.Wait(ctx)

	// The future is still live and can complete afterwards
	f.Complete(7)
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestWaitTimeout(t *testing.T) {
	f := New[int]()

	_, err := f.WaitTimeout(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrWaitTimeout)
}

func TestWaitTimeoutZeroWaitsForCompletion(t *testing.T) {
	f := New[int]()
	go func() {
		time.Sleep(5 * time.Millisecond)
		f.Complete(1)
	}()

	v, err := f.WaitTimeout(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestCompleted(t *testing.T) {
	v, err := Completed(3, nil).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	boom := errors.New("boom")
	_, err = Completed(0, boom).Wait(context.Background())
	assert.ErrorIs(t, err, boom)
}
