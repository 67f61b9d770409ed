package ringchan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverwritesOldestWhenFull(t *testing.T) {
	rc := New[int](3)
	for i := 1; i <= 5; i++ {
		rc.Send(i)
	}
	rc.Close()

	var got []int
	for v := range rc.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{3, 4, 5}, got)
}

func TestTrySendFailsWhenFull(t *testing.T) {
	rc := New[int](1)
	require.True(t, rc.TrySend(1))
	assert.False(t, rc.TrySend(2))
}

func TestForceSendReportsDrop(t *testing.T) {
	rc := New[int](1)
	assert.False(t, rc.ForceSend(1))
	assert.True(t, rc.ForceSend(2))

	v, ok := rc.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestMetrics(t *testing.T) {
	rc := New[int](1)
	rc.Send(1)
	rc.Send(2) // overwrites
	_, _ = rc.Receive()

	m := rc.GetMetrics()
	assert.Equal(t, int64(2), m.Written)
	assert.Equal(t, int64(1), m.Overwritten)
	assert.Equal(t, int64(1), m.Processed)
}

func TestZeroCapacityPanics(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
