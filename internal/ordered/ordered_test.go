package ordered

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScatter_AddsIntoTarget(t *testing.T) {
	b, err := New([]int32{5}, []int32{2})
	require.NoError(t, err)

	data := []float64{0, 0, 10, 0, 0, 3}
	require.NoError(t, b.Gather(data))
	assert.Equal(t, []float64{3}, b.Sources)

	b.Dests[0] = b.Sources[0] * b.Sources[0]
	require.NoError(t, b.Scatter(data))
	assert.Equal(t, 19.0, data[2])
}

func TestScatter_RepeatedTargets(t *testing.T) {
	b, err := New(nil, []int32{1, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, 2, b.Targets())

	data := []float64{10, 20}
	require.NoError(t, b.Gather(data))
	copy(b.Dests, []float64{1, 2, 3})
	require.NoError(t, b.Scatter(data))
	assert.Equal(t, []float64{12, 24}, data)
}

func TestGather_ClearsDestinations(t *testing.T) {
	b, err := New([]int32{0}, []int32{0})
	require.NoError(t, err)
	b.Dests[0] = 42

	require.NoError(t, b.Gather([]float64{1}))
	assert.Equal(t, []float64{0}, b.Dests)
}

func TestGather_RejectNaN(t *testing.T) {
	b, err := New([]int32{0, 2}, nil)
	require.NoError(t, err)
	data := []float64{1, math.NaN(), math.NaN()}

	require.NoError(t, b.Gather(data), "NaN passes through by default")
	assert.True(t, math.IsNaN(b.Sources[1]))

	b.RejectNaN = true
	err = b.Gather(data)
	require.ErrorIs(t, err, ErrNaN)
	assert.Contains(t, err.Error(), "data[2]")

	data[2] = 4
	require.NoError(t, b.Gather(data), "unread NaN is ignored")
	assert.Equal(t, []float64{1, 4}, b.Sources)
}

func TestIndexValidation(t *testing.T) {
	_, err := New([]int32{-1}, nil)
	assert.True(t, errors.Is(err, ErrIndexOutOfRange))

	b, err := New([]int32{0}, []int32{4})
	require.NoError(t, err)
	assert.True(t, errors.Is(b.Gather(make([]float64, 4)), ErrIndexOutOfRange))
	assert.True(t, errors.Is(b.Scatter(make([]float64, 4)), ErrIndexOutOfRange))
	assert.NoError(t, b.Gather(make([]float64, 5)))
}

func TestScatterParallel_MatchesSerial(t *testing.T) {
	var dests []int32
	for i := 0; i < 200; i++ {
		dests = append(dests, int32((i*7)%31))
	}
	staged := make([]float64, len(dests))
	for i := range staged {
		staged[i] = 0.1 * float64(i+1)
	}

	run := func(workers int) []float64 {
		b, err := New(nil, dests)
		require.NoError(t, err)
		data := make([]float64, 31)
		for i := range data {
			data[i] = 1.0 / float64(i+3)
		}
		require.NoError(t, b.Gather(data))
		copy(b.Dests, staged)
		if workers == 0 {
			require.NoError(t, b.Scatter(data))
		} else {
			require.NoError(t, b.ScatterParallel(context.Background(), data, workers))
		}
		return data
	}

	serial := run(0)
	for _, workers := range []int{1, 2, 4, 64} {
		assert.Equal(t, serial, run(workers), "workers=%d", workers)
	}
}

func TestScatterParallel_Canceled(t *testing.T) {
	b, err := New(nil, []int32{0, 1, 2, 3})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = b.ScatterParallel(ctx, make([]float64, 4), 2)
	assert.ErrorIs(t, err, context.Canceled)
}
