package sensor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/ipmifanctl/internal/config"
	"codeberg.org/mutker/ipmifanctl/internal/sensor"
)

func TestAggregateMaximum(t *testing.T) {
	agg, err := sensor.NewAggregator(config.Aggregation{Type: config.AggregationMaximum})
	require.NoError(t, err)

	value, ok := agg.Aggregate([]float64{20, 35, 10})
	require.True(t, ok)
	assert.InDelta(t, 35.0, value, 1e-9)
}

func TestAggregateAverage(t *testing.T) {
	agg, err := sensor.NewAggregator(config.Aggregation{Type: config.AggregationAverage})
	require.NoError(t, err)

	value, ok := agg.Aggregate([]float64{20, 30})
	require.True(t, ok)
	assert.InDelta(t, 25.0, value, 1e-9)
}

func TestAggregateAverageTop(t *testing.T) {
	agg, err := sensor.NewAggregator(config.Aggregation{Type: config.AggregationAverage, Top: 2})
	require.NoError(t, err)

	value, ok := agg.Aggregate([]float64{10, 20, 30})
	require.True(t, ok)
	assert.InDelta(t, 25.0, value, 1e-9, "Expected mean of the two highest readings")

	// Input order must not matter.
	value, ok = agg.Aggregate([]float64{30, 10, 20})
	require.True(t, ok)
	assert.InDelta(t, 25.0, value, 1e-9)
}

func TestAggregateAverageTopLargerThanInput(t *testing.T) {
	agg, err := sensor.NewAggregator(config.Aggregation{Type: config.AggregationAverage, Top: 10})
	require.NoError(t, err)

	value, ok := agg.Aggregate([]float64{10, 20})
	require.True(t, ok)
	assert.InDelta(t, 15.0, value, 1e-9)
}

func TestAggregateEmptyInput(t *testing.T) {
	for _, cfg := range []config.Aggregation{
		{Type: config.AggregationMaximum},
		{Type: config.AggregationAverage},
		{Type: config.AggregationAverage, Top: 2},
	} {
		agg, err := sensor.NewAggregator(cfg)
		require.NoError(t, err)

		_, ok := agg.Aggregate(nil)
		assert.False(t, ok, "Expected no aggregate for empty input with %+v", cfg)
	}
}

func TestAggregateDoesNotMutateInput(t *testing.T) {
	agg, err := sensor.NewAggregator(config.Aggregation{Type: config.AggregationAverage, Top: 1})
	require.NoError(t, err)

	readings := []float64{10, 30, 20}
	_, _ = agg.Aggregate(readings)
	assert.Equal(t, []float64{10, 30, 20}, readings)
}

func TestNewAggregatorUnknownType(t *testing.T) {
	_, err := sensor.NewAggregator(config.Aggregation{Type: "median"})
	require.Error(t, err)
}
