package sensor

import (
	"sort"

	"codeberg.org/mutker/ipmifanctl/internal/config"
	"codeberg.org/mutker/ipmifanctl/internal/errors"
)

// Aggregator reduces the valid readings of one tick to a single zone
// temperature. The input order is irrelevant. An empty input yields no
// aggregate and the tick is skipped for actuation.
type Aggregator interface {
	Aggregate(readings []float64) (float64, bool)
}

// NewAggregator builds the aggregator for a zone's configured method.
func NewAggregator(cfg config.Aggregation) (Aggregator, error) {
	errFactory := errors.New()

	switch cfg.Type {
	case config.AggregationMaximum:
		return maximum{}, nil
	case config.AggregationAverage:
		return average{top: cfg.Top}, nil
	default:
		return nil, errFactory.WithData(errors.ErrInvalidConfig, "unknown aggregation type: "+cfg.Type)
	}
}

type maximum struct{}

func (maximum) Aggregate(readings []float64) (float64, bool) {
	if len(readings) == 0 {
		return 0, false
	}

	highest := readings[0]
	for _, r := range readings[1:] {
		if r > highest {
			highest = r
		}
	}

	return highest, true
}

// average computes the arithmetic mean, optionally limited to the top
// highest readings. top <= 0 means all readings.
type average struct {
	top int
}

func (a average) Aggregate(readings []float64) (float64, bool) {
	if len(readings) == 0 {
		return 0, false
	}

	selected := readings
	if a.top > 0 && a.top < len(readings) {
		sorted := make([]float64, len(readings))
		copy(sorted, readings)
		sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
		selected = sorted[:a.top]
	}

	sum := 0.0
	for _, r := range selected {
		sum += r
	}

	return sum / float64(len(selected)), true
}
