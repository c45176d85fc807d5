// Package sensor provides the temperature backends a zone samples on each
// tick and the aggregation of their readings into one zone temperature.
//
// A source read never fails a tick: transient errors (missing sensor,
// wrong units, malformed file, spun-down disk) are absorbed here, logged
// at debug level and reported as an absent reading.
package sensor

import (
	"context"

	"codeberg.org/mutker/ipmifanctl/internal/config"
	"codeberg.org/mutker/ipmifanctl/internal/errors"
	"codeberg.org/mutker/ipmifanctl/internal/ipmi"
)

// Source reads one raw temperature value in degrees Celsius. The second
// return value is false when no usable reading is available this tick.
// Sources are stateless; nothing is cached across ticks.
type Source interface {
	Read(ctx context.Context) (float64, bool)
	Describe() string
}

// SensorReader is the sensor-read surface of an IPMI session.
type SensorReader interface {
	ReadSensor(ctx context.Context, name string) (ipmi.SensorReading, error)
}

// New builds the source for one configured backend. IPMI sensor sources
// read through the owning zone's session.
func New(cfg config.Source, session SensorReader) (Source, error) {
	errFactory := errors.New()

	switch cfg.Type {
	case config.SourceIPMI:
		return &ipmiSource{session: session, sensor: cfg.Sensor}, nil
	case config.SourceFile:
		return &fileSource{path: cfg.Path}, nil
	case config.SourceSmart:
		return &smartSource{command: smartctlCommand, device: cfg.BlockDev}, nil
	default:
		return nil, errFactory.WithData(errors.ErrInvalidConfig, "unknown source type: "+cfg.Type)
	}
}
