package sensor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/ipmifanctl/internal/config"
	"codeberg.org/mutker/ipmifanctl/internal/errors"
	"codeberg.org/mutker/ipmifanctl/internal/ipmi"
	"codeberg.org/mutker/ipmifanctl/internal/sensor"
)

type stubReader struct {
	readings map[string]ipmi.SensorReading
}

func (s *stubReader) ReadSensor(_ context.Context, name string) (ipmi.SensorReading, error) {
	reading, ok := s.readings[name]
	if !ok {
		return ipmi.SensorReading{}, errors.New().WithData(ipmi.ErrSensorNotFound, name)
	}

	return reading, nil
}

func ipmiSource(t *testing.T, reader *stubReader, name string) sensor.Source {
	t.Helper()

	source, err := sensor.New(config.Source{Type: config.SourceIPMI, Sensor: name}, reader)
	require.NoError(t, err)

	return source
}

func TestIPMISourceRead(t *testing.T) {
	reader := &stubReader{readings: map[string]ipmi.SensorReading{
		"CPU Temp": {Name: "CPU Temp", Value: "54", Units: "degrees C"},
		"FAN1":     {Name: "FAN1", Value: "4800", Units: "RPM"},
		"Weird":    {Name: "Weird", Value: "fifty", Units: "degrees C"},
		"Precise":  {Name: "Precise", Value: "41.5", Units: "degrees C"},
	}}

	value, ok := ipmiSource(t, reader, "CPU Temp").Read(context.Background())
	require.True(t, ok)
	assert.InDelta(t, 54.0, value, 1e-9)

	value, ok = ipmiSource(t, reader, "Precise").Read(context.Background())
	require.True(t, ok)
	assert.InDelta(t, 41.5, value, 1e-9)

	_, ok = ipmiSource(t, reader, "FAN1").Read(context.Background())
	assert.False(t, ok, "Expected non-Celsius units to yield no reading")

	_, ok = ipmiSource(t, reader, "Weird").Read(context.Background())
	assert.False(t, ok, "Expected an unparseable value to yield no reading")

	_, ok = ipmiSource(t, reader, "Missing").Read(context.Background())
	assert.False(t, ok, "Expected a missing sensor to yield no reading")
}
