package sensor

import (
	"context"
	"strconv"

	"codeberg.org/mutker/ipmifanctl/internal/ipmi"
	"codeberg.org/mutker/ipmifanctl/internal/logger"
)

// ipmiSource reads one management-interface sensor by name on the zone's
// session. Only readings reported in degrees Celsius are usable.
type ipmiSource struct {
	session SensorReader
	sensor  string
}

func (s *ipmiSource) Describe() string {
	return "ipmi:" + s.sensor
}

func (s *ipmiSource) Read(ctx context.Context) (float64, bool) {
	reading, err := s.session.ReadSensor(ctx, s.sensor)
	if err != nil {
		logger.Debug().Str("source", s.Describe()).Err(err).Msg("Failed to read IPMI sensor")
		return 0, false
	}

	if reading.Units != ipmi.CelsiusUnits {
		logger.Debug().
			Str("source", s.Describe()).
			Str("units", reading.Units).
			Msg("Sensor does not report degrees Celsius")
		return 0, false
	}

	value, err := strconv.ParseFloat(reading.Value, 64)
	if err != nil {
		logger.Debug().Str("source", s.Describe()).Str("value", reading.Value).Msg("Unparseable sensor value")
		return 0, false
	}

	return value, true
}
