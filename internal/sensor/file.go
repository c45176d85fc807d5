package sensor

import (
	"context"
	"os"
	"strconv"
	"strings"

	"codeberg.org/mutker/ipmifanctl/internal/logger"
)

const milliDegreesPerDegree = 1000

// fileSource reads a plain-text temperature file, typically a hwmon sysfs
// node, holding a value in milli-degrees Celsius.
type fileSource struct {
	path string
}

func (f *fileSource) Describe() string {
	return "file:" + f.path
}

func (f *fileSource) Read(_ context.Context) (float64, bool) {
	contents, err := os.ReadFile(f.path)
	if err != nil {
		logger.Debug().Str("source", f.Describe()).Err(err).Msg("Failed to read temperature file")
		return 0, false
	}

	value, ok := parseMilliDegrees(string(contents))
	if !ok {
		logger.Debug().Str("source", f.Describe()).Msg("Temperature file contents not a plain integer")
		return 0, false
	}

	return value, true
}

// parseMilliDegrees accepts only ASCII digits surrounded by whitespace and
// interprets them as milli-degrees Celsius.
func parseMilliDegrees(contents string) (float64, bool) {
	for _, r := range contents {
		if (r < '0' || r > '9') && r != ' ' && r != '\t' && r != '\n' && r != '\r' && r != '\v' && r != '\f' {
			return 0, false
		}
	}

	trimmed := strings.TrimSpace(contents)
	if trimmed == "" {
		return 0, false
	}

	raw, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		// Interior whitespace or a value too large to be a temperature.
		return 0, false
	}

	return float64(raw) / milliDegreesPerDegree, true
}
