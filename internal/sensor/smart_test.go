package sensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSmartReportActiveDrive(t *testing.T) {
	report := []byte(`{
  "json_format_version": [1, 0],
  "smartctl": {"version": [7, 3], "exit_status": 0},
  "device": {"name": "/dev/sda", "type": "sat"},
  "power_mode": "ACTIVE or IDLE",
  "temperature": {"current": 37}
}`)

	value, ok, err := parseSmartReport(report)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 37.0, value, 1e-9)
}

func TestParseSmartReportStandby(t *testing.T) {
	report := []byte(`{
  "smartctl": {
    "exit_status": 2,
    "messages": [
      {"string": "Device is in STANDBY mode, exit(2)", "severity": "information"}
    ]
  }
}`)

	_, ok, err := parseSmartReport(report)
	require.NoError(t, err)
	assert.False(t, ok, "Expected a standby drive to yield no reading")
}

func TestParseSmartReportPowerModeStandby(t *testing.T) {
	report := []byte(`{
  "smartctl": {"exit_status": 0},
  "power_mode": "STANDBY",
  "temperature": {"current": 30}
}`)

	_, ok, err := parseSmartReport(report)
	require.NoError(t, err)
	assert.False(t, ok, "Expected the power mode to take precedence over a stale temperature")
}

func TestParseSmartReportNoTemperature(t *testing.T) {
	report := []byte(`{"smartctl": {"exit_status": 0}}`)

	_, ok, err := parseSmartReport(report)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseSmartReportMalformed(t *testing.T) {
	_, _, err := parseSmartReport([]byte("not json"))
	require.Error(t, err)
}
