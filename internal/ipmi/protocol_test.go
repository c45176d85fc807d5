package ipmi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/ipmifanctl/internal/errors"
)

func TestParseRawByte(t *testing.T) {
	cases := []struct {
		body string
		want uint8
		ok   bool
	}{
		{body: " 01\n", want: 1, ok: true},
		{body: "00\n", want: 0, ok: true},
		{body: " 64\n", want: 100, ok: true},
		{body: "\r\n 1e\r\n", want: 30, ok: true},
		{body: "", ok: false},
		{body: "  \n", ok: false},
		{body: "zz\n", ok: false},
	}

	for _, tc := range cases {
		value, err := parseRawByte(tc.body)
		if tc.ok {
			require.NoError(t, err, "body %q", tc.body)
			assert.Equal(t, tc.want, value, "body %q", tc.body)
		} else {
			require.Error(t, err, "body %q", tc.body)
		}
	}
}

func TestCheckRawResponse(t *testing.T) {
	assert.NoError(t, checkRawResponse(""))
	assert.NoError(t, checkRawResponse(" \r\n"))

	err := checkRawResponse("Unable to send RAW command (channel=0x0 netfn=0x30 lun=0x0 cmd=0x70)\n")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrCommandFailed))

	err = checkRawResponse("Invalid data field in request\n")
	require.Error(t, err)
}

func TestParseSensorResponse(t *testing.T) {
	body := "\r\n" +
		"Sensor ID              : CPU Temp (0x1)\r\n" +
		" Entity ID             : 3.1 (Processor)\r\n" +
		" Sensor Type (Threshold)  : Temperature\r\n" +
		" Sensor Reading        : 52 (+/- 0) degrees C\r\n" +
		" Status                : ok\r\n" +
		" Lower Non-Recoverable : na\r\n" +
		"\r\n"

	reading, err := parseSensorResponse("CPU Temp", body)
	require.NoError(t, err)
	assert.Equal(t, "CPU Temp", reading.Name)
	assert.Equal(t, "52", reading.Value)
	assert.Equal(t, "degrees C", reading.Units)
}

func TestParseSensorResponseFractional(t *testing.T) {
	body := "Sensor ID              : Inlet Temp (0x5)\n" +
		" Sensor Reading        : 24.5 (+/- 0.5) degrees C\n\n"

	reading, err := parseSensorResponse("Inlet Temp", body)
	require.NoError(t, err)
	assert.Equal(t, "24.5", reading.Value)
	assert.Equal(t, "degrees C", reading.Units)
}

func TestParseSensorResponseNotFound(t *testing.T) {
	body := "Unable to find sensor id 'Bogus'\n"

	_, err := parseSensorResponse("Bogus", body)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrSensorNotFound))
}

func TestParseSensorResponseGarbage(t *testing.T) {
	_, err := parseSensorResponse("CPU Temp", "no reading here\n")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrOutputParse))
}

func TestFanModeString(t *testing.T) {
	assert.Equal(t, "standard", FanModeStandard.String())
	assert.Equal(t, "full", FanModeFull.String())
	assert.Equal(t, "optimal", FanModeOptimal.String())
	assert.Equal(t, "heavy-io", FanModeHeavyIO.String())
	assert.Equal(t, "unknown(9)", FanMode(9).String())
}

func TestShellOptions(t *testing.T) {
	opts := ShellOptions("ipmitool", nil)
	assert.Equal(t, []string{"shell"}, opts.Args, "Expected the default session to be a bare shell invocation")

	opts = ShellOptions("ipmitool", []string{"-I", "lanplus", "-H", "host"})
	assert.Equal(t, []string{"-I", "lanplus", "-H", "host", "shell"}, opts.Args)
}
