package ipmi

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"codeberg.org/mutker/ipmifanctl/internal/errors"
)

// FanMode is the management controller's fan control mode.
type FanMode uint8

const (
	FanModeStandard FanMode = 0
	FanModeFull     FanMode = 1
	FanModeOptimal  FanMode = 2
	FanModeHeavyIO  FanMode = 4
)

func (m FanMode) String() string {
	switch m {
	case FanModeStandard:
		return "standard"
	case FanModeFull:
		return "full"
	case FanModeOptimal:
		return "optimal"
	case FanModeHeavyIO:
		return "heavy-io"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// SensorReading is one parsed sensor data record.
type SensorReading struct {
	Name  string
	Value string
	Units string
}

// CelsiusUnits is the units token reported for temperature sensors.
// Readings in any other units are not usable as zone temperatures.
const CelsiusUnits = "degrees C"

const maxDutyCycle = 100

// FanMode reads the current fan control mode.
func (s *Session) FanMode(ctx context.Context) (FanMode, error) {
	out, err := s.Execute(ctx, "raw 0x30 0x45 0")
	if err != nil {
		return 0, err
	}

	value, err := parseRawByte(out)
	if err != nil {
		return 0, err
	}

	return FanMode(value), nil
}

// SetFanMode sets the fan control mode.
func (s *Session) SetFanMode(ctx context.Context, mode FanMode) error {
	out, err := s.Execute(ctx, fmt.Sprintf("raw 0x30 0x45 1 %d", uint8(mode)))
	if err != nil {
		return err
	}

	return checkRawResponse(out)
}

// DutyCycle reads the current duty cycle percentage of one fan zone.
func (s *Session) DutyCycle(ctx context.Context, zone int) (int, error) {
	out, err := s.Execute(ctx, fmt.Sprintf("raw 0x30 0x70 0x66 0 %d", zone))
	if err != nil {
		return 0, err
	}

	value, err := parseRawByte(out)
	if err != nil {
		return 0, err
	}

	return int(value), nil
}

// SetDutyCycle sets the PWM duty cycle percentage of one fan zone.
func (s *Session) SetDutyCycle(ctx context.Context, zone, duty int) error {
	errFactory := errors.New()

	if duty < 0 || duty > maxDutyCycle {
		return errFactory.WithData(errors.ErrInvalidArgument, fmt.Sprintf("duty cycle out of range: %d", duty))
	}

	out, err := s.Execute(ctx, fmt.Sprintf("raw 0x30 0x70 0x66 1 %d %d", zone, duty))
	if err != nil {
		return err
	}

	return checkRawResponse(out)
}

// ReadSensor reads one sensor data record by name.
func (s *Session) ReadSensor(ctx context.Context, name string) (SensorReading, error) {
	errFactory := errors.New()

	// Sensor names are quoted into the shell command line; a quote in the
	// name cannot be escaped there.
	if strings.ContainsRune(name, '\'') {
		return SensorReading{}, errFactory.WithData(errors.ErrInvalidArgument, name)
	}

	out, err := s.Execute(ctx, fmt.Sprintf("sdr get '%s'", name))
	if err != nil {
		return SensorReading{}, err
	}

	return parseSensorResponse(name, out)
}

var (
	sensorNotFoundPattern = regexp.MustCompile(`Unable to find sensor id`)
	sensorReadingPattern  = regexp.MustCompile(`Sensor Reading\s*:\s*([0-9.]+)\s*\(\+/-\s*[0-9.]+\)\s*([^\r\n]+)`)
	errorTextPattern      = regexp.MustCompile(`(?i)unable to|invalid|error|failed`)
)

// parseRawByte parses the response of a raw command returning one byte,
// printed by ipmitool as a hex token.
func parseRawByte(body string) (uint8, error) {
	errFactory := errors.New()

	fields := strings.Fields(body)
	if len(fields) == 0 {
		return 0, errFactory.WithMessage(ErrOutputParse, "empty raw response")
	}

	token := fields[len(fields)-1]
	value, err := strconv.ParseUint(token, 16, 8)
	if err != nil {
		return 0, errFactory.WithData(ErrOutputParse, token)
	}

	return uint8(value), nil
}

// checkRawResponse verifies that a raw set command produced no error text.
// Success is the prompt reappearing with nothing complaining in between.
func checkRawResponse(body string) error {
	if errorTextPattern.MatchString(body) {
		return errors.New().WithData(ErrCommandFailed, strings.TrimSpace(body))
	}

	return nil
}

func parseSensorResponse(name, body string) (SensorReading, error) {
	errFactory := errors.New()

	if sensorNotFoundPattern.MatchString(body) {
		return SensorReading{}, errFactory.WithData(ErrSensorNotFound, name)
	}

	match := sensorReadingPattern.FindStringSubmatch(body)
	if match == nil {
		return SensorReading{}, errFactory.WithData(ErrOutputParse, fmt.Sprintf("no sensor reading for %q", name))
	}

	return SensorReading{
		Name:  name,
		Value: match[1],
		Units: strings.TrimSpace(match[2]),
	}, nil
}
