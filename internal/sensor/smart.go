package sensor

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"codeberg.org/mutker/ipmifanctl/internal/logger"
)

const smartctlCommand = "smartctl"

// smartctl exit status bit: device is in a low-power mode.
const smartctlLowPowerBit = 0x02

// smartSource reads a drive temperature from its SMART attributes. The
// query is issued with "-n standby" so that a spun-down drive is left
// asleep and simply yields no reading.
type smartSource struct {
	command string
	device  string
}

func (s *smartSource) Describe() string {
	return "smart:" + s.device
}

func (s *smartSource) Read(ctx context.Context) (float64, bool) {
	cmd := exec.CommandContext(ctx, s.command, "-j", "-A", "-n", "standby", s.device)

	// smartctl exits non-zero for a standby drive; its JSON report is
	// still produced and carries the standby indication.
	out, err := cmd.Output()
	if err != nil && len(out) == 0 {
		logger.Debug().Str("source", s.Describe()).Err(err).Msg("smartctl invocation failed")
		return 0, false
	}

	value, ok, err := parseSmartReport(out)
	if err != nil {
		logger.Debug().Str("source", s.Describe()).Err(err).Msg("Failed to parse smartctl output")
		return 0, false
	}
	if !ok {
		logger.Debug().Str("source", s.Describe()).Msg("Drive is in standby or reports no temperature")
		return 0, false
	}

	return value, true
}

type smartReport struct {
	Smartctl struct {
		ExitStatus int `json:"exit_status"`
		Messages   []struct {
			String string `json:"string"`
		} `json:"messages"`
	} `json:"smartctl"`
	PowerMode   string `json:"power_mode"`
	Temperature struct {
		Current *float64 `json:"current"`
	} `json:"temperature"`
}

// parseSmartReport extracts the current temperature from a smartctl JSON
// report. A drive reporting itself in standby or sleep yields (0, false, nil).
func parseSmartReport(data []byte) (float64, bool, error) {
	var report smartReport
	if err := json.Unmarshal(data, &report); err != nil {
		return 0, false, err
	}

	if report.standby() || report.Temperature.Current == nil {
		return 0, false, nil
	}

	return *report.Temperature.Current, true, nil
}

func (r *smartReport) standby() bool {
	if r.Smartctl.ExitStatus&smartctlLowPowerBit != 0 {
		return true
	}

	switch strings.ToUpper(r.PowerMode) {
	case "STANDBY", "SLEEP":
		return true
	}

	for _, msg := range r.Smartctl.Messages {
		upper := strings.ToUpper(msg.String)
		if strings.Contains(upper, "STANDBY") || strings.Contains(upper, "SLEEP") {
			return true
		}
	}

	return false
}
