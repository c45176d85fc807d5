// Package curve maps an aggregated zone temperature to a fan duty cycle
// through an ordered list of control points with linear interpolation.
package curve

import "math"

const fullDutyCycle = 100

// Step is one control point: at Temp degrees Celsius the fans run at
// Duty percent.
type Step struct {
	Temp float64 `mapstructure:"temp"`
	Duty float64 `mapstructure:"dcycle"`
}

// Evaluate returns the duty cycle percentage for the given temperature.
//
// With no steps the duty cycle is fixed at 100%. Temperatures at or below
// the first step clamp to its duty cycle, at or above the last step to the
// last one. Between two steps the duty cycle is interpolated linearly and
// rounded to the nearest integer. The result is always within [0, 100].
func Evaluate(steps []Step, temp float64) int {
	if len(steps) == 0 {
		return fullDutyCycle
	}

	first := steps[0]
	last := steps[len(steps)-1]

	switch {
	case temp <= first.Temp:
		return clampDuty(int(math.Round(first.Duty)))
	case temp >= last.Temp:
		return clampDuty(int(math.Round(last.Duty)))
	}

	for i := 0; i < len(steps)-1; i++ {
		below, above := steps[i], steps[i+1]
		if temp < below.Temp || temp > above.Temp {
			continue
		}

		ratio := (temp - below.Temp) / (above.Temp - below.Temp)
		duty := below.Duty + ratio*(above.Duty-below.Duty)

		return clampDuty(int(math.Round(duty)))
	}

	// Unreachable with strictly increasing step temperatures.
	return clampDuty(int(math.Round(last.Duty)))
}

func clampDuty(duty int) int {
	if duty < 0 {
		return 0
	}
	if duty > fullDutyCycle {
		return fullDutyCycle
	}

	return duty
}
