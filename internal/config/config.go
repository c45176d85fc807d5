package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"codeberg.org/mutker/ipmifanctl/internal/curve"
	"codeberg.org/mutker/ipmifanctl/internal/errors"
)

const (
	// DefaultSession is the implicit session targeting the local machine.
	// It maps to a bare ipmitool invocation with no extra arguments.
	DefaultSession = "default"

	DefaultLogLevel = "info"
	DefaultIPMITool = "ipmitool"
	DefaultInterval = 1

	defaultConfigPath = "/etc/ipmifanctl.toml"
	configEnvVar      = "IPMIFANCTL_CONFIG"

	maxDutyCycle = 100
	maxIPMIZone  = 255
)

// Source selects one temperature backend for a zone.
type Source struct {
	Type     string `mapstructure:"type"`
	Sensor   string `mapstructure:"sensor"`
	Path     string `mapstructure:"path"`
	BlockDev string `mapstructure:"block_dev"`
}

// Source types
const (
	SourceIPMI  = "ipmi"
	SourceFile  = "file"
	SourceSmart = "smart"
)

// Aggregation selects how a zone reduces its source readings to one
// temperature. For type "average", Top > 0 limits the mean to the Top
// highest readings.
type Aggregation struct {
	Type string `mapstructure:"type"`
	Top  int    `mapstructure:"top"`
}

// Aggregation types
const (
	AggregationMaximum = "maximum"
	AggregationAverage = "average"
)

// Zone describes one logical fan zone and its control loop parameters.
type Zone struct {
	Name        string       `mapstructure:"name"`
	Session     string       `mapstructure:"session"`
	Interval    int          `mapstructure:"interval"`
	IPMIZones   []int        `mapstructure:"ipmi_zones"`
	Sources     []Source     `mapstructure:"sources"`
	Aggregation Aggregation  `mapstructure:"aggregation"`
	Steps       []curve.Step `mapstructure:"steps"`
}

type Config struct {
	LogLevel string              `mapstructure:"log_level"`
	IPMITool string              `mapstructure:"ipmitool"`
	Sessions map[string][]string `mapstructure:"sessions"`
	Zones    []Zone              `mapstructure:"zones"`

	// Path is the file the configuration was loaded from, kept for
	// hot reloading. Not itself a configuration key.
	Path string `mapstructure:"-"`
}

// Load reads the configuration from the path given by the --config flag,
// the IPMIFANCTL_CONFIG environment variable, or /etc/ipmifanctl.toml,
// in that order of precedence.
func Load(args []string) (*Config, error) {
	errFactory := errors.New()

	flags := pflag.NewFlagSet("ipmifanctl", pflag.ContinueOnError)
	configPath := flags.String("config", "", "Path to config file")
	logLevel := flags.String("log-level", "", "Log level (debug, info, warning, error)")
	if err := flags.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	path := *configPath
	if path == "" {
		path = os.Getenv(configEnvVar)
	}
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	return cfg, nil
}

// LoadFile reads, defaults and validates the configuration at path.
func LoadFile(path string) (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}
	cfg.Path = path

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.IPMITool == "" {
		cfg.IPMITool = DefaultIPMITool
	}

	if cfg.Sessions == nil {
		cfg.Sessions = map[string][]string{}
	}
	if _, ok := cfg.Sessions[DefaultSession]; !ok {
		cfg.Sessions[DefaultSession] = nil
	}

	for i := range cfg.Zones {
		zone := &cfg.Zones[i]
		if zone.Name == "" {
			zone.Name = fmt.Sprintf("zone%d", i)
		}
		if zone.Session == "" {
			zone.Session = DefaultSession
		}
		if zone.Interval == 0 {
			zone.Interval = DefaultInterval
		}
		if zone.Aggregation.Type == "" {
			zone.Aggregation.Type = AggregationMaximum
		}
	}
}

// Validate checks the full configuration invariant set. It is called by
// LoadFile; the control runtime assumes a validated configuration.
func Validate(cfg *Config) error {
	if len(cfg.Zones) == 0 {
		return invalid("zones: must be non-empty")
	}

	seen := make(map[string]struct{}, len(cfg.Zones))
	for i := range cfg.Zones {
		zone := &cfg.Zones[i]

		if _, ok := seen[zone.Name]; ok {
			return invalid(fmt.Sprintf("zones[%d].name: duplicate zone name %q", i, zone.Name))
		}
		seen[zone.Name] = struct{}{}

		if zone.Interval < 1 {
			return invalid(fmt.Sprintf("zones[%d].interval: must be greater than 0", i))
		}

		if len(zone.IPMIZones) == 0 {
			return invalid(fmt.Sprintf("zones[%d].ipmi_zones: must be non-empty", i))
		}
		for _, z := range zone.IPMIZones {
			if z < 0 || z > maxIPMIZone {
				return invalid(fmt.Sprintf("zones[%d].ipmi_zones: invalid zone index: %d", i, z))
			}
		}

		if len(zone.Sources) == 0 {
			return invalid(fmt.Sprintf("zones[%d].sources: must be non-empty", i))
		}
		for j, src := range zone.Sources {
			if err := validateSource(i, j, src); err != nil {
				return err
			}
		}

		if _, ok := cfg.Sessions[zone.Session]; !ok {
			return invalid(fmt.Sprintf("zones[%d].session: %q does not exist", i, zone.Session))
		}

		if err := validateAggregation(i, zone.Aggregation); err != nil {
			return err
		}

		if err := validateSteps(i, zone.Steps); err != nil {
			return err
		}
	}

	return nil
}

func validateSource(i, j int, src Source) error {
	switch src.Type {
	case SourceIPMI:
		if src.Sensor == "" {
			return invalid(fmt.Sprintf("zones[%d].sources[%d].sensor: must be non-empty", i, j))
		}
	case SourceFile:
		if src.Path == "" {
			return invalid(fmt.Sprintf("zones[%d].sources[%d].path: must be non-empty", i, j))
		}
	case SourceSmart:
		if src.BlockDev == "" {
			return invalid(fmt.Sprintf("zones[%d].sources[%d].block_dev: must be non-empty", i, j))
		}
	default:
		return invalid(fmt.Sprintf("zones[%d].sources[%d].type: unknown source type %q", i, j, src.Type))
	}

	return nil
}

func validateAggregation(i int, agg Aggregation) error {
	switch agg.Type {
	case AggregationMaximum:
	case AggregationAverage:
		if agg.Top < 0 {
			return invalid(fmt.Sprintf("zones[%d].aggregation[type=average].top: must not be negative", i))
		}
	default:
		return invalid(fmt.Sprintf("zones[%d].aggregation.type: unknown aggregation type %q", i, agg.Type))
	}

	return nil
}

func validateSteps(i int, steps []curve.Step) error {
	for j, step := range steps {
		if step.Duty < 0 || step.Duty > maxDutyCycle {
			return invalid(fmt.Sprintf("zones[%d].steps[%d].dcycle: invalid percentage: %v", i, j, step.Duty))
		}
	}

	for j := 0; j < len(steps)-1; j++ {
		if steps[j].Temp >= steps[j+1].Temp {
			return invalid(fmt.Sprintf("zones[%d].steps[*].temp: values are not strictly increasing", i))
		}
		if steps[j].Duty > steps[j+1].Duty {
			return invalid(fmt.Sprintf("zones[%d].steps[*].dcycle: values are decreasing", i))
		}
	}

	return nil
}

func invalid(reason string) error {
	return errors.New().WithData(errors.ErrInvalidConfig, reason)
}
