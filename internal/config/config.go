package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HWMon   HWMonConfig    `yaml:"hwmon"`
	Sensors []SensorConfig `yaml:"sensors"`
	Objects ObjectsConfig  `yaml:"objects"`
	Web     WebConfig      `yaml:"web"`
	Log     LogConfig      `yaml:"log"`
	Faults  FaultsConfig   `yaml:"faults"`
}

type HWMonConfig struct {
	// Path is the hwmon directory, e.g. /sys/class/hwmon/hwmon3.
	Path string `yaml:"path"`
	// DevicePath is the /sys/devices path reported with device failures.
	// Defaults to the resolved Path.
	DevicePath string `yaml:"device_path"`
	// TargetMode is "rpm", "pwm" or empty (speed target first, then pwm).
	TargetMode string      `yaml:"target_mode"`
	Retry      RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	Count int           `yaml:"count"`
	Delay time.Duration `yaml:"delay"`
}

type SensorConfig struct {
	Type  string `yaml:"type"`
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
}

type ObjectsConfig struct {
	Root string `yaml:"root"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	BufferLines int    `yaml:"buffer_lines"`
}

type FaultsConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

const (
	TargetModeAuto = ""
	TargetModeRPM  = "rpm"
	TargetModePWM  = "pwm"
)

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Normalize applies defaults and validates. It is safe to call again after
// fields are overridden, e.g. from command-line flags.
func (cfg *Config) Normalize() error {
	if strings.TrimSpace(cfg.HWMon.Path) == "" {
		return fmt.Errorf("hwmon.path is required")
	}
	if cfg.HWMon.DevicePath == "" {
		cfg.HWMon.DevicePath = cfg.HWMon.Path
	}

	cfg.HWMon.TargetMode = strings.ToLower(strings.TrimSpace(cfg.HWMon.TargetMode))
	switch cfg.HWMon.TargetMode {
	case TargetModeAuto, TargetModeRPM, TargetModePWM:
	default:
		return fmt.Errorf("hwmon.target_mode must be one of 'rpm', 'pwm' or empty")
	}

	// Retry defaults match the process-wide hwmonio policy.
	if cfg.HWMon.Retry.Count == 0 {
		cfg.HWMon.Retry.Count = 10
	}
	if cfg.HWMon.Retry.Count < 0 {
		return fmt.Errorf("hwmon.retry.count must be >= 0")
	}
	if cfg.HWMon.Retry.Delay == 0 {
		cfg.HWMon.Retry.Delay = 100 * time.Millisecond
	}
	if cfg.HWMon.Retry.Delay < 0 {
		return fmt.Errorf("hwmon.retry.delay must be >= 0")
	}

	if len(cfg.Sensors) == 0 {
		return fmt.Errorf("sensors must list at least one sensor")
	}
	seen := make(map[string]bool, len(cfg.Sensors))
	for i := range cfg.Sensors {
		s := &cfg.Sensors[i]
		s.Type = strings.TrimSpace(s.Type)
		s.ID = strings.TrimSpace(s.ID)
		if s.Type == "" {
			return fmt.Errorf("sensors[%d].type is required", i)
		}
		if _, err := strconv.ParseUint(s.ID, 10, 32); err != nil {
			return fmt.Errorf("sensors[%d].id must be a non-negative integer", i)
		}
		if s.Label == "" {
			s.Label = s.Type + s.ID
		}
		key := s.Type + s.ID
		if seen[key] {
			return fmt.Errorf("sensors[%d] duplicates %s", i, key)
		}
		seen[key] = true
	}

	if cfg.Objects.Root == "" {
		cfg.Objects.Root = "/hwmon/sensors"
	}
	if !strings.HasPrefix(cfg.Objects.Root, "/") {
		return fmt.Errorf("objects.root must be an absolute path")
	}
	cfg.Objects.Root = strings.TrimRight(cfg.Objects.Root, "/")
	if cfg.Objects.Root == "" {
		cfg.Objects.Root = "/"
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	if cfg.Log.BufferLines <= 0 {
		cfg.Log.BufferLines = 2000
	}

	if cfg.Faults.MaxEntries <= 0 {
		cfg.Faults.MaxEntries = 256
	}
	return nil
}

// ObjectPath returns the object-model path for a sensor.
func (cfg Config) ObjectPath(s SensorConfig) string {
	root := cfg.Objects.Root
	if root == "/" {
		root = ""
	}
	return root + "/" + s.Type + "/" + s.Label
}
