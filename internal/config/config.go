// Package config supplies the validated runtime configuration the core
// treats as fixed inputs.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses YAML duration strings like "500ms" or "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// AdaptorConfig describes the wrapped executable.
type AdaptorConfig struct {
	Argv []string `yaml:"argv"`
	Dir  string   `yaml:"dir"`
}

type Config struct {
	// FrameLimitBytes bounds one control-channel message.
	FrameLimitBytes uint32 `yaml:"frame_limit_bytes"`
	// RequestTimeout bounds one frontend connect-and-exchange.
	RequestTimeout Duration `yaml:"request_timeout"`
	// ShutdownGrace is how long the backend waits for in-flight responses
	// before releasing connections.
	ShutdownGrace Duration `yaml:"shutdown_grace"`
	// StartupTimeout bounds waiting for a spawned backend to become ready.
	StartupTimeout Duration `yaml:"startup_timeout"`
	// StopTimeout bounds graceful termination of the wrapped process.
	StopTimeout Duration `yaml:"stop_timeout"`

	Adaptor AdaptorConfig `yaml:"adaptor"`
}

// Warning is one non-fatal validation finding.
type Warning struct {
	Message string
}

func Default() Config {
	return Config{
		FrameLimitBytes: 1 << 20,
		RequestTimeout:  Duration{5 * time.Second},
		ShutdownGrace:   Duration{time.Second},
		StartupTimeout:  Duration{10 * time.Second},
		StopTimeout:     Duration{5 * time.Second},
	}
}

// Validate fills unset values from defaults and reports suspicious ones.
func Validate(cfg Config) (Config, []Warning) {
	var warnings []Warning
	base := Default()

	if cfg.FrameLimitBytes == 0 {
		cfg.FrameLimitBytes = base.FrameLimitBytes
	} else if cfg.FrameLimitBytes < 4096 {
		warnings = append(warnings, Warning{
			Message: fmt.Sprintf("frame_limit_bytes %d is below 4096; using %d", cfg.FrameLimitBytes, base.FrameLimitBytes),
		})
		cfg.FrameLimitBytes = base.FrameLimitBytes
	}

	fill := func(d *Duration, name string, def Duration) {
		if d.Duration > 0 {
			return
		}
		if d.Duration < 0 {
			warnings = append(warnings, Warning{
				Message: fmt.Sprintf("%s must be positive; using %s", name, def),
			})
		}
		*d = def
	}
	fill(&cfg.RequestTimeout, "request_timeout", base.RequestTimeout)
	fill(&cfg.ShutdownGrace, "shutdown_grace", base.ShutdownGrace)
	fill(&cfg.StartupTimeout, "startup_timeout", base.StartupTimeout)
	fill(&cfg.StopTimeout, "stop_timeout", base.StopTimeout)

	return cfg, warnings
}
