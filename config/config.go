// Package config loads optional routing and stage configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/micromdm/nanoheal/stage"
	"github.com/micromdm/nanoheal/workflow"

	"gopkg.in/yaml.v3"
)

// Config is the root file configuration.
type Config struct {
	Escalation EscalationConfig `yaml:"escalation"`
	Stage      StageConfig      `yaml:"stage"`
}

// EscalationConfig routes escalated runs to human queues.
type EscalationConfig struct {
	// Queues maps workflow types to target queue names.
	Queues map[string]string `yaml:"queues"`
}

// StageConfig tunes the decision stages.
type StageConfig struct {
	// Latency is the simulated external call latency.
	Latency time.Duration `yaml:"latency"`
}

// Defaults returns the configuration used without a config file.
func Defaults() *Config {
	return &Config{
		Escalation: EscalationConfig{
			Queues: map[string]string{
				string(workflow.PrinterOffline): stage.QueueNetworking,
				string(workflow.InkError):       stage.QueueHardware,
			},
		},
		Stage: StageConfig{Latency: stage.DefaultLatency},
	}
}

// Load reads the YAML file at path on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML data on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all configured values are usable.
func (c *Config) Validate() error {
	var errs []string

	for t, queue := range c.Escalation.Queues {
		if _, err := workflow.ParseType(t); err != nil {
			errs = append(errs, fmt.Sprintf("escalation.queues: %v", err))
		}
		if queue == "" {
			errs = append(errs, fmt.Sprintf("escalation.queues.%s must not be empty", t))
		}
	}
	if c.Stage.Latency < 0 {
		errs = append(errs, "stage.latency must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// StageOptions converts c into decision stage options.
func (c *Config) StageOptions() []stage.Option {
	opts := []stage.Option{stage.WithLatency(c.Stage.Latency)}
	for t, queue := range c.Escalation.Queues {
		opts = append(opts, stage.WithQueue(workflow.Type(t), queue))
	}
	return opts
}
