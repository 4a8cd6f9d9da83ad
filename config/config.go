package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// ErrOptimizeWithoutValidate is returned when optimization is enabled without validation.
var ErrOptimizeWithoutValidate = errors.New("config: optimize requires validate")

// Config is the "events" configuration section.
type Config struct {
	// Subscribers lists the service IDs tagged as event subscribers.
	Subscribers []string `yaml:"subscribers" env:"YAO_EVENTS_SUBSCRIBERS" envSeparator:","`
	// Validate runs the validation pass at build time.
	Validate bool `yaml:"validate" env:"YAO_EVENTS_VALIDATE"`
	// Optimize compiles a binding table and serves it lazily.
	Optimize bool `yaml:"optimize" env:"YAO_EVENTS_OPTIMIZE"`
	// Debugger selects the dispatch data recorded for inspection.
	Debugger Debugger `yaml:"debugger" env:"YAO_EVENTS_DEBUGGER"`
	// ExceptionHandler names the service intercepting listener failures.
	ExceptionHandler string `yaml:"exceptionHandler" env:"YAO_EVENTS_EXCEPTION_HANDLER"`
	// Autowire binds the exported On* slot fields of provided instances.
	Autowire bool `yaml:"autowire" env:"YAO_EVENTS_AUTOWIRE"`
	// GlobalDispatchFirst makes slots run global listeners before local ones.
	GlobalDispatchFirst bool `yaml:"globalDispatchFirst" env:"YAO_EVENTS_GLOBAL_DISPATCH_FIRST"`
}

// Debugger is the debugger section. It is written either as a bool, turning
// every panel on or off, or as a map of panels.
type Debugger struct {
	DispatchTree bool `yaml:"dispatchTree"`
	DispatchLog  bool `yaml:"dispatchLog"`
	Events       bool `yaml:"events"`
	Listeners    bool `yaml:"listeners"`
}

// Enabled reports whether any panel is on.
func (d Debugger) Enabled() bool {
	return d.DispatchTree || d.DispatchLog || d.Events || d.Listeners
}

func debuggerAll(on bool) Debugger {
	return Debugger{DispatchTree: on, DispatchLog: on, Events: on, Listeners: on}
}

// UnmarshalYAML accepts a bool or a map of panels.
func (d *Debugger) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := parseDebugger(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalText accepts a bool or a comma separated list of panels,
// as found in environment variables.
func (d *Debugger) UnmarshalText(text []byte) error {
	value := strings.TrimSpace(string(text))
	if on, err := cast.ToBoolE(value); err == nil {
		*d = debuggerAll(on)
		return nil
	}
	panels := map[string]any{}
	for _, name := range strings.Split(value, ",") {
		if name = strings.TrimSpace(name); name != "" {
			panels[name] = true
		}
	}
	parsed, err := parseDebugger(panels)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func parseDebugger(raw any) (Debugger, error) {
	switch v := raw.(type) {
	case nil:
		return Debugger{}, nil
	case bool:
		return debuggerAll(v), nil
	case map[string]any:
		var d Debugger
		for key, value := range v {
			on, err := cast.ToBoolE(value)
			if err != nil {
				return Debugger{}, fmt.Errorf("config: debugger.%s: %w", key, err)
			}
			switch key {
			case "dispatchTree":
				d.DispatchTree = on
			case "dispatchLog":
				d.DispatchLog = on
			case "events":
				d.Events = on
			case "listeners":
				d.Listeners = on
			default:
				return Debugger{}, fmt.Errorf("config: unknown debugger panel %q", key)
			}
		}
		return d, nil
	}

	on, err := cast.ToBoolE(raw)
	if err != nil {
		return Debugger{}, fmt.Errorf("config: debugger must be a bool or a map: %w", err)
	}
	return debuggerAll(on), nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{Validate: true, Optimize: true, Autowire: true}
}

// Load reads a yaml file, either the "events" section of an application
// file or a bare section, then applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	return cfg, cfg.Check()
}

// Parse decodes yaml content over the defaults.
func Parse(data []byte) (*Config, error) {
	var root map[string]yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}

	cfg := Default()
	if section, ok := root["events"]; ok {
		if err := section.Decode(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds the configuration from environment variables, loading the
// given .env files first. Missing .env files are ignored.
func FromEnv(envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", file, err)
		}
	}

	cfg := Default()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	return cfg, cfg.Check()
}

// Check verifies option combinations and normalizes service IDs.
func (cfg *Config) Check() error {
	if cfg.Optimize && !cfg.Validate {
		return ErrOptimizeWithoutValidate
	}

	subscribers := cfg.Subscribers[:0]
	seen := map[string]struct{}{}
	for _, id := range cfg.Subscribers {
		id = strings.TrimPrefix(strings.TrimSpace(id), "@")
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		subscribers = append(subscribers, id)
	}
	cfg.Subscribers = subscribers
	cfg.ExceptionHandler = strings.TrimPrefix(strings.TrimSpace(cfg.ExceptionHandler), "@")
	return nil
}
