// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the Warden daemon.
//
// The daemon reads one file naming the control endpoint, the
// maintenance interval, and the supervised programs; the file is YAML
// (.yaml/.yml) or JSONC (.json/.jsonc — JSON extended with comments
// and trailing commas). Programs may be declared inline or as
// individual JSONC files in a program directory; the directory form
// suits drop-in packaging where each program ships its own file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"
)

// DefaultEndpoint is the control endpoint used when the config omits
// one.
const DefaultEndpoint = "tcp://127.0.0.1:5555"

// DefaultCheckDelay is the maintenance interval used when the config
// omits one.
const DefaultCheckDelay = time.Second

// Duration is a time.Duration that unmarshals from YAML duration
// strings ("500ms", "2s").
type Duration time.Duration

// UnmarshalYAML decodes a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"1s\": %w", err)
	}
	return d.set(raw)
}

// UnmarshalJSON decodes a duration string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("duration must be a string like \"1s\": %w", err)
	}
	return d.set(raw)
}

func (d *Duration) set(raw string) error {
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the daemon configuration. The YAML tags cover .yaml/.yml
// files, the JSON tags .json/.jsonc files.
type Config struct {
	// Endpoint is the control socket address: tcp://host:port or
	// unix:///path.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// CheckDelay is the periodic maintenance interval.
	CheckDelay Duration `yaml:"check_delay" json:"check_delay"`

	// ProgramDir is a directory of per-program JSONC definition files.
	// Loaded in lexical order, after the inline programs.
	ProgramDir string `yaml:"program_dir" json:"program_dir"`

	// Programs are the inline program declarations.
	Programs []Program `yaml:"programs" json:"programs"`
}

// Program describes one supervised program. The JSON tags cover the
// JSONC drop-in form, the YAML tags the inline form.
type Program struct {
	// Name identifies the program in commands. Required, unique.
	Name string `yaml:"name" json:"name"`

	// Cmd is the program and its arguments. Required.
	Cmd []string `yaml:"cmd" json:"cmd"`

	// NumProcesses is the target process count. Defaults to 1.
	NumProcesses int `yaml:"numprocesses" json:"numprocesses"`

	// WorkingDir is the processes' working directory. Empty means
	// inherit the daemon's.
	WorkingDir string `yaml:"working_dir" json:"working_dir"`

	// Env is appended to the daemon's environment for each process.
	Env map[string]string `yaml:"env" json:"env"`

	// StopSignal names the signal sent to stop processes ("TERM",
	// "SIGINT", ...). Defaults to TERM.
	StopSignal string `yaml:"stop_signal" json:"stop_signal"`

	// Autostart starts the program when the daemon boots.
	Autostart bool `yaml:"autostart" json:"autostart"`
}

// Default returns the configuration used when no file is given: the
// default endpoint and interval, no programs.
func Default() *Config {
	return &Config{
		Endpoint:   DefaultEndpoint,
		CheckDelay: Duration(DefaultCheckDelay),
	}
}

// LoadFile reads a config file, applies defaults, and loads the
// program directory if one is configured. The format follows the file
// extension: .yaml/.yml is YAML, .json/.jsonc is JSONC. The result is
// validated.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	config := Default()
	switch filepath.Ext(path) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), config); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		decoder := yaml.NewDecoder(strings.NewReader(string(data)))
		decoder.KnownFields(true)
		if err := decoder.Decode(config); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.CheckDelay <= 0 {
		config.CheckDelay = Duration(DefaultCheckDelay)
	}

	if config.ProgramDir != "" {
		programs, err := LoadProgramDir(config.ProgramDir)
		if err != nil {
			return nil, err
		}
		config.Programs = append(config.Programs, programs...)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// LoadProgramDir reads every .jsonc and .json file in dir as one
// program definition, in lexical order.
func LoadProgramDir(dir string) ([]Program, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading program directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".jsonc" && ext != ".json" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	programs := make([]Program, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		program, err := ReadProgramFile(path)
		if err != nil {
			return nil, err
		}
		programs = append(programs, *program)
	}
	return programs, nil
}

// ReadProgramFile reads one JSONC program definition from disk.
func ReadProgramFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	program, err := ParseProgram(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return program, nil
}

// ParseProgram strips JSONC comments and trailing commas from data,
// then unmarshals the result into a Program.
func ParseProgram(data []byte) (*Program, error) {
	stripped := jsonc.ToJSON(data)

	var program Program
	if err := json.Unmarshal(stripped, &program); err != nil {
		return nil, fmt.Errorf("parsing program: %w", err)
	}
	return &program, nil
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	} else if !strings.HasPrefix(c.Endpoint, "tcp://") && !strings.HasPrefix(c.Endpoint, "unix://") {
		errs = append(errs, fmt.Errorf("endpoint %q: unsupported scheme (want tcp:// or unix://)", c.Endpoint))
	}
	if c.CheckDelay <= 0 {
		errs = append(errs, fmt.Errorf("check_delay %v: must be positive", c.CheckDelay.Std()))
	}

	seen := make(map[string]bool)
	for _, program := range c.Programs {
		if err := program.validate(); err != nil {
			errs = append(errs, err)
		}
		key := strings.ToLower(program.Name)
		if program.Name != "" && seen[key] {
			errs = append(errs, fmt.Errorf("program %q declared twice", program.Name))
		}
		seen[key] = true
	}

	return errors.Join(errs...)
}

func (p *Program) validate() error {
	var errs []error
	if p.Name == "" {
		errs = append(errs, errors.New("program without a name"))
	}
	if len(p.Cmd) == 0 {
		errs = append(errs, fmt.Errorf("program %q: cmd is required", p.Name))
	}
	if p.NumProcesses < 0 {
		errs = append(errs, fmt.Errorf("program %q: numprocesses must not be negative", p.Name))
	}
	if p.StopSignal != "" {
		if _, err := p.Signal(); err != nil {
			errs = append(errs, fmt.Errorf("program %q: %w", p.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Signal resolves the program's stop signal name. Empty means SIGTERM.
func (p *Program) Signal() (unix.Signal, error) {
	if p.StopSignal == "" {
		return unix.SIGTERM, nil
	}
	name := strings.ToUpper(p.StopSignal)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	sig := unix.SignalNum(name)
	if sig == 0 {
		return 0, fmt.Errorf("unknown stop signal %q", p.StopSignal)
	}
	return sig, nil
}
