// Package config loads and validates the per-image build configuration.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level smelter.yaml: one output image assembled from one
// or more elements, each installed by a registered mold.
type Config struct {
	// Name of the output image; also used in artifact file names.
	Name string `yaml:"name"`

	// SizeGiB is the capacity of the output disk.
	SizeGiB uint `yaml:"size_gib"`

	VCPUs     uint `yaml:"vcpus,omitempty"`
	MemoryMiB uint `yaml:"memory_mib,omitempty"`

	// SSHPort is the host port forwarded to the guest's SSH daemon during
	// builds.
	SSHPort uint `yaml:"ssh_port,omitempty"`

	// OutputDir receives the built qcow2 image. Defaults to the working
	// directory.
	OutputDir string `yaml:"output_dir,omitempty"`

	Elements []Element `yaml:"elements"`
}

// Element selects a mold and optionally overrides its defaults.
type Element struct {
	Mold string `yaml:"mold"`

	// MediaURL/MediaChecksum override the mold's default installation
	// media, for pinning a mirror or release.
	MediaURL      string `yaml:"media_url,omitempty"`
	MediaChecksum string `yaml:"media_checksum,omitempty"`

	// RootPassword overrides the mold's root credential for molds that
	// install a fixed password.
	RootPassword string `yaml:"root_password,omitempty"`
}

// Defaults applied by Validate when fields are unset.
const (
	DefaultVCPUs     = 2
	DefaultMemoryMiB = 2048
	DefaultSSHPort   = 10022
)

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// LoadFromFile reads and validates a configuration file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the configuration structure and fills defaults. It does
// not check host resources or mold registration; the build does that when
// it resolves each element.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !namePattern.MatchString(strings.ToLower(c.Name)) {
		return fmt.Errorf("name must start with an alphanumeric and contain only alphanumerics, hyphens, or underscores, got %q", c.Name)
	}
	if c.SizeGiB == 0 {
		return fmt.Errorf("size_gib must be > 0")
	}
	if len(c.Elements) == 0 {
		return fmt.Errorf("at least one element is required")
	}
	for i, e := range c.Elements {
		if e.Mold == "" {
			return fmt.Errorf("elements[%d]: mold is required", i)
		}
	}

	if c.VCPUs == 0 {
		c.VCPUs = DefaultVCPUs
	}
	if c.MemoryMiB == 0 {
		c.MemoryMiB = DefaultMemoryMiB
	}
	if c.SSHPort == 0 {
		c.SSHPort = DefaultSSHPort
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	return nil
}

// WriteStarter writes a commented starter configuration for `smelter init`.
func WriteStarter(path, name, mold string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	cfg := Config{
		Name:    name,
		SizeGiB: 16,
		Elements: []Element{
			{Mold: mold},
		},
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to render starter config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write starter config: %w", err)
	}
	return nil
}
