package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models mutaline.yml.
type Config struct {
	Administration struct {
		ID  string `yaml:"id"`
		Nom string `yaml:"nom"`
	} `yaml:"administration"`
	Regles struct {
		// AncienneteMinimale is the tenure in whole years required to
		// submit a mutation request. Zero disables the check.
		AncienneteMinimale int `yaml:"anciennete_minimale"`
		// ExigerPosteLibre blocks submission when the desired poste is
		// not currently LIBRE.
		ExigerPosteLibre bool `yaml:"exiger_poste_libre"`
		// ExigerGradeCorrespondant blocks submission when the agent's
		// grade differs from the poste's required grade.
		ExigerGradeCorrespondant bool `yaml:"exiger_grade_correspondant"`
		// PoidsAnciennete weights tenure in the priority score.
		PoidsAnciennete int `yaml:"poids_anciennete"`
	} `yaml:"regles"`
	Sweep struct {
		// Interval between automatic application sweeps, e.g. "24h".
		Interval string `yaml:"interval"`
		Enabled  bool   `yaml:"enabled"`
	} `yaml:"sweep"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create with ml init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Regles.AncienneteMinimale < 0 {
		return fmt.Errorf("config.regles.anciennete_minimale must not be negative")
	}
	if c.Regles.PoidsAnciennete <= 0 {
		return fmt.Errorf("config.regles.poids_anciennete must be positive")
	}
	if c.Sweep.Interval == "" {
		return fmt.Errorf("config.sweep.interval is required")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "mutaline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `administration:
  id: default
  nom: "Administration centrale"

regles:
  anciennete_minimale: 0
  exiger_poste_libre: true
  exiger_grade_correspondant: true
  poids_anciennete: 10

sweep:
  interval: 24h
  enabled: true
`
