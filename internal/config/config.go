package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lubereport/internal/domain"
)

// FileName is the workspace configuration file.
const FileName = "lubereport.yml"

// Config models lubereport.yml.
type Config struct {
	Backend struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"backend"`
	Report struct {
		Title    string `yaml:"title"`
		Timezone string `yaml:"timezone"`
		Logo     string `yaml:"logo"`
	} `yaml:"report"`
	Sectors     map[domain.Sector]SectorConfig `yaml:"sectors"`
	SafetyTypes []string                       `yaml:"safety_types"`
}

// SectorConfig holds the static heavy-machine catalog of one sector.
type SectorConfig struct {
	HeavyMachines []domain.CatalogMachine `yaml:"heavy_machines"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with lr config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
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
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return fmt.Errorf("config.backend.base_url is required")
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("config.backend.timeout must not be negative")
	}
	if c.Report.Timezone != "" {
		if _, err := time.LoadLocation(c.Report.Timezone); err != nil {
			return fmt.Errorf("config.report.timezone: %w", err)
		}
	}
	if len(c.Sectors) == 0 {
		return fmt.Errorf("config.sectors is required")
	}
	for sector, sc := range c.Sectors {
		if !sector.Valid() {
			return fmt.Errorf("unknown sector %q", sector)
		}
		seen := make(map[string]bool, len(sc.HeavyMachines))
		for _, m := range sc.HeavyMachines {
			if m.Tag == "" {
				return fmt.Errorf("sector %s has a heavy machine with empty tag", sector)
			}
			if seen[m.Tag] {
				return fmt.Errorf("sector %s lists heavy machine %s twice", sector, m.Tag)
			}
			seen[m.Tag] = true
			if !m.Type.Valid() {
				return fmt.Errorf("heavy machine %s has unknown type %q", m.Tag, m.Type)
			}
		}
	}
	for _, t := range c.SafetyTypes {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("config.safety_types contains an empty type")
		}
	}
	return nil
}

// Catalog returns the heavy-machine catalog of a sector in configured order.
func (c *Config) Catalog(sector domain.Sector) []domain.CatalogMachine {
	if c == nil {
		return nil
	}
	return c.Sectors[sector].HeavyMachines
}

// Location returns the configured report timezone, falling back to Local.
func (c *Config) Location() *time.Location {
	if c == nil || c.Report.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Report.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// SafetyTaxonomy returns the configured safety types or the built-in list.
func (c *Config) SafetyTaxonomy() []string {
	if c == nil || len(c.SafetyTypes) == 0 {
		return domain.SafetyTypes
	}
	return c.SafetyTypes
}

// IsSafetyType reports whether t belongs to the configured taxonomy.
func (c *Config) IsSafetyType(t string) bool {
	for _, s := range c.SafetyTaxonomy() {
		if s == t {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 10 * time.Second
	}
	if cfg.Report.Title == "" {
		cfg.Report.Title = "Rapport journalier de lubrification"
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

const defaultTemplate = `backend:
  base_url: http://localhost:5000/api
  timeout: 10s

report:
  title: Rapport journalier de lubrification
  timezone: Europe/Paris
  logo: ""

sectors:
  AC/V:
    heavy_machines:
      - {tag: P211A, type: p211}
      - {tag: P211B, type: p211}
      - {tag: C823A, type: vidange}
      - {tag: C823B, type: vidange}
      - {tag: I520, type: controle}
      - {tag: C283, type: classique}
      - {tag: C325A, type: classique}
      - {tag: C325B, type: classique}
      - {tag: C330A, type: classique}
      - {tag: C330B, type: classique}
      - {tag: C330C, type: classique}
      - {tag: C674A, type: classique}
      - {tag: C674B, type: classique}
      - {tag: C821A, type: classique}
      - {tag: C821B, type: classique}
      - {tag: C821C, type: classique}
      - {tag: C881, type: classique}
      - {tag: C911A, type: classique}
      - {tag: C911B, type: classique}
      - {tag: C911C, type: classique}
      - {tag: C922, type: classique}
      - {tag: C931A, type: classique}
      - {tag: C931B, type: classique}
      - {tag: C931C, type: classique}
      - {tag: C931D, type: classique}
      - {tag: C934A, type: classique}
      - {tag: C934B, type: classique}
      - {tag: CT921, type: classique}
      - {tag: I530, type: classique}
      - {tag: P520, type: classique}
      - {tag: P530, type: classique}
      - {tag: P911A, type: classique}
      - {tag: P911B, type: classique}
      - {tag: P911C, type: classique}
      - {tag: P911D, type: classique}
  AC/E:
    heavy_machines:
      - {tag: P470A, type: pression}
      - {tag: P470B, type: pression}
      - {tag: C204, type: classique}
      - {tag: C213A, type: classique}
      - {tag: C213B, type: classique}
      - {tag: C214, type: classique}
      - {tag: C431A, type: classique}
      - {tag: C431B, type: classique}
      - {tag: C431C, type: classique}
      - {tag: C667, type: classique}
      - {tag: C668, type: classique}
      - {tag: P431A1, type: classique}
      - {tag: P431A2, type: classique}
      - {tag: P431B1, type: classique}
      - {tag: P431B2, type: classique}
      - {tag: P431C1, type: classique}
      - {tag: P431C2, type: classique}
      - {tag: P670, type: classique}

safety_types:
  - Atteinte corporelle
  - Comportement à risque
  - Électrique
  - EPI
  - Infrastructure
  - Logistique
  - Levage
  - Sécurité machine
  - Pollution
  - Produits chimiques
  - Incendie
  - Sécurité procédé
  - Travaux extérieurs
  - Autre
`
