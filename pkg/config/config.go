// Package config loads the network build configuration: which sources to
// read, how to translate their identifiers, which organisms to keep, and
// where the result goes.
//
// Configuration comes from a YAML build file, with a handful of
// deployment-level settings overridable through MOLNET_ environment
// variables. Always call Validate() on a loaded config.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level build configuration.
type Config struct {
	// Name labels the built network in exports and logs.
	Name string `yaml:"name"`

	// DataDir, when set, makes the build run against persistent storage
	// instead of memory.
	DataDir string `yaml:"data_dir"`

	// ExportPath, when set, writes the finished network as JSON.
	ExportPath string `yaml:"export_path"`

	// AllowedTaxa restricts the network to these organisms. Empty means
	// no taxon filtering.
	AllowedTaxa []int `yaml:"allowed_taxa"`

	// AllowLoops permits self-interactions.
	AllowLoops bool `yaml:"allow_loops"`

	// DefaultIDTypes maps a molecule kind to its canonical identifier
	// namespace, e.g. protein: uniprot.
	DefaultIDTypes map[string]string `yaml:"default_id_types"`

	Log Log `yaml:"log"`

	MappingTables  []MappingTable  `yaml:"mapping_tables"`
	ReferenceLists []ReferenceList `yaml:"reference_lists"`
	Sources        []Source        `yaml:"sources"`
}

// Log configures logging output.
type Log struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Development enables human-readable console output.
	Development bool `yaml:"development"`
}

// MappingTable points at one identifier translation table file.
type MappingTable struct {
	FromType string `yaml:"from_type"`
	ToType   string `yaml:"to_type"`
	Path     string `yaml:"path"`
}

// ReferenceList points at one reference identifier list file.
type ReferenceList struct {
	Kind   string `yaml:"kind"`
	IDType string `yaml:"id_type"`
	Taxon  int    `yaml:"taxon"`
	Path   string `yaml:"path"`
}

// Source declares one input file and its column layout, mirroring
// source.ReadSettings.
type Source struct {
	Name      string `yaml:"name"`
	Path      string `yaml:"path"`
	Separator string `yaml:"separator"`
	Header    bool   `yaml:"header"`

	NameColA  int    `yaml:"name_col_a"`
	NameColB  int    `yaml:"name_col_b"`
	NameTypeA string `yaml:"name_type_a"`
	NameTypeB string `yaml:"name_type_b"`
	KindA     string `yaml:"kind_a"`
	KindB     string `yaml:"kind_b"`

	InteractionType string `yaml:"interaction_type"`

	Directed struct {
		Always bool     `yaml:"always"`
		Col    int      `yaml:"col"`
		Values []string `yaml:"values"`
	} `yaml:"directed"`

	Sign struct {
		Enabled        bool     `yaml:"enabled"`
		Col            int      `yaml:"col"`
		PositiveValues []string `yaml:"positive_values"`
		NegativeValues []string `yaml:"negative_values"`
	} `yaml:"sign"`

	Refs struct {
		Enabled   bool   `yaml:"enabled"`
		Col       int    `yaml:"col"`
		Separator string `yaml:"separator"`
	} `yaml:"refs"`

	Taxon struct {
		Fixed   int            `yaml:"fixed"`
		PerRow  bool           `yaml:"per_row"`
		ColA    int            `yaml:"col_a"`
		ColB    int            `yaml:"col_b"`
		Mapping map[string]int `yaml:"mapping"`
	} `yaml:"taxon"`

	ExtraEdgeAttrs  map[string]Column `yaml:"extra_edge_attrs"`
	ExtraNodeAttrsA map[string]Column `yaml:"extra_node_attrs_a"`
	ExtraNodeAttrsB map[string]Column `yaml:"extra_node_attrs_b"`
}

// Column declares one extra attribute column.
type Column struct {
	Col       int    `yaml:"col"`
	Separator string `yaml:"separator"`
}

// Default returns the configuration used when no build file is given.
func Default() *Config {
	return &Config{
		Name: "molnet",
		Log:  Log{Level: "info"},
		DefaultIDTypes: map[string]string{
			"protein": "uniprot",
			"mirna":   "mirbase",
		},
	}
}

// Load reads a YAML build file and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides deployment-level settings from MOLNET_ environment
// variables. Source and table declarations only come from the file.
func (c *Config) applyEnv() {
	c.Name = getEnv("MOLNET_NAME", c.Name)
	c.DataDir = getEnv("MOLNET_DATA_DIR", c.DataDir)
	c.ExportPath = getEnv("MOLNET_EXPORT_PATH", c.ExportPath)
	c.Log.Level = getEnv("MOLNET_LOG_LEVEL", c.Log.Level)
	c.Log.Development = getEnvBool("MOLNET_LOG_DEV", c.Log.Development)

	if taxa := os.Getenv("MOLNET_ALLOWED_TAXA"); taxa != "" {
		var parsed []int
		for _, part := range strings.Split(taxa, ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				parsed = append(parsed, n)
			}
		}
		if len(parsed) > 0 {
			c.AllowedTaxa = parsed
		}
	}
}

// Validate checks the configuration for contradictions before a build
// starts.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}

	names := make(map[string]struct{}, len(c.Sources))
	for i, src := range c.Sources {
		if src.Name == "" {
			return fmt.Errorf("source #%d has no name", i)
		}
		if _, dup := names[src.Name]; dup {
			return fmt.Errorf("duplicate source name %q", src.Name)
		}
		names[src.Name] = struct{}{}
		if src.Path == "" {
			return fmt.Errorf("source %q has no path", src.Name)
		}
		if src.KindA == "" || src.KindB == "" {
			return fmt.Errorf("source %q is missing molecule kinds", src.Name)
		}
		if !src.Taxon.PerRow && src.Taxon.Fixed == 0 {
			return fmt.Errorf("source %q has no organism configured", src.Name)
		}
	}

	for _, table := range c.MappingTables {
		if table.FromType == "" || table.ToType == "" || table.Path == "" {
			return fmt.Errorf("mapping table %q -> %q is incomplete", table.FromType, table.ToType)
		}
	}
	for _, list := range c.ReferenceLists {
		if list.Kind == "" || list.Taxon == 0 || list.Path == "" {
			return fmt.Errorf("reference list for kind %q taxon %d is incomplete", list.Kind, list.Taxon)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	switch os.Getenv(key) {
	case "true", "1":
		return true
	case "false", "0":
		return false
	}
	return fallback
}
