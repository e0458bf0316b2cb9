// Package config loads the .reelgraph.yaml project configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is returned by FindConfig when no config file exists in
// the directory or any of its parents.
var ErrConfigNotFound = errors.New("config file not found")

// DefaultConfigNames are the filenames we search for.
var DefaultConfigNames = []string{".reelgraph.yaml", ".reelgraph.yml", "reelgraph.yaml", "reelgraph.yml"}

// Config represents the .reelgraph.yaml configuration file.
type Config struct {
	// Records is the path of the movie records JSON file.
	Records string `yaml:"records"`

	// DataDir holds the badger store and exported graph files.
	DataDir string `yaml:"data_dir"`

	HTTP  HTTPConfig  `yaml:"http,omitempty"`
	Neo4j Neo4jConfig `yaml:"neo4j,omitempty"`

	// Path is the file the config was read from; empty for defaults.
	Path string `yaml:"-"`
}

// HTTPConfig holds settings for the serve command.
type HTTPConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// Neo4jConfig holds connection settings for the push command.
type Neo4jConfig struct {
	URI      string `yaml:"uri,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Records: "top_movies_details.json",
		DataDir: ".reelgraph",
		HTTP:    HTTPConfig{Addr: ":8080"},
		Neo4j:   Neo4jConfig{URI: "neo4j://localhost:7687"},
	}
}

// Load finds the nearest config walking up from dir. A missing file yields
// the defaults.
func Load(dir string) (*Config, error) {
	path, err := FindConfig(dir)
	if errors.Is(err, ErrConfigNotFound) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}

	return LoadFile(path)
}

// FindConfig searches for a config file starting from dir and walking up.
func FindConfig(dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for dir := absDir; ; {
		for _, name := range DefaultConfigNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrConfigNotFound
		}
		dir = parent
	}
}

// LoadFile loads a config from a specific path. Unset fields keep their
// defaults; relative paths resolve against the config file's directory.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.Path = path

	base := filepath.Dir(path)
	cfg.Records = resolve(base, cfg.Records)
	cfg.DataDir = resolve(base, cfg.DataDir)

	return cfg, nil
}

// StorePath is the badger directory inside DataDir.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "store")
}

// GraphPath is the exported graph.json inside DataDir.
func (c *Config) GraphPath() string {
	return filepath.Join(c.DataDir, "graph.json")
}

// MetaPath is the build metadata file inside DataDir.
func (c *Config) MetaPath() string {
	return filepath.Join(c.DataDir, "meta.json")
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
