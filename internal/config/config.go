package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "/etc/docsearch/config.json"

const (
	DefaultSite        = "https://cloudcustodian.io/docs"
	DefaultRootAlias   = "source"
	DefaultPublishExt  = ".html"
	DefaultListen      = ":8080"
	DefaultSearchLimit = 20
	DefaultMaxLimit    = 100
)

// DefaultSourceExts are the markup extensions indexed when none are configured.
var DefaultSourceExts = []string{".rst", ".rest"}

var validate = validator.New()

// Config describes one documentation tree, where its index lives and how it
// is served. The file may be JSON, TOML or YAML.
type Config struct {
	Site        string   `json:"site" toml:"site" yaml:"site" validate:"required,url"`
	SourceDir   string   `json:"source_dir" toml:"source_dir" yaml:"source_dir" validate:"required"`
	RootAlias   string   `json:"root_alias" toml:"root_alias" yaml:"root_alias"`
	SourceExts  []string `json:"source_exts" toml:"source_exts" yaml:"source_exts" validate:"min=1,dive,startswith=."`
	PublishExt  string   `json:"publish_ext" toml:"publish_ext" yaml:"publish_ext" validate:"startswith=."`
	OutputDir   string   `json:"output_dir" toml:"output_dir" yaml:"output_dir" validate:"required"`
	IndexDir    string   `json:"index_dir" toml:"index_dir" yaml:"index_dir"`
	Listen      string   `json:"listen" toml:"listen" yaml:"listen" validate:"required"`
	SearchLimit int      `json:"search_limit" toml:"search_limit" yaml:"search_limit" validate:"min=1,ltefield=MaxLimit"`
	MaxLimit    int      `json:"max_limit" toml:"max_limit" yaml:"max_limit" validate:"min=1"`
	LogLevel    string   `json:"log_level" toml:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat   string   `json:"log_format" toml:"log_format" yaml:"log_format" validate:"omitempty,oneof=text json"`
}

func DefaultPath() string {
	if path := os.Getenv("DOCSEARCH_CONFIG_FILE"); path != "" {
		return path
	}
	return defaultConfigPath
}

// Load reads the file at path, decoding it by extension (.toml, .yaml/.yml,
// anything else as JSON), fills in defaults and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := decode(path, raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func decode(path string, raw []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(raw, cfg)
	case ".yaml", ".yml":
		return yaml.Unmarshal(raw, cfg)
	default:
		return json.Unmarshal(raw, cfg)
	}
}

// ApplyDefaults fills every unset optional field.
func (c *Config) ApplyDefaults() {
	if c.Site == "" {
		c.Site = DefaultSite
	}
	if c.RootAlias == "" {
		c.RootAlias = DefaultRootAlias
	}
	if len(c.SourceExts) == 0 {
		c.SourceExts = append([]string(nil), DefaultSourceExts...)
	}
	if c.PublishExt == "" {
		c.PublishExt = DefaultPublishExt
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.MaxLimit == 0 {
		c.MaxLimit = DefaultMaxLimit
	}
	if c.SearchLimit == 0 {
		c.SearchLimit = min(DefaultSearchLimit, c.MaxLimit)
	}
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func (c *Config) IndexPath() string {
	if c.IndexDir != "" {
		return c.IndexDir
	}
	return filepath.Join(c.OutputDir, "search.db")
}

func (c *Config) SiteURL() string {
	return strings.TrimRight(c.Site, "/")
}
