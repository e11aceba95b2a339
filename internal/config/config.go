package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models bountyboard.yml.
type Config struct {
	Platform struct {
		CustodyAccount string `yaml:"custody_account"`
		IssuerAccount  string `yaml:"issuer_account"`
		DefaultAsset   string `yaml:"default_asset"`
	} `yaml:"platform"`
	Assets struct {
		Catalog map[string]Asset `yaml:"catalog"`
	} `yaml:"assets"`
	Ratings struct {
		Min int `yaml:"min"`
		Max int `yaml:"max"`
	} `yaml:"ratings"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

type Asset struct {
	Description string `yaml:"description"`
}

// WebhookConfig describes one event delivery target.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate with bb config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Platform.CustodyAccount == "" {
		return fmt.Errorf("config.platform.custody_account is required")
	}
	if c.Platform.IssuerAccount == "" {
		return fmt.Errorf("config.platform.issuer_account is required")
	}
	if c.Platform.CustodyAccount == c.Platform.IssuerAccount {
		return fmt.Errorf("config.platform custody and issuer accounts must differ")
	}
	if c.Platform.DefaultAsset == "" {
		return fmt.Errorf("config.platform.default_asset is required")
	}
	if len(c.Assets.Catalog) > 0 {
		if _, ok := c.Assets.Catalog[c.Platform.DefaultAsset]; !ok {
			return fmt.Errorf("default asset %s not in assets catalog", c.Platform.DefaultAsset)
		}
		for code := range c.Assets.Catalog {
			if code == "" {
				return fmt.Errorf("config.assets.catalog contains empty asset code")
			}
		}
	}
	if c.Ratings.Min < 0 || c.Ratings.Max <= c.Ratings.Min {
		return fmt.Errorf("config.ratings range %d..%d is invalid", c.Ratings.Min, c.Ratings.Max)
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// KnownAsset reports whether an asset code may be used for payments.
// An empty catalog accepts any code.
func (c *Config) KnownAsset(code string) bool {
	if len(c.Assets.Catalog) == 0 {
		return true
	}
	_, ok := c.Assets.Catalog[code]
	return ok
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "bountyboard.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
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

const defaultTemplate = `platform:
  custody_account: escrow-vault
  issuer_account: token-issuer
  default_asset: USDx

assets:
  catalog:
    USDx:
      description: "Platform stable token"

ratings:
  min: 0
  max: 100

# webhooks:
#   - url: https://example.com/hooks/bountyboard
#     events: [bounty.completed, bounty.disputed]
`
