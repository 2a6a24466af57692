package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models planline.yml.
type Config struct {
	Brand struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"brand"`
	ContentTypes struct {
		Catalog map[string]struct {
			Description string `yaml:"description"`
		} `yaml:"catalog"`
	} `yaml:"content_types"`
	Scheduling struct {
		AutoSchedule      bool   `yaml:"auto_schedule"`
		DueDateOffsetDays int    `yaml:"due_date_offset_days"`
		DefaultPriority   string `yaml:"default_priority"`
	} `yaml:"scheduling"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with pl brand config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Brand.ID == "" {
		return fmt.Errorf("config.brand.id is required")
	}
	for kind := range c.ContentTypes.Catalog {
		if kind == "" {
			return fmt.Errorf("config.content_types.catalog contains empty content type")
		}
	}
	if c.Scheduling.DueDateOffsetDays < 0 {
		return fmt.Errorf("config.scheduling.due_date_offset_days must not be negative")
	}
	switch c.Scheduling.DefaultPriority {
	case "", "low", "medium", "high":
	default:
		return fmt.Errorf("config.scheduling.default_priority must be low, medium or high")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d has negative timeout", i)
		}
	}
	return nil
}

// KnownContentType reports whether the catalog admits the given type. An empty
// catalog admits everything.
func (c *Config) KnownContentType(contentType string) bool {
	if len(c.ContentTypes.Catalog) == 0 {
		return true
	}
	_, ok := c.ContentTypes.Catalog[contentType]
	return ok
}

// DueDateOffset returns the configured business-day offset, defaulting to 2.
func (c *Config) DueDateOffset() int {
	if c.Scheduling.DueDateOffsetDays == 0 {
		return 2
	}
	return c.Scheduling.DueDateOffsetDays
}

// DefaultPriority returns the configured default task priority.
func (c *Config) DefaultPriority() string {
	if c.Scheduling.DefaultPriority == "" {
		return "medium"
	}
	return c.Scheduling.DefaultPriority
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "planline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(brandID, brandName string) string {
	return fmt.Sprintf(defaultTemplate, brandID, brandName)
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

// Default returns the default Config struct for a brand.
func Default(brandID, brandName string) *Config {
	var cfg Config
	cfg.Brand.ID = brandID
	cfg.Brand.Name = brandName
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, brandID, brandName))).Decode(&cfg)
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

const defaultTemplate = `brand:
  id: %s
  name: %s

content_types:
  catalog:
    BLOG_POST:
      description: "Long-form article for the brand blog"
    VIDEO:
      description: "Video content for the brand channels"
    SOCIAL_POST:
      description: "Short-form social media post"
    NEWSLETTER:
      description: "Email newsletter issue"
    PODCAST:
      description: "Podcast episode"
    INFOGRAPHIC:
      description: "Designed infographic asset"

scheduling:
  auto_schedule: false
  due_date_offset_days: 2
  default_priority: medium
`
