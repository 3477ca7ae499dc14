package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Defaults for the requirements configuration, applied when the config file
// leaves the corresponding entries empty.
const (
	DefaultCustomField  = "Requirements"
	DefaultIssueType    = "Bug"
	DefaultReleaseField = "Release"
)

// DefaultRequirementTypes is the requirement-type list assumed when none is
// configured: top-level options are capabilities, everything below a feature.
var DefaultRequirementTypes = []string{"capability", "feature"}

// Config represents the application configuration
type Config struct {
	Jira         JiraConfig         `yaml:"jira"`
	Requirements RequirementsConfig `yaml:"requirements"`
}

// JiraConfig represents JIRA API configuration
type JiraConfig struct {
	BaseURL    string `yaml:"base_url"`
	Username   string `yaml:"username"`
	APIToken   string `yaml:"api_token"`
	ProjectKey string `yaml:"project_key"`
	Timeout    int    `yaml:"timeout_seconds"`
}

// RequirementsConfig controls how requirements and releases are read from
// JIRA custom fields.
type RequirementsConfig struct {
	// CustomField is the cascading select field that defines the
	// requirement hierarchy.
	CustomField string `yaml:"custom_field"`
	// IssueType is the issue type whose field metadata is used to read the
	// cascading select options.
	IssueType string `yaml:"issue_type"`
	// Types names each requirement level, outermost first. The last entry
	// is repeated for any deeper levels.
	Types []string `yaml:"types"`
	// ReleaseField is the cascading select used for releases when
	// UseCustomFieldReleases is set; otherwise fix versions are used.
	ReleaseField           string `yaml:"release_field"`
	UseCustomFieldReleases bool   `yaml:"use_customfield_releases"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Requirements.CustomField == "" {
		c.Requirements.CustomField = DefaultCustomField
	}
	if c.Requirements.IssueType == "" {
		c.Requirements.IssueType = DefaultIssueType
	}
	if c.Requirements.ReleaseField == "" {
		c.Requirements.ReleaseField = DefaultReleaseField
	}
	if len(c.Requirements.Types) == 0 {
		c.Requirements.Types = append([]string(nil), DefaultRequirementTypes...)
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Jira.BaseURL == "" {
		return fmt.Errorf("JIRA base URL is required")
	}

	if c.Jira.Username == "" {
		return fmt.Errorf("JIRA username is required")
	}

	if c.Jira.APIToken == "" {
		return fmt.Errorf("JIRA API token is required")
	}

	if c.Jira.ProjectKey == "" {
		return fmt.Errorf("JIRA project key is required")
	}

	return nil
}
