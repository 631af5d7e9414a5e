package domain

import (
	"strings"
	"time"
)

// Capability is the class of generation a provider configuration serves.
type Capability string

const (
	CapabilityText            Capability = "text"
	CapabilityImage           Capability = "image"
	CapabilityStoryboardImage Capability = "storyboard_image"
	CapabilityVideo           Capability = "video"
)

// ProviderConfig describes one configured upstream generation service. Rows
// are managed by an external CRUD surface; this core only reads them.
type ProviderConfig struct {
	ID            int64
	Capability    Capability
	Provider      string
	Name          string
	BaseURL       string
	APIKey        string
	Models        []string
	DefaultModel  string
	Endpoint      string
	QueryEndpoint string
	Priority      int
	IsDefault     bool
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ProviderName returns the lower-cased provider identifier used for dispatch.
func (c *ProviderConfig) ProviderName() string {
	return strings.ToLower(strings.TrimSpace(c.Provider))
}

// ModelFor picks the model to use: the preferred one when the config lists
// it, otherwise the configured default, otherwise the first listed model.
func (c *ProviderConfig) ModelFor(preferred string) string {
	preferred = strings.TrimSpace(preferred)
	if preferred != "" {
		for _, m := range c.Models {
			if m == preferred {
				return preferred
			}
		}
	}
	if c.DefaultModel != "" {
		for _, m := range c.Models {
			if m == c.DefaultModel {
				return c.DefaultModel
			}
		}
	}
	if len(c.Models) > 0 {
		return c.Models[0]
	}
	return ""
}

// HasModel reports whether the config lists the given model.
func (c *ProviderConfig) HasModel(model string) bool {
	for _, m := range c.Models {
		if m == model {
			return true
		}
	}
	return false
}
