package config

import (
	"fmt"
	"os"
	"strings"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig           `toml:"server"`
	Library LibraryConfig          `toml:"library"`
	Models  map[string]ModelConfig `toml:"models"`
	Batch   BatchConfig            `toml:"batch"`
	Backend BackendConfig          `toml:"backend"`
}

// ServerConfig holds HTTP service settings
type ServerConfig struct {
	Address            string `toml:"address"`
	ProjectName        string `toml:"project_name"`
	ProjectVersion     string `toml:"project_version"`
	ReadTimeoutSeconds int    `toml:"read_timeout_seconds"`
	// RequestTimeoutSeconds bounds one generate+evaluate request (0 = no limit)
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
}

// LibraryConfig points at the module definition directory
type LibraryConfig struct {
	TemplatesDir string `toml:"templates_dir"` // Empty = embedded default definitions
}

// BatchConfig holds settings for the batch runner
type BatchConfig struct {
	Concurrency int    `toml:"concurrency"`
	OutputDir   string `toml:"output_dir"`
}

// BackendConfig selects and tunes the text-generation backend
type BackendConfig struct {
	Mock                 bool           `toml:"mock"`                   // Use the built-in mock backend instead of HTTP calls
	ProviderRateLimits   map[string]int `toml:"provider_rate_limits"`   // Global rate limits per provider (requests per minute)
	ProviderBurstPercent int            `toml:"provider_burst_percent"` // Burst capacity as percentage (1-50, default: 15)
}

// ModelConfig represents configuration for a single model endpoint.
// It doubles as the model identifier handed to the backend.
type ModelConfig struct {
	BaseURL            string  `toml:"base_url"`
	ModelName          string  `toml:"model_name"`
	Temperature        float64 `toml:"temperature"`
	TopP               float64 `toml:"top_p"`
	MaxOutputTokens    int     `toml:"max_output_tokens"`
	RateLimitPerMinute int     `toml:"rate_limit_per_minute"`
	MaxRetries         int     `toml:"max_retries"`          // Optional: max retry attempts (default 3)
	HTTPTimeoutSeconds int     `toml:"http_timeout_seconds"` // Optional: HTTP request timeout (default 120)
	UseJSONMode        bool    `toml:"use_json_mode"`        // Request a JSON object response (rubric model)
}

// Model roles
const (
	ModelGeneration = "generation"
	ModelRubric     = "rubric"
)

// Secrets holds sensitive credentials loaded from environment variables
type Secrets struct {
	APIKeys map[string]string
}

const (
	// MaxConcurrency is the maximum allowed batch concurrency
	MaxConcurrency = 256
)

// Generation returns the generation model config
func (c *Config) Generation() ModelConfig {
	return c.Models[ModelGeneration]
}

// Rubric returns the rubric checker model config
func (c *Config) Rubric() ModelConfig {
	return c.Models[ModelRubric]
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Backend.ProviderBurstPercent == 0 {
		c.Backend.ProviderBurstPercent = 15
	}
	if c.Backend.ProviderBurstPercent < 1 || c.Backend.ProviderBurstPercent > 50 {
		return fmt.Errorf("backend.provider_burst_percent must be between 1 and 50 (got %d)", c.Backend.ProviderBurstPercent)
	}

	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Server.ReadTimeoutSeconds < 0 {
		return fmt.Errorf("server.read_timeout_seconds must not be negative")
	}
	if c.Server.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("server.request_timeout_seconds must not be negative")
	}

	if c.Batch.Concurrency < 1 {
		return fmt.Errorf("batch.concurrency must be at least 1")
	}
	if c.Batch.Concurrency > MaxConcurrency {
		return fmt.Errorf("batch.concurrency must not exceed %d (got %d)", MaxConcurrency, c.Batch.Concurrency)
	}

	for _, role := range []string{ModelGeneration, ModelRubric} {
		mc, ok := c.Models[role]
		if !ok {
			return fmt.Errorf("models.%s is required", role)
		}
		if err := validateModelConfig(role, mc); err != nil {
			return err
		}
	}

	return nil
}

func validateModelConfig(name string, mc ModelConfig) error {
	if mc.BaseURL == "" {
		return fmt.Errorf("models.%s.base_url is required", name)
	}
	if mc.ModelName == "" {
		return fmt.Errorf("models.%s.model_name is required", name)
	}
	if mc.Temperature < 0 || mc.Temperature > 2 {
		return fmt.Errorf("models.%s.temperature must be between 0 and 2", name)
	}
	if mc.TopP < 0 || mc.TopP > 1 {
		return fmt.Errorf("models.%s.top_p must be between 0 and 1", name)
	}
	if mc.MaxOutputTokens < 1 {
		return fmt.Errorf("models.%s.max_output_tokens must be at least 1", name)
	}
	if mc.RateLimitPerMinute < 1 {
		return fmt.Errorf("models.%s.rate_limit_per_minute must be at least 1", name)
	}
	if mc.HTTPTimeoutSeconds < 0 {
		return fmt.Errorf("models.%s.http_timeout_seconds must not be negative", name)
	}
	return nil
}

// LoadSecrets loads sensitive credentials from environment variables
func LoadSecrets() (*Secrets, error) {
	secrets := &Secrets{
		APIKeys: make(map[string]string),
	}

	// Generic keys, LLM_API_KEY wins over API_KEY
	if key := os.Getenv("API_KEY"); key != "" {
		secrets.APIKeys["generic"] = key
	}
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		secrets.APIKeys["generic"] = key
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		secrets.APIKeys["openai"] = key
	}
	if key := os.Getenv("NVIDIA_API_KEY"); key != "" {
		secrets.APIKeys["nvidia"] = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		secrets.APIKeys["anthropic"] = key
	}
	if key := os.Getenv("TOGETHER_API_KEY"); key != "" {
		secrets.APIKeys["together"] = key
	}

	return secrets, nil
}

// GetAPIKey returns the API key for a given base URL
func (s *Secrets) GetAPIKey(baseURL string) string {
	if s == nil {
		return ""
	}
	if provider := GetProviderName(baseURL); provider != baseURL {
		if key := s.APIKeys[provider]; key != "" {
			return key
		}
	}

	// Fall back to the generic key for any OpenAI-compatible provider
	if key := s.APIKeys["generic"]; key != "" {
		return key
	}

	// Local servers often run without auth
	return ""
}

// GetProviderName extracts a provider name from a base URL for rate limiting
func GetProviderName(baseURL string) string {
	switch {
	case strings.Contains(baseURL, "openai.com"):
		return "openai"
	case strings.Contains(baseURL, "nvidia.com"):
		return "nvidia"
	case strings.Contains(baseURL, "anthropic.com"):
		return "anthropic"
	case strings.Contains(baseURL, "together.xyz"), strings.Contains(baseURL, "together.ai"):
		return "together"
	}
	// For localhost or unknown providers, use the full base URL as provider name
	return baseURL
}
