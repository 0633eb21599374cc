package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Load reads and parses the configuration file and environment variables.
// An empty path skips the file and starts from Default().
func Load(configPath string) (*Config, *Secrets, error) {
	var cfg *Config
	if configPath == "" {
		cfg = Default()
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}

		parsed, err := Parse(data)
		if err != nil {
			return nil, nil, err
		}
		cfg = parsed
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.ValidateInputs(); err != nil {
		return nil, nil, fmt.Errorf("input validation failed: %w", err)
	}

	secrets, err := LoadSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	return cfg, secrets, nil
}

// Parse decodes TOML and applies defaults without validating
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = DefaultAddress
	}
	if cfg.Server.ProjectName == "" {
		cfg.Server.ProjectName = DefaultProjectName
	}
	if cfg.Server.ProjectVersion == "" {
		cfg.Server.ProjectVersion = DefaultProjectVersion
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 30
	}

	if cfg.Batch.Concurrency == 0 {
		cfg.Batch.Concurrency = 4
	}
	if cfg.Batch.OutputDir == "" {
		cfg.Batch.OutputDir = "output"
	}

	if cfg.Models == nil {
		cfg.Models = make(map[string]ModelConfig)
	}
	if _, ok := cfg.Models[ModelGeneration]; !ok {
		cfg.Models[ModelGeneration] = ModelConfig{ModelName: DefaultGenerationModel}
	}
	if _, ok := cfg.Models[ModelRubric]; !ok {
		cfg.Models[ModelRubric] = ModelConfig{ModelName: DefaultRubricModel, Temperature: 0.1, UseJSONMode: true}
	}

	for name, model := range cfg.Models {
		if model.BaseURL == "" {
			model.BaseURL = DefaultBaseURL
		}
		if model.Temperature == 0 && name == ModelGeneration {
			model.Temperature = 0.7
		}
		if model.TopP == 0 {
			model.TopP = 1.0
		}
		if model.MaxOutputTokens == 0 {
			model.MaxOutputTokens = 1024
		}
		if model.RateLimitPerMinute == 0 {
			model.RateLimitPerMinute = 60
		}
		// TOML can't distinguish 0 from unset, -1 disables retries
		if model.MaxRetries == 0 {
			model.MaxRetries = 3
		}
		if model.HTTPTimeoutSeconds == 0 {
			model.HTTPTimeoutSeconds = 120
		}
		cfg.Models[name] = model
	}
}

// applyEnvOverrides lets the usual deployment variables win over the file
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PROJECT_NAME"); v != "" {
		cfg.Server.ProjectName = v
	}
	if v := os.Getenv("PROJECT_VERSION"); v != "" {
		cfg.Server.ProjectVersion = v
	}
	if v := os.Getenv("TEMPLATES_DIR"); v != "" {
		cfg.Library.TemplatesDir = v
	}

	override := func(role, env string) {
		v := os.Getenv(env)
		if v == "" {
			return
		}
		mc := cfg.Models[role]
		mc.ModelName = v
		cfg.Models[role] = mc
	}
	override(ModelGeneration, "GENERATION_MODEL")
	override(ModelRubric, "RUBRIC_CHECKER_MODEL")

	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		for name, mc := range cfg.Models {
			mc.BaseURL = v
			cfg.Models[name] = mc
		}
	}
}
