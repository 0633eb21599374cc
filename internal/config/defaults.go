package config

const (
	DefaultAddress        = ":8000"
	DefaultProjectName    = "Prompt Generator API"
	DefaultProjectVersion = "2.0.0"
	DefaultBaseURL        = "https://api.openai.com/v1"

	DefaultGenerationModel = "gpt-4o-mini"
	DefaultRubricModel     = "gpt-3.5-turbo"
)

// Default returns a configuration with every default applied.
// It is what `copyforge` runs with when no config file is given.
func Default() *Config {
	cfg := &Config{
		Models: map[string]ModelConfig{
			ModelGeneration: {ModelName: DefaultGenerationModel},
			ModelRubric:     {ModelName: DefaultRubricModel, Temperature: 0.1, UseJSONMode: true},
		},
	}
	applyDefaults(cfg)
	return cfg
}
