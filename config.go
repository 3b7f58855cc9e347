package medicalkg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jafffy/medical-kg/llm"
)

// Config holds all configuration for the knowledge graph pipeline.
type Config struct {
	// LLM configures the OpenRouter client used for entity, SOAP, and
	// relationship extraction. An empty API key disables LLM extraction
	// and the rule-based pipeline runs alone.
	LLM llm.Config `json:"llm" yaml:"llm"`

	// UseLLM enables LLM-backed extraction when credentials are present.
	UseLLM bool `json:"use_llm" yaml:"use_llm"`

	// DataDir is the root of a MIMIC-style dataset (hosp/, icu/ gzipped
	// CSV tables).
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// CheckpointPath is the SQLite file used for run checkpoints. Empty
	// disables checkpointing.
	CheckpointPath string `json:"checkpoint_path" yaml:"checkpoint_path"`

	// CheckpointEvery saves a checkpoint after this many patients.
	CheckpointEvery int `json:"checkpoint_every" yaml:"checkpoint_every"`

	// MaxPatients caps the number of patients processed in one run;
	// zero means all.
	MaxPatients int `json:"max_patients" yaml:"max_patients"`

	// MaxRetries bounds per-patient retries before the patient is
	// skipped.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// DefaultConfig returns a Config with sensible defaults. The OpenRouter
// key is read from the OPENROUTER_API_KEY environment variable.
func DefaultConfig() Config {
	return Config{
		LLM: llm.Config{
			APIKey: os.Getenv("OPENROUTER_API_KEY"),
		},
		UseLLM:          true,
		CheckpointEvery: 10,
		MaxRetries:      3,
	}
}

// LoadConfig reads a YAML config file over the defaults. Environment
// credentials still apply when the file omits them.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.CheckpointEvery < 0 {
		return fmt.Errorf("%w: checkpoint_every must be non-negative", ErrInvalidConfig)
	}
	if c.MaxPatients < 0 {
		return fmt.Errorf("%w: max_patients must be non-negative", ErrInvalidConfig)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be non-negative", ErrInvalidConfig)
	}
	return nil
}
