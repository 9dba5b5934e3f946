// Package config loads pipeline configuration from a YAML file with
// environment-variable indirection for secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parser configures the document parsing stage.
type Parser struct {
	APIKey       string `yaml:"api_key"`
	APIKeyEnv    string `yaml:"api_key_env"`
	Language     string `yaml:"language"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
}

// Extractor configures the statement extraction stage.
type Extractor struct {
	APIKey     string `yaml:"api_key"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Model      string `yaml:"openai_model"`
	SchemaPath string `yaml:"schema_path"`
}

// QAGenerator configures the question/answer generation stage.
type QAGenerator struct {
	APIKey      string  `yaml:"api_key"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"openai_model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	BatchSize   int     `yaml:"batch_size"`
}

// Export configures output artifact paths.
type Export struct {
	ContentPath string `yaml:"content_path"`
	QAJSONLPath string `yaml:"qa_jsonl_path"`
	QAFormat    string `yaml:"qa_format"`
	SummaryPath string `yaml:"summary_path"`
	CostFile    string `yaml:"cost_file"`
}

// Config is the full pipeline configuration.
type Config struct {
	Parser      Parser      `yaml:"parser"`
	Extractor   Extractor   `yaml:"extractor"`
	QAGenerator QAGenerator `yaml:"qa_generator"`
	Export      Export      `yaml:"export"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Parser: Parser{
			Language:     "en",
			APIKeyEnv:    "LLAMA_CLOUD_API_KEY",
			ChunkSize:    1500,
			ChunkOverlap: 200,
		},
		Extractor: Extractor{
			Model:     "gpt-3.5-turbo",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		QAGenerator: QAGenerator{
			Model:       "gpt-3.5-turbo",
			Temperature: 0.0,
			MaxTokens:   256,
			BatchSize:   5,
			APIKeyEnv:   "OPENAI_API_KEY",
		},
		Export: Export{
			ContentPath: filepath.FromSlash("./output/content.json"),
			QAJSONLPath: filepath.FromSlash("./output/qa.jsonl"),
			QAFormat:    "chat",
			SummaryPath: filepath.FromSlash("./output/summary.json"),
			CostFile:    "costs.json",
		},
	}
}

// Load reads a YAML config file, applies defaults for unset fields, and
// resolves *_env keys against the process environment.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("Load: path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("Load: read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("Load: invalid YAML: %w", err)
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// ResolveEnv fills api_key fields from the environment variables named by
// their *_env counterparts. Keys set directly in the file win; an unset
// environment variable leaves the key untouched.
func (c *Config) ResolveEnv() {
	resolve := func(key *string, envName string) {
		if *key != "" || envName == "" {
			return
		}
		if v := os.Getenv(envName); v != "" {
			*key = v
		}
	}
	resolve(&c.Parser.APIKey, c.Parser.APIKeyEnv)
	resolve(&c.Extractor.APIKey, c.Extractor.APIKeyEnv)
	resolve(&c.QAGenerator.APIKey, c.QAGenerator.APIKeyEnv)
}

// RebaseOutputs moves the export artifacts into dir, keeping filenames.
func (c *Config) RebaseOutputs(dir string) {
	rebase := func(p *string) {
		if *p == "" {
			return
		}
		*p = filepath.Join(dir, filepath.Base(*p))
	}
	rebase(&c.Export.ContentPath)
	rebase(&c.Export.QAJSONLPath)
	rebase(&c.Export.SummaryPath)
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Parser.ChunkSize <= 0 {
		return errors.New("parser.chunk_size must be > 0")
	}
	if c.Parser.ChunkOverlap < 0 {
		return errors.New("parser.chunk_overlap must be >= 0")
	}
	if c.QAGenerator.BatchSize <= 0 {
		return errors.New("qa_generator.batch_size must be > 0")
	}
	if c.QAGenerator.MaxTokens <= 0 {
		return errors.New("qa_generator.max_tokens must be > 0")
	}
	switch strings.ToLower(c.Export.QAFormat) {
	case "chat", "raw":
	default:
		return fmt.Errorf("export.qa_format must be chat or raw, got %q", c.Export.QAFormat)
	}
	return nil
}
