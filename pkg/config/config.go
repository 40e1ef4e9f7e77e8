package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
		RateLimit   float64 `yaml:"rate_limit"`
		TimeoutSecs int     `yaml:"timeout_secs"`
	} `yaml:"llm"`

	Embedding struct {
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"embedding"`

	Store struct {
		Backend      string `yaml:"backend"` // "local" or "pgvector"
		SnapshotPath string `yaml:"snapshot_path"`
		URL          string `yaml:"url"`
		TableName    string `yaml:"table_name"`
		VectorDim    int    `yaml:"vector_dim"`
		BatchSize    int    `yaml:"batch_size"`
	} `yaml:"store"`

	Ingest struct {
		StagingDir   string `yaml:"staging_dir"`
		ChunkSize    int    `yaml:"chunk_size"`
		ChunkOverlap int    `yaml:"chunk_overlap"`
	} `yaml:"ingest"`

	Screening struct {
		TopK            int     `yaml:"top_k"`
		MinSimilarity   float64 `yaml:"min_similarity"`
		SelectThreshold float64 `yaml:"select_threshold"`
		SelectedDir     string  `yaml:"selected_dir"`
		MergeOrder      string  `yaml:"merge_order"` // "retrieval" or "position"
		Extract         bool    `yaml:"extract"`
		Workers         int     `yaml:"workers"`
	} `yaml:"screening"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/cvscreen/config.yaml"),
			"/etc/cvscreen/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.2
	}
	if config.LLM.RateLimit == 0 {
		config.LLM.RateLimit = 2.0
	}
	if config.LLM.TimeoutSecs == 0 {
		config.LLM.TimeoutSecs = 60
	}

	if config.Embedding.BaseURL == "" {
		config.Embedding.BaseURL = config.LLM.BaseURL
	}
	if config.Embedding.Model == "" {
		config.Embedding.Model = "nomic-embed-text:latest"
	}

	if config.Store.Backend == "" {
		config.Store.Backend = "local"
	}
	if config.Store.SnapshotPath == "" {
		config.Store.SnapshotPath = "data/index/cvs.idx"
	}
	if config.Store.TableName == "" {
		config.Store.TableName = "cv_chunks"
	}
	if config.Store.VectorDim == 0 {
		config.Store.VectorDim = 768
	}
	if config.Store.BatchSize == 0 {
		config.Store.BatchSize = 100
	}

	if config.Ingest.StagingDir == "" {
		config.Ingest.StagingDir = "data/raw"
	}
	if config.Ingest.ChunkSize == 0 {
		config.Ingest.ChunkSize = 200
	}
	if config.Ingest.ChunkOverlap == 0 {
		config.Ingest.ChunkOverlap = 20
	}

	if config.Screening.TopK == 0 {
		config.Screening.TopK = 10
	}
	if config.Screening.SelectedDir == "" {
		config.Screening.SelectedDir = "data/selected"
	}
	if config.Screening.MergeOrder == "" {
		config.Screening.MergeOrder = "retrieval"
	}
	if config.Screening.Workers == 0 {
		config.Screening.Workers = 4
	}

	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
		config.Embedding.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Store.URL = dbURL
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Port = port
	}
}
