package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		BaseURL     string  `yaml:"base_url"`
		APIKey      string  `yaml:"-"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Embedding struct {
		Model string `yaml:"model"`
	} `yaml:"embedding"`

	Store struct {
		// Backend is "local" (directory-persisted index) or "pgvector".
		Backend   string `yaml:"backend"`
		Dir       string `yaml:"dir"`
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
		VectorDim int    `yaml:"vector_dim"`
		BatchSize int    `yaml:"batch_size"`
		SearchK   int    `yaml:"search_k"`
	} `yaml:"store"`

	Ingest struct {
		PDFDir       string `yaml:"pdf_dir"`
		ChunkSize    int    `yaml:"chunk_size"`
		ChunkOverlap int    `yaml:"chunk_overlap"`
	} `yaml:"ingest"`

	WebSearch struct {
		Enabled        bool    `yaml:"enabled"`
		MaxResults     int     `yaml:"max_results"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
		RateLimit      float64 `yaml:"rate_limit"`
	} `yaml:"websearch"`

	LiveKit struct {
		URL       string `yaml:"url"`
		APIKey    string `yaml:"-"`
		APISecret string `yaml:"-"`
		Room      string `yaml:"room"`
		AgentID   string `yaml:"agent_id"`
		Language  string `yaml:"language"`
	} `yaml:"livekit"`

	Voice struct {
		DeepgramAPIKey string `yaml:"-"`
		CartesiaAPIKey string `yaml:"-"`
		MaxAnswerChars int    `yaml:"max_answer_chars"`
	} `yaml:"voice"`

	Server struct {
		Port      string `yaml:"port"`
		Streaming bool   `yaml:"streaming"`
	} `yaml:"server"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"allion.yaml",
			"allion.yml",
			filepath.Join(os.Getenv("HOME"), ".config/allion/config.yaml"),
			"/etc/allion/config.yaml",
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
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
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
	if config.LLM.Model == "" {
		config.LLM.Model = "gpt-4o-mini"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.1
	}

	if config.Embedding.Model == "" {
		config.Embedding.Model = "text-embedding-3-small"
	}

	if config.Store.Backend == "" {
		config.Store.Backend = "local"
	}
	if config.Store.Dir == "" {
		config.Store.Dir = "vectorstore_multi_pdf"
	}
	if config.Store.TableName == "" {
		config.Store.TableName = "documents"
	}
	if config.Store.VectorDim == 0 {
		config.Store.VectorDim = 1536
	}
	if config.Store.BatchSize == 0 {
		config.Store.BatchSize = 100
	}
	if config.Store.SearchK == 0 {
		config.Store.SearchK = 3
	}

	if config.Ingest.PDFDir == "" {
		config.Ingest.PDFDir = "docs/pdf_source"
	}
	if config.Ingest.ChunkSize == 0 {
		config.Ingest.ChunkSize = 1000
	}
	if config.Ingest.ChunkOverlap == 0 {
		config.Ingest.ChunkOverlap = 200
	}

	if config.WebSearch.MaxResults == 0 {
		config.WebSearch.MaxResults = 5
	}
	if config.WebSearch.TimeoutSeconds == 0 {
		config.WebSearch.TimeoutSeconds = 10
	}
	if config.WebSearch.RateLimit == 0 {
		config.WebSearch.RateLimit = 2.0
	}

	if config.LiveKit.Room == "" {
		config.LiveKit.Room = "allion"
	}
	if config.LiveKit.AgentID == "" {
		config.LiveKit.AgentID = "allion-agent"
	}
	if config.LiveKit.Language == "" {
		config.LiveKit.Language = "en"
	}

	if config.Voice.MaxAnswerChars == 0 {
		config.Voice.MaxAnswerChars = 500
	}

	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}
}

func mergeWithEnv(config *Config) {
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		config.LLM.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		config.LLM.APIKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Store.URL = v
	}
	if v := os.Getenv("VECTORSTORE_DIR"); v != "" {
		config.Store.Dir = v
	}
	if v := os.Getenv("LIVEKIT_URL"); v != "" {
		config.LiveKit.URL = v
	}
	if v := os.Getenv("LIVEKIT_API_KEY"); v != "" {
		config.LiveKit.APIKey = v
	}
	if v := os.Getenv("LIVEKIT_API_SECRET"); v != "" {
		config.LiveKit.APISecret = v
	}
	if v := os.Getenv("LIVEKIT_ROOM"); v != "" {
		config.LiveKit.Room = v
	}
	if v := os.Getenv("AGENT_ID"); v != "" {
		config.LiveKit.AgentID = v
	}
	if v := os.Getenv("AGENT_LANG"); v != "" {
		config.LiveKit.Language = v
	}
	if v := os.Getenv("DEEPGRAM_API_KEY"); v != "" {
		config.Voice.DeepgramAPIKey = v
	}
	if v := os.Getenv("CARTESIA_API_KEY"); v != "" {
		config.Voice.CartesiaAPIKey = v
	}
	if v := os.Getenv("PORT"); v != "" {
		config.Server.Port = v
	}
	if v := os.Getenv("WEB_SEARCH_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.WebSearch.Enabled = b
		}
	}
}
