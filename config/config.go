package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config aggregates every ambient concern the core needs at startup. Each field
// is validated independently so a single bad value produces a precise error
// instead of a generic "config invalid".
type Config struct {
	Database      DatabaseConfig      `json:"database"`
	Embedding     EmbeddingConfig     `json:"embedding"`
	LLM           LLMConfig           `json:"llm"`
	Environment   EnvironmentConfig   `json:"environment"`
	Features      FeatureFlags        `json:"features"`
	Retrieval     RetrievalDefaults   `json:"retrieval"`
	Classifier    ClassifierConfig    `json:"classifier"`
	Consolidation ConsolidationConfig `json:"consolidation"`
	Redis         RedisConfig         `json:"redis"`
	Tools         ToolsConfig         `json:"tools"`
}

type DatabaseConfig struct {
	URL          string `json:"-"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
	MaxLifetime  int    `json:"max_lifetime_seconds"`
}

// EmbeddingConfig configures the C1 embedding service's primary provider and its
// FIFO cache.
type EmbeddingConfig struct {
	APIKey       string `json:"-"`
	Model        string `json:"model"`
	CacheMax     int    `json:"cache_max"`
	BatchTimeout int    `json:"batch_timeout_seconds"`
}

// LLMConfig configures the anthropic-sdk-go client used by the debate engine
// (C10) and the orchestrator's compose step.
type LLMConfig struct {
	APIKey string `json:"-"`
	Model  string `json:"model"`
}

type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentStaging     Environment = "staging"
	EnvironmentProduction  Environment = "production"
	EnvironmentTest        Environment = "testing"
)

type EnvironmentConfig struct {
	Name Environment `json:"name"`
}

// FeatureFlags gates optional pipeline steps process-wide. These flags alone
// decide which steps run; an Agent's stored FeaturesConfig
// (models.FeaturesConfig) is not consulted.
type FeatureFlags struct {
	Debate           bool `json:"debate"`
	MetaPlan         bool `json:"meta_plan"`
	Tools            bool `json:"tools"`
	AdaptiveStrategy bool `json:"adaptive_strategy"`
}

// RetrievalDefaults holds the process-wide retrieval top-k default. The HITL
// confidence gate lives in ClassifierConfig, and models.DefaultRetrievalConfig
// keeps its own built-in values.
type RetrievalDefaults struct {
	TopKDefault int `json:"top_k_default"`
}

type ClassifierConfig struct {
	HITLConfidenceThreshold float64 `json:"hitl_confidence_threshold"`
}

// ConsolidationConfig drives the three-phase policy in internal/consolidation
// (low-performance removal, duplicate merge, inactivity archive).
type ConsolidationConfig struct {
	MinUsage           int     `json:"min_usage"`
	QualityThreshold   float64 `json:"quality_threshold"`
	DupSimilarity      float64 `json:"dup_similarity"`
	InactiveDays       int     `json:"inactive_days"`
	HighUsageExclude   int     `json:"high_usage_exclude"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

// ToolsConfig configures the C11 tool executor's MCP transport and bounded
// concurrency.
type ToolsConfig struct {
	MCPServerURL      string `json:"mcp_server_url"`
	Timeout           int    `json:"timeout_seconds"`
	MaxConcurrent     int    `json:"max_concurrent"`
	MaxToolIterations int    `json:"max_tool_iterations"`
	Enabled           bool   `json:"enabled"`
}

// fileDefaults holds the subset of Config that's reasonable to check into a
// YAML file alongside a deployment (tunables, not secrets) — env vars still
// win when both are set, the same precedence vvoland-cagent's config loader
// gives a single YAML source but applied one layer earlier here.
type fileDefaults struct {
	Retrieval     RetrievalDefaults   `yaml:"retrieval"`
	Classifier    ClassifierConfig    `yaml:"classifier"`
	Consolidation ConsolidationConfig `yaml:"consolidation"`
	Features      FeatureFlags        `yaml:"features"`
	Tools         ToolsConfig         `yaml:"tools"`
}

func defaultFileDefaults() fileDefaults {
	return fileDefaults{
		Retrieval:     RetrievalDefaults{TopKDefault: 5},
		Classifier:    ClassifierConfig{HITLConfidenceThreshold: 0.7},
		Consolidation: ConsolidationConfig{QualityThreshold: 0.3, DupSimilarity: 0.95, InactiveDays: 90, HighUsageExclude: 500, MinUsage: 10},
		Tools:         ToolsConfig{Timeout: 10, MaxConcurrent: 4, MaxToolIterations: 10},
	}
}

// loadFileDefaults reads CONFIG_FILE (if set) as YAML and overlays it onto
// the built-in defaults. A missing CONFIG_FILE env var is not an error: the
// file is an optional tuning layer, env vars alone are a complete config.
func loadFileDefaults() (fileDefaults, error) {
	defaults := defaultFileDefaults()
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		return defaults, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return defaults, fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &defaults); err != nil {
		return defaults, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	return defaults, nil
}

func LoadConfig() (*Config, error) {
	fileCfg, err := loadFileDefaults()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL:          getEnv("DATABASE_URL", ""),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
		},
		Embedding: EmbeddingConfig{
			APIKey:       getEnv("EMBEDDING_API_KEY", ""),
			Model:        getEnv("EMBEDDING_MODEL", "voyage-3"),
			CacheMax:     getEnvAsInt("EMBED_CACHE_MAX", 1000),
			BatchTimeout: getEnvAsInt("EMBED_BATCH_TIMEOUT", 10),
		},
		LLM: LLMConfig{
			APIKey: getEnv("ANTHROPIC_API_KEY", ""),
			Model:  getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		},
		Environment: EnvironmentConfig{
			Name: Environment(getEnv("ENVIRONMENT", string(EnvironmentDevelopment))),
		},
		Features: FeatureFlags{
			Debate:           getEnvAsBool("FEATURE_DEBATE", fileCfg.Features.Debate),
			MetaPlan:         getEnvAsBool("FEATURE_META_PLAN", fileCfg.Features.MetaPlan),
			Tools:            getEnvAsBool("FEATURE_TOOLS", fileCfg.Features.Tools),
			AdaptiveStrategy: getEnvAsBool("FEATURE_ADAPTIVE_STRATEGY", fileCfg.Features.AdaptiveStrategy),
		},
		Retrieval: RetrievalDefaults{
			TopKDefault: getEnvAsInt("RETRIEVAL_TOP_K_DEFAULT", fileCfg.Retrieval.TopKDefault),
		},
		Classifier: ClassifierConfig{
			HITLConfidenceThreshold: getEnvAsFloat("HITL_CONFIDENCE_THRESHOLD", fileCfg.Classifier.HITLConfidenceThreshold),
		},
		Consolidation: ConsolidationConfig{
			MinUsage:         getEnvAsInt("CONSOLIDATION_MIN_USAGE", fileCfg.Consolidation.MinUsage),
			QualityThreshold: getEnvAsFloat("CONSOLIDATION_QUALITY_THRESHOLD", fileCfg.Consolidation.QualityThreshold),
			DupSimilarity:    getEnvAsFloat("CONSOLIDATION_DUP_SIMILARITY", fileCfg.Consolidation.DupSimilarity),
			InactiveDays:     getEnvAsInt("CONSOLIDATION_INACTIVE_DAYS", fileCfg.Consolidation.InactiveDays),
			HighUsageExclude: getEnvAsInt("CONSOLIDATION_HIGH_USAGE_EXCLUDE", fileCfg.Consolidation.HighUsageExclude),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Tools: ToolsConfig{
			MCPServerURL:      getEnv("MCP_SERVER_URL", ""),
			Timeout:           getEnvAsInt("TOOL_TIMEOUT", fileCfg.Tools.Timeout),
			MaxConcurrent:     getEnvAsInt("TOOL_MAX_CONCURRENT", fileCfg.Tools.MaxConcurrent),
			MaxToolIterations: getEnvAsInt("MCP_MAX_TOOL_ITERATIONS", fileCfg.Tools.MaxToolIterations),
			Enabled:           getEnvAsBool("FEATURE_TOOLS", fileCfg.Features.Tools),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) GetDatabaseDSN() string {
	return c.Database.URL
}

func validateConfig(c *Config) error {
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required (DATABASE_URL)")
	}

	if c.Embedding.APIKey == "" {
		if c.Environment.Name == EnvironmentProduction {
			return fmt.Errorf("embedding API key is required (EMBEDDING_API_KEY)")
		}
		log.Printf("warning: EMBEDDING_API_KEY not set, embedding falls back to the secondary/offline provider chain (%s)", c.Environment.Name)
	} else {
		if !strings.HasPrefix(c.Embedding.APIKey, "sk-") && !strings.HasPrefix(c.Embedding.APIKey, "sk-proj-") {
			return fmt.Errorf("embedding API key has an unrecognized format (EMBEDDING_API_KEY)")
		}
		if len(c.Embedding.APIKey) < 48 {
			return fmt.Errorf("embedding API key is too short (EMBEDDING_API_KEY)")
		}
	}

	switch c.Environment.Name {
	case EnvironmentDevelopment, EnvironmentStaging, EnvironmentProduction, EnvironmentTest:
	default:
		return fmt.Errorf("unrecognized ENVIRONMENT %q", c.Environment.Name)
	}

	if c.Classifier.HITLConfidenceThreshold < 0 || c.Classifier.HITLConfidenceThreshold > 1 {
		return fmt.Errorf("HITL_CONFIDENCE_THRESHOLD must be in [0,1]")
	}

	if c.Consolidation.DupSimilarity < 0 || c.Consolidation.DupSimilarity > 1 {
		return fmt.Errorf("CONSOLIDATION_DUP_SIMILARITY must be in [0,1]")
	}
	if c.Consolidation.QualityThreshold < 0 || c.Consolidation.QualityThreshold > 1 {
		return fmt.Errorf("CONSOLIDATION_QUALITY_THRESHOLD must be in [0,1]")
	}

	if c.Tools.Enabled && c.Tools.MCPServerURL == "" {
		return fmt.Errorf("MCP_SERVER_URL is required when FEATURE_TOOLS is enabled")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
