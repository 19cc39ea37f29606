package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Milvus   MilvusConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	LLM      LLMConfig
	RAG      RAGConfig
	Chunking ChunkingConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type MilvusConfig struct {
	Endpoint       string
	CollectionName string
	VectorDim      int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Enabled  bool
}

type LLMConfig struct {
	APIKey         string
	Model          string
	Temperature    float32
	MaxTokens      int
	EmbeddingModel string
	EmbeddingDim   int
	BatchSize      int
	PoolSize       int
}

// RAGConfig controls the query engine: retrieval limits, the certainty
// threshold, and the phrase heuristics feeding the confidence score.
type RAGConfig struct {
	DefaultLimit        int
	DefaultThreshold    float64
	NoContextConfidence float64
	UncertaintyMarkers  []string
	CitationMarkers     []string
	IngestTimeoutSec    int
	QueryTimeoutSec     int
}

type ChunkingConfig struct {
	ChunkSize    int
	Overlap      int
	MinCoherence float64
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/knowledgehub")

	viper.SetEnvPrefix("KNOWLEDGEHUB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "knowledge_chunks")
	viper.SetDefault("milvus.vectorDim", 1536)

	viper.SetDefault("sqlite.path", "./data/knowledgehub.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.enabled", false)

	viper.SetDefault("llm.model", "gpt-4")
	viper.SetDefault("llm.temperature", 0.1)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("llm.embeddingDim", 1536)
	viper.SetDefault("llm.batchSize", 100)
	viper.SetDefault("llm.poolSize", 4)

	viper.SetDefault("rag.defaultLimit", 5)
	viper.SetDefault("rag.defaultThreshold", 0.7)
	viper.SetDefault("rag.noContextConfidence", 0.1)
	viper.SetDefault("rag.uncertaintyMarkers", []string{
		"i don't know",
		"i do not know",
		"unclear",
		"insufficient information",
		"cannot determine",
		"not enough context",
	})
	viper.SetDefault("rag.citationMarkers", []string{"document "})
	viper.SetDefault("rag.ingestTimeoutSec", 30)
	viper.SetDefault("rag.queryTimeoutSec", 60)

	viper.SetDefault("chunking.chunkSize", 1000)
	viper.SetDefault("chunking.overlap", 100)
	viper.SetDefault("chunking.minCoherence", 0.5)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
