package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig is the root configuration, read from YAML and overridden by
// environment variables.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Processing  ProcessingConfig  `yaml:"processing"`
	Queue       QueueConfig       `yaml:"queue"`
	StatusStore StatusStoreConfig `yaml:"status_store"`
	Staging     StagingConfig     `yaml:"staging"`
	OCR         OCRConfig         `yaml:"ocr"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	LLM         LLMConfig         `yaml:"llm"`
	Log         LogConfig         `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	AllowOrigins    []string      `yaml:"allow_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig locates the vector store root and governs retention.
type StorageConfig struct {
	RootDir         string        `yaml:"root_dir"`
	Retention       time.Duration `yaml:"retention"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type ProcessingConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	ConversionTimeout time.Duration `yaml:"conversion_timeout"`
	PageTimeout       time.Duration `yaml:"page_timeout"`
	ChunkSize         int           `yaml:"chunk_size"`
	ChunkOverlap      int           `yaml:"chunk_overlap"`
	MaxFileSize       int64         `yaml:"max_file_size"`
	SearchK           int           `yaml:"search_k"`
}

// QueueConfig selects how background ingestion is scheduled.
// Backend "memory" runs a bounded in-process pool, "asynq" uses Redis.
type QueueConfig struct {
	Backend   string `yaml:"backend"`
	Workers   int    `yaml:"workers"`
	Size      int    `yaml:"size"`
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
	QueueName string `yaml:"queue_name"`
}

// StatusStoreConfig selects the status persistence backend: file, redis or sqlite.
type StatusStoreConfig struct {
	Backend    string `yaml:"backend"`
	Filename   string `yaml:"filename"`
	RedisAddr  string `yaml:"redis_addr"`
	RedisDB    int    `yaml:"redis_db"`
	RedisKey   string `yaml:"redis_key"`
	SQLitePath string `yaml:"sqlite_path"`
}

// StagingConfig selects where accepted uploads wait for processing.
type StagingConfig struct {
	Backend  string      `yaml:"backend"`
	LocalDir string      `yaml:"local_dir"`
	S3       S3Config    `yaml:"s3"`
	Minio    MinioConfig `yaml:"minio"`
}

type OCRConfig struct {
	Engine       string         `yaml:"engine"`
	Languages    []string       `yaml:"languages"`
	DPI          int            `yaml:"dpi"`
	PdftoppmPath string         `yaml:"pdftoppm_path"`
	Concurrency  int            `yaml:"concurrency"`
	Preprocess   bool           `yaml:"preprocess"`
	Textract     TextractConfig `yaml:"textract"`
	Vision       VisionConfig   `yaml:"vision"`
}

// VisionConfig configures OCR through a multimodal model served by Ollama.
type VisionConfig struct {
	Model      string `yaml:"model"`
	OllamaHost string `yaml:"ollama_host"`
	MaxTokens  int    `yaml:"max_tokens"`
}

type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	OllamaHost string `yaml:"ollama_host"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"-"`
	Dimension  int    `yaml:"dimension"`
}

// LLMConfig configures the answer model. Credentials only come from the environment.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	OllamaHost  string  `yaml:"ollama_host"`
	Temperature float64 `yaml:"temperature"`
	APIKey      string  `yaml:"-"`
}

type LogConfig struct {
	Level       string   `yaml:"level"`
	Encoding    string   `yaml:"encoding"`
	OutputPaths []string `yaml:"output_paths"`
}

// Default returns the configuration used when no file is present.
func Default() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:            ":8000",
			AllowOrigins:    []string{"http://localhost:3000"},
			ShutdownTimeout: 5 * time.Second,
		},
		Storage: StorageConfig{
			RootDir:         "data/vector_stores",
			Retention:       24 * time.Hour,
			CleanupInterval: time.Hour,
		},
		Processing: ProcessingConfig{
			Timeout:           300 * time.Second,
			ConversionTimeout: 60 * time.Second,
			PageTimeout:       10 * time.Second,
			ChunkSize:         1000,
			ChunkOverlap:      200,
			MaxFileSize:       50 * 1024 * 1024,
			SearchK:           4,
		},
		Queue: QueueConfig{
			Backend:   "memory",
			Workers:   2,
			Size:      64,
			RedisAddr: "localhost:6379",
			QueueName: "ingest",
		},
		StatusStore: StatusStoreConfig{
			Backend:    "file",
			Filename:   "processing_status.json",
			RedisAddr:  "localhost:6379",
			RedisKey:   "pdfrag:status",
			SQLitePath: "data/status.db",
		},
		Staging: StagingConfig{
			Backend:  "local",
			LocalDir: "data/uploads",
		},
		OCR: OCRConfig{
			Engine:       "tesseract",
			Languages:    []string{"eng"},
			DPI:          300,
			PdftoppmPath: "pdftoppm",
			Concurrency:  2,
			Preprocess:   true,
			Textract:     TextractConfig{MinConfidence: 80},
			Vision: VisionConfig{
				Model:      "llava",
				OllamaHost: "http://localhost:11434",
				MaxTokens:  2048,
			},
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			Model:      "all-minilm",
			OllamaHost: "http://localhost:11434",
			Dimension:  384,
		},
		LLM: LLMConfig{
			Provider:   "groq",
			Model:      "llama3-8b-8192",
			BaseURL:    "https://api.groq.com/openai/v1",
			OllamaHost: "http://localhost:11434",
		},
		Log: LogConfig{
			Level:       "info",
			Encoding:    "json",
			OutputPaths: []string{"stdout", "logs/app.log"},
		},
	}
}

// Load reads the YAML file at path on top of the defaults. A missing file
// is not an error. A .env file in the working directory is loaded first so
// its values take part in the environment overrides.
func Load(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	applyS3Env(&cfg.Staging.S3)
	applyMinioEnv(&cfg.Staging.Minio)
	applyTextractEnv(&cfg.OCR.Textract)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *AppConfig) Validate() error {
	if c.Storage.RootDir == "" {
		return errors.New("storage.root_dir is required")
	}
	if c.Storage.Retention < 0 {
		return errors.New("storage.retention must not be negative")
	}
	if c.Processing.ChunkSize <= 0 {
		return errors.New("processing.chunk_size must be positive")
	}
	if c.Processing.ChunkOverlap < 0 || c.Processing.ChunkOverlap >= c.Processing.ChunkSize {
		return errors.New("processing.chunk_overlap must be in [0, chunk_size)")
	}
	if c.Queue.Workers <= 0 || c.Queue.Size <= 0 {
		return errors.New("queue.workers and queue.size must be positive")
	}
	switch c.Queue.Backend {
	case "memory", "asynq":
	default:
		return fmt.Errorf("unsupported queue backend: %s", c.Queue.Backend)
	}
	switch c.StatusStore.Backend {
	case "file", "redis", "sqlite":
	default:
		return fmt.Errorf("unsupported status store backend: %s", c.StatusStore.Backend)
	}
	return nil
}

func applyEnv(cfg *AppConfig) {
	setString(&cfg.Server.Addr, "PDFRAG_ADDR")
	setString(&cfg.Storage.RootDir, "PDFRAG_STORAGE_DIR")
	setDuration(&cfg.Storage.Retention, "PDFRAG_RETENTION")
	setString(&cfg.Queue.Backend, "PDFRAG_QUEUE_BACKEND")
	setString(&cfg.Queue.RedisAddr, "PDFRAG_REDIS_ADDR")
	setString(&cfg.StatusStore.Backend, "PDFRAG_STATUS_BACKEND")
	setString(&cfg.StatusStore.RedisAddr, "PDFRAG_REDIS_ADDR")
	setString(&cfg.Staging.Backend, "PDFRAG_STAGING_BACKEND")
	setString(&cfg.OCR.Engine, "PDFRAG_OCR_ENGINE")
	setString(&cfg.Embedding.Provider, "PDFRAG_EMBEDDING_PROVIDER")
	setString(&cfg.Embedding.Model, "PDFRAG_EMBEDDING_MODEL")
	setString(&cfg.Embedding.OllamaHost, "OLLAMA_HOST")
	setString(&cfg.OCR.Vision.OllamaHost, "OLLAMA_HOST")
	setString(&cfg.LLM.Provider, "PDFRAG_LLM_PROVIDER")
	setString(&cfg.LLM.Model, "PDFRAG_LLM_MODEL")
	setString(&cfg.Log.Level, "PDFRAG_LOG_LEVEL")

	switch cfg.LLM.Provider {
	case "groq":
		cfg.LLM.APIKey = os.Getenv("GROQ_API_KEY")
	case "openai":
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Embedding.Provider == "openai" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	// bare numbers are hours, matching the retention window's unit
	if h, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(h) * time.Hour
	}
}
