package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Pipeline    PipelineConfig  `toml:"pipeline"`
	Jobs        JobsConfig      `toml:"jobs"`
	LLM         LLMConfig       `toml:"llm"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Janitor     JanitorConfig   `toml:"janitor"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger     BadgerConfig     `toml:"badger"`
	Filesystem FilesystemConfig `toml:"filesystem"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// FilesystemConfig holds directories for transient media artifacts
type FilesystemConfig struct {
	TempDir   string `toml:"temp_dir"`   // Audio and intermediate artifacts produced while a job runs
	UploadDir string `toml:"upload_dir"` // Uploaded source files awaiting acquisition
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// PipelineConfig configures the external media tools used by the stage functions
type PipelineConfig struct {
	YtDlpPath         string   `toml:"ytdlp_path"`
	FFmpegPath        string   `toml:"ffmpeg_path"`
	FFprobePath       string   `toml:"ffprobe_path"`
	WhisperPath       string   `toml:"whisper_path"`
	WhisperModel      string   `toml:"whisper_model"`      // Path to the ggml model file
	Language          string   `toml:"language"`           // Transcription language code (default: "en")
	Threads           int      `toml:"threads"`            // Whisper CPU threads
	AllowedExtensions []string `toml:"allowed_extensions"` // Accepted local upload extensions (without dot)
	MaxUploadMB       int64    `toml:"max_upload_mb"`
	ChunkSize         int      `toml:"chunk_size"`      // Transcript characters per note generation request
	CommandTimeout    string   `toml:"command_timeout"` // Upper bound for any single external command, e.g. "2h"
	MetadataTimeout   string   `toml:"metadata_timeout"`
}

// JobsConfig controls job supervision
type JobsConfig struct {
	ReconcileOnStartup bool   `toml:"reconcile_on_startup"` // Mark non-terminal records failed at boot (default: false)
	ShutdownTimeout    string `toml:"shutdown_timeout"`     // Time to wait for active workers on shutdown
	ListLimit          int    `toml:"list_limit"`           // Default page size for job listings
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains configuration shared by all AI providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // "gemini" or "claude"
	RateLimit       string      `toml:"rate_limit"`       // Minimum interval between note generation requests
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
}

// WebSocketConfig contains configuration for the progress stream
type WebSocketConfig struct {
	// Minimum interval between progress messages for the same job. Stage changes are never throttled.
	ProgressThrottle string `toml:"progress_throttle"`
}

// JanitorConfig controls the temp artifact sweep
type JanitorConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Cron schedule (5 fields)
	MaxAge   string `toml:"max_age"`  // Artifacts older than this are removed
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/db",
			},
			Filesystem: FilesystemConfig{
				TempDir:   "./data/temp",
				UploadDir: "./data/uploads",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Pipeline: PipelineConfig{
			YtDlpPath:         "yt-dlp",
			FFmpegPath:        "ffmpeg",
			FFprobePath:       "ffprobe",
			WhisperPath:       "whisper-cli",
			WhisperModel:      "./models/ggml-base.en.bin",
			Language:          "en",
			Threads:           4,
			AllowedExtensions: []string{"mp4", "avi", "mov", "mkv", "webm", "flv", "wmv", "mp3", "wav", "m4a"},
			MaxUploadMB:       500,
			ChunkSize:         5000,
			CommandTimeout:    "2h",
			MetadataTimeout:   "30s",
		},
		Jobs: JobsConfig{
			ReconcileOnStartup: false,
			ShutdownTimeout:    "30s",
			ListLimit:          50,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
			RateLimit:       "1s",
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			Temperature: 0.3,
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-4-5",
			MaxTokens:   8192,
			Temperature: 0.3,
		},
		WebSocket: WebSocketConfig{
			ProgressThrottle: "500ms",
		},
		Janitor: JanitorConfig{
			Enabled:  true,
			Schedule: "*/30 * * * *",
			MaxAge:   "24h",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files in order.
// Priority: defaults -> file1 -> file2 -> ... -> env. CLI flags are applied by the caller.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Later files override values set by earlier ones
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies VOICENOTE_* environment variables to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VOICENOTE_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("VOICENOTE_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("VOICENOTE_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("VOICENOTE_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if tempDir := os.Getenv("VOICENOTE_TEMP_DIR"); tempDir != "" {
		config.Storage.Filesystem.TempDir = tempDir
	}
	if uploadDir := os.Getenv("VOICENOTE_UPLOAD_DIR"); uploadDir != "" {
		config.Storage.Filesystem.UploadDir = uploadDir
	}

	// Logging configuration
	if level := os.Getenv("VOICENOTE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("VOICENOTE_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Pipeline configuration
	if path := os.Getenv("VOICENOTE_YTDLP_PATH"); path != "" {
		config.Pipeline.YtDlpPath = path
	}
	if path := os.Getenv("VOICENOTE_FFMPEG_PATH"); path != "" {
		config.Pipeline.FFmpegPath = path
	}
	if path := os.Getenv("VOICENOTE_FFPROBE_PATH"); path != "" {
		config.Pipeline.FFprobePath = path
	}
	if path := os.Getenv("VOICENOTE_WHISPER_PATH"); path != "" {
		config.Pipeline.WhisperPath = path
	}
	if model := os.Getenv("VOICENOTE_WHISPER_MODEL"); model != "" {
		config.Pipeline.WhisperModel = model
	}
	if lang := os.Getenv("VOICENOTE_LANGUAGE"); lang != "" {
		config.Pipeline.Language = lang
	}
	if threads := os.Getenv("VOICENOTE_WHISPER_THREADS"); threads != "" {
		if t, err := strconv.Atoi(threads); err == nil {
			config.Pipeline.Threads = t
		}
	}
	if maxUpload := os.Getenv("VOICENOTE_MAX_UPLOAD_MB"); maxUpload != "" {
		if m, err := strconv.ParseInt(maxUpload, 10, 64); err == nil {
			config.Pipeline.MaxUploadMB = m
		}
	}
	if chunkSize := os.Getenv("VOICENOTE_CHUNK_SIZE"); chunkSize != "" {
		if c, err := strconv.Atoi(chunkSize); err == nil {
			config.Pipeline.ChunkSize = c
		}
	}

	// Jobs configuration
	if reconcile := os.Getenv("VOICENOTE_RECONCILE_ON_STARTUP"); reconcile != "" {
		if r, err := strconv.ParseBool(reconcile); err == nil {
			config.Jobs.ReconcileOnStartup = r
		}
	}
	if timeout := os.Getenv("VOICENOTE_SHUTDOWN_TIMEOUT"); timeout != "" {
		config.Jobs.ShutdownTimeout = timeout
	}

	// LLM configuration
	if provider := os.Getenv("VOICENOTE_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(strings.ToLower(provider))
	}
	if apiKey := os.Getenv("VOICENOTE_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("GOOGLE_API_KEY"); apiKey != "" && config.Gemini.APIKey == "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("VOICENOTE_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if apiKey := os.Getenv("VOICENOTE_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	} else if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" && config.Claude.APIKey == "" {
		config.Claude.APIKey = apiKey
	}
	if model := os.Getenv("VOICENOTE_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}

	// Janitor configuration
	if enabled := os.Getenv("VOICENOTE_JANITOR_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Janitor.Enabled = e
		}
	}
	if schedule := os.Getenv("VOICENOTE_JANITOR_SCHEDULE"); schedule != "" {
		config.Janitor.Schedule = schedule
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks values that would otherwise fail later at runtime
func (c *Config) Validate() error {
	switch c.LLM.DefaultProvider {
	case LLMProviderGemini, LLMProviderClaude:
	default:
		return fmt.Errorf("invalid llm.default_provider %q (expected gemini or claude)", c.LLM.DefaultProvider)
	}

	if c.Pipeline.ChunkSize <= 0 {
		return fmt.Errorf("pipeline.chunk_size must be positive, got %d", c.Pipeline.ChunkSize)
	}

	if len(c.Pipeline.AllowedExtensions) == 0 {
		return fmt.Errorf("pipeline.allowed_extensions must not be empty")
	}

	for name, value := range map[string]string{
		"pipeline.command_timeout":    c.Pipeline.CommandTimeout,
		"pipeline.metadata_timeout":   c.Pipeline.MetadataTimeout,
		"jobs.shutdown_timeout":       c.Jobs.ShutdownTimeout,
		"llm.rate_limit":              c.LLM.RateLimit,
		"websocket.progress_throttle": c.WebSocket.ProgressThrottle,
		"janitor.max_age":             c.Janitor.MaxAge,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
	}

	if c.Janitor.Enabled {
		if err := ValidateSchedule(c.Janitor.Schedule); err != nil {
			return fmt.Errorf("invalid janitor.schedule: %w", err)
		}
	}

	return nil
}

// ValidateSchedule validates a standard 5-field cron expression
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// ParseDuration parses a duration string, falling back when empty or invalid
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// MaxUploadBytes returns the upload limit in bytes
func (c *Config) MaxUploadBytes() int64 {
	return c.Pipeline.MaxUploadMB * 1024 * 1024
}

// DeepCloneConfig creates a deep copy of the Config struct
func DeepCloneConfig(c *Config) *Config {
	if c == nil {
		return nil
	}

	clone := *c

	if len(c.Logging.Output) > 0 {
		clone.Logging.Output = make([]string, len(c.Logging.Output))
		copy(clone.Logging.Output, c.Logging.Output)
	}

	if len(c.Pipeline.AllowedExtensions) > 0 {
		clone.Pipeline.AllowedExtensions = make([]string, len(c.Pipeline.AllowedExtensions))
		copy(clone.Pipeline.AllowedExtensions, c.Pipeline.AllowedExtensions)
	}

	return &clone
}
