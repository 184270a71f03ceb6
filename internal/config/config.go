package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the assistant backend
type Config struct {
	// Server configuration
	Port int `envconfig:"PORT" default:"0"` // 0 = pick an ephemeral port and print it

	// Audio capture / segmentation configuration
	SampleRate           int           `envconfig:"SAMPLE_RATE" default:"16000"`            // Whisper expects 16kHz mono
	BlockDuration        time.Duration `envconfig:"BLOCK_DURATION" default:"500ms"`         // Duration of one capture block
	SilenceRMSThreshold  float64       `envconfig:"SILENCE_RMS_THRESHOLD" default:"0.01"`   // RMS at or below this = silence
	SilenceTimeout       time.Duration `envconfig:"SILENCE_TIMEOUT" default:"1500ms"`       // Trailing silence before an utterance is committed
	MinUtteranceDuration time.Duration `envconfig:"MIN_UTTERANCE_DURATION" default:"500ms"` // Shorter utterances are discarded as clicks/breaths

	// Wake word configuration
	WakeWord string `envconfig:"WAKE_WORD" default:"obs"` // Spoken prefix that gates voice commands

	// Speech-to-text configuration
	STTEngine        string `envconfig:"STT_ENGINE" default:"whisper"` // whisper (local) or deepgram (cloud)
	WhisperModelPath string `envconfig:"WHISPER_MODEL_PATH" default:""`
	WhisperLanguage  string `envconfig:"WHISPER_LANGUAGE" default:"en"`
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`

	// Command executor (Ollama via its OpenAI-compatible endpoint)
	OllamaBaseURL       string        `envconfig:"OLLAMA_BASE_URL" default:"http://localhost:11434/v1"`
	OllamaModel         string        `envconfig:"OLLAMA_MODEL" default:"qwen3:0.6b"`
	DispatchTimeout     time.Duration `envconfig:"DISPATCH_TIMEOUT" default:"30s"` // Upper bound on one command dispatch
	DispatchMaxAttempts int           `envconfig:"DISPATCH_MAX_ATTEMPTS" default:"3"`

	// OBS WebSocket configuration. Port and password arrive per session
	// over the obs_connect message; only the host and dial timeout are static.
	OBSHost        string        `envconfig:"OBS_HOST" default:"localhost"`
	OBSDialTimeout time.Duration `envconfig:"OBS_DIAL_TIMEOUT" default:"5s"`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`   // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"` // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// SilenceBlocks returns how many consecutive silent blocks constitute the
// silence timeout.
func (c *Config) SilenceBlocks() int {
	if c.BlockDuration <= 0 {
		return 1
	}
	n := int(c.SilenceTimeout / c.BlockDuration)
	if n < 1 {
		return 1
	}
	return n
}

// BlockSize returns the number of samples in one capture block.
func (c *Config) BlockSize() int {
	return int(float64(c.SampleRate) * c.BlockDuration.Seconds())
}

// Load reads configuration from environment variables.
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints that envconfig tags cannot express.
func (c *Config) Validate() error {
	switch c.STTEngine {
	case "whisper":
		if c.WhisperModelPath == "" {
			return fmt.Errorf("WHISPER_MODEL_PATH is required when STT_ENGINE=whisper")
		}
	case "deepgram":
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when STT_ENGINE=deepgram")
		}
	default:
		return fmt.Errorf("unknown STT_ENGINE %q (expected whisper or deepgram)", c.STTEngine)
	}

	if c.SampleRate <= 0 {
		return fmt.Errorf("SAMPLE_RATE must be positive, got %d", c.SampleRate)
	}
	if c.BlockDuration <= 0 {
		return fmt.Errorf("BLOCK_DURATION must be positive, got %s", c.BlockDuration)
	}
	if c.SilenceTimeout < c.BlockDuration {
		return fmt.Errorf("SILENCE_TIMEOUT (%s) must be at least one BLOCK_DURATION (%s)", c.SilenceTimeout, c.BlockDuration)
	}
	if c.DispatchMaxAttempts < 1 {
		return fmt.Errorf("DISPATCH_MAX_ATTEMPTS must be at least 1, got %d", c.DispatchMaxAttempts)
	}
	if c.WakeWord == "" {
		return fmt.Errorf("WAKE_WORD must not be empty")
	}

	return nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
