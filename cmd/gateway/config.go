package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// config is populated from environment variables first. When GATEWAY_CONFIG
// names a YAML file, keys present in that file override the env values; keys
// absent from the file keep them. Fields are exported for the YAML overlay.
type config struct {
	Port              string `yaml:"port"`
	SharedSecret      string `yaml:"shared_secret"`
	MaxConcurrent     int    `yaml:"max_concurrent"`
	SynthesisGraceSec int    `yaml:"synthesis_grace_sec"`

	OllamaURL    string `yaml:"ollama_url"`
	OllamaModel  string `yaml:"ollama_model"`
	SystemPrompt string `yaml:"system_prompt"`
	MaxTokens    int    `yaml:"max_tokens"`
	LLMPoolSize  int    `yaml:"llm_pool_size"`

	AgentBaseURL string `yaml:"agent_base_url"`
	AgentAPIKey  string `yaml:"agent_api_key"`
	AgentModel   string `yaml:"agent_model"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicURL    string `yaml:"anthropic_url"`
	AnthropicModel  string `yaml:"anthropic_model"`

	WhisperURL  string `yaml:"whisper_url"`
	ROCmURL     string `yaml:"rocm_url"`
	ASRDefault  string `yaml:"asr_default"`
	ASRPoolSize int    `yaml:"asr_pool_size"`

	PiperURL          string  `yaml:"piper_url"`
	PiperVoice        string  `yaml:"piper_voice"`
	TTSPoolSize       int     `yaml:"tts_pool_size"`
	OpenAISpeechURL   string  `yaml:"openai_speech_url"`
	OpenAISpeechModel string  `yaml:"openai_speech_model"`
	OpenAISpeechVoice string  `yaml:"openai_speech_voice"`
	OpenAISpeechSpeed float64 `yaml:"openai_speech_speed"`
	PollyRegion       string  `yaml:"polly_region"`
	PollyVoice        string  `yaml:"polly_voice"`
	PollyEngine       string  `yaml:"polly_engine"`
	ElevenLabsAPIKey  string  `yaml:"elevenlabs_api_key"`
	ElevenLabsVoiceID string  `yaml:"elevenlabs_voice_id"`
	ElevenLabsModelID string  `yaml:"elevenlabs_model_id"`

	QdrantURL      string  `yaml:"qdrant_url"`
	QdrantPoolSize int     `yaml:"qdrant_pool_size"`
	EmbeddingModel string  `yaml:"embedding_model"`
	VectorSize     int     `yaml:"vector_size"`
	RetrievalTopK  int     `yaml:"retrieval_top_k"`
	ScoreThreshold float64 `yaml:"score_threshold"`

	DatabaseURL   string `yaml:"database_url"`
	RetentionDays int    `yaml:"retention_days"`

	TelemetryQueue        int `yaml:"telemetry_queue"`
	TelemetryWindow       int `yaml:"telemetry_window"`
	TelemetryRetentionMin int `yaml:"telemetry_retention_min"`
}

func loadConfig() (config, error) {
	cfg := config{
		Port:              envStr("GATEWAY_PORT", "8000"),
		SharedSecret:      envStr("GATEWAY_SHARED_SECRET", ""),
		MaxConcurrent:     envInt("MAX_CONCURRENT_SESSIONS", 100),
		SynthesisGraceSec: envInt("SYNTHESIS_GRACE_SEC", 5),

		OllamaURL:    envStr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:  envStr("OLLAMA_MODEL", "mistral:7b"),
		SystemPrompt: envStr("SYSTEM_PROMPT", ""),
		MaxTokens:    envInt("MAX_TOKENS", 300),
		LLMPoolSize:  envInt("LLM_POOL_SIZE", 50),

		AgentBaseURL: envStr("AGENT_BASE_URL", ""),
		AgentAPIKey:  envStr("AGENT_API_KEY", ""),
		AgentModel:   envStr("AGENT_MODEL", "gpt-4o-mini"),

		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicURL:    envStr("ANTHROPIC_URL", "https://api.anthropic.com"),
		AnthropicModel:  envStr("ANTHROPIC_MODEL", "claude-3-5-haiku-20241022"),

		WhisperURL:  envStr("WHISPER_URL", "http://localhost:9000"),
		ROCmURL:     envStr("ROCM_WHISPER_URL", ""),
		ASRDefault:  envStr("ASR_DEFAULT", "whisper"),
		ASRPoolSize: envInt("ASR_POOL_SIZE", 50),

		PiperURL:          envStr("PIPER_URL", "http://localhost:5100"),
		PiperVoice:        envStr("PIPER_VOICE", "fr_FR-siwis-medium"),
		TTSPoolSize:       envInt("TTS_POOL_SIZE", 50),
		OpenAISpeechURL:   envStr("OPENAI_SPEECH_URL", ""),
		OpenAISpeechModel: envStr("OPENAI_SPEECH_MODEL", "tts-1"),
		OpenAISpeechVoice: envStr("OPENAI_SPEECH_VOICE", "alloy"),
		OpenAISpeechSpeed: envFloat("OPENAI_SPEECH_SPEED", 1.0),
		PollyRegion:       envStr("POLLY_REGION", ""),
		PollyVoice:        envStr("POLLY_VOICE", "Lea"),
		PollyEngine:       envStr("POLLY_ENGINE", "neural"),
		ElevenLabsAPIKey:  envStr("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID: envStr("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		ElevenLabsModelID: envStr("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),

		QdrantURL:      envStr("QDRANT_URL", ""),
		QdrantPoolSize: envInt("QDRANT_POOL_SIZE", 10),
		EmbeddingModel: envStr("EMBEDDING_MODEL", "nomic-embed-text"),
		VectorSize:     envInt("VECTOR_SIZE", 768),
		RetrievalTopK:  envInt("RETRIEVAL_TOP_K", 3),
		ScoreThreshold: envFloat("RETRIEVAL_SCORE_THRESHOLD", 0.7),

		DatabaseURL:   envStr("DATABASE_URL", ""),
		RetentionDays: envInt("JOURNAL_RETENTION_DAYS", 0),

		TelemetryQueue:        envInt("TELEMETRY_QUEUE_CAPACITY", 0),
		TelemetryWindow:       envInt("TELEMETRY_WINDOW_SIZE", 0),
		TelemetryRetentionMin: envInt("TELEMETRY_RETENTION_MIN", 0),
	}

	if path := os.Getenv("GATEWAY_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return config{}, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the gateway cannot run with.
func (c config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.SharedSecret == "" {
		return fmt.Errorf("shared_secret (GATEWAY_SHARED_SECRET) must be set")
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", c.MaxConcurrent)
	}
	if c.SynthesisGraceSec < 0 {
		return fmt.Errorf("synthesis_grace_sec cannot be negative, got %d", c.SynthesisGraceSec)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be at least 1, got %d", c.MaxTokens)
	}
	if c.VectorSize < 1 {
		return fmt.Errorf("vector_size must be at least 1, got %d", c.VectorSize)
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return fmt.Errorf("score_threshold must be between 0 and 1, got %g", c.ScoreThreshold)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("retention_days cannot be negative, got %d", c.RetentionDays)
	}
	return nil
}

func envStr(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return f
}
