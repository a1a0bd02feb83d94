package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all server configuration.
type Config struct {
	Port           int
	RedisURL       string
	RedisPassword  string
	MaxSessions    int
	SessionTimeout time.Duration
	AllowedOrigins []string

	// Upstream streaming endpoint.
	GeminiAPIKey     string
	GeminiModel      string
	GeminiVoice      string
	HandshakeTimeout time.Duration
	MaxFrameSize     int64 // websocket read limit in bytes

	// Request/response collaborators.
	ChatModel string
	TTSModel  string
	TTSVoice  string
	AudioDir  string // where synthesized clips are written and served from
}

// LoadConfig loads configuration from environment variables with defaults.
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := &Config{
		Port:             8080,
		RedisURL:         "localhost:6379",
		RedisPassword:    "",
		MaxSessions:      100,
		SessionTimeout:   30 * time.Minute,
		AllowedOrigins:   []string{"*"},
		GeminiModel:      "models/gemini-2.0-flash-exp",
		GeminiVoice:      "Aoede",
		HandshakeTimeout: 15 * time.Second,
		MaxFrameSize:     512 * 1024,
		ChatModel:        "gemini-2.0-flash-exp",
		TTSModel:         "gemini-2.5-flash-preview-tts",
		TTSVoice:         "Aoede",
		AudioDir:         "data/audio",
	}

	// Required: GEMINI_API_KEY
	config.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if config.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	// Optional: PORT
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		config.Port = p
	}

	// Optional: REDIS_URL
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.RedisURL = redisURL
	}

	// Optional: REDIS_PASSWORD
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		config.RedisPassword = redisPassword
	}

	// Optional: MAX_SESSIONS
	if maxSessions := os.Getenv("MAX_SESSIONS"); maxSessions != "" {
		m, err := strconv.Atoi(maxSessions)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_SESSIONS: %w", err)
		}
		config.MaxSessions = m
	}

	// Optional: SESSION_TIMEOUT (in minutes)
	if timeout := os.Getenv("SESSION_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_TIMEOUT: %w", err)
		}
		config.SessionTimeout = time.Duration(t) * time.Minute
	}

	// Optional: ALLOWED_ORIGINS (comma-separated)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = strings.Split(origins, ",")
	}

	// Optional: GEMINI_MODEL
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		config.GeminiModel = model
	}

	// Optional: GEMINI_VOICE
	if voice := os.Getenv("GEMINI_VOICE"); voice != "" {
		config.GeminiVoice = voice
	}

	// Optional: HANDSHAKE_TIMEOUT (in seconds)
	if timeout := os.Getenv("HANDSHAKE_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid HANDSHAKE_TIMEOUT: %w", err)
		}
		config.HandshakeTimeout = time.Duration(t) * time.Second
	}

	// Optional: MAX_FRAME_SIZE (in bytes)
	if frameSize := os.Getenv("MAX_FRAME_SIZE"); frameSize != "" {
		f, err := strconv.ParseInt(frameSize, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_FRAME_SIZE: %w", err)
		}
		config.MaxFrameSize = f
	}

	// Optional: CHAT_MODEL
	if model := os.Getenv("CHAT_MODEL"); model != "" {
		config.ChatModel = model
	}

	// Optional: TTS_MODEL
	if model := os.Getenv("TTS_MODEL"); model != "" {
		config.TTSModel = model
	}

	// Optional: TTS_VOICE
	if voice := os.Getenv("TTS_VOICE"); voice != "" {
		config.TTSVoice = voice
	}

	// Optional: AUDIO_DIR
	if dir := os.Getenv("AUDIO_DIR"); dir != "" {
		config.AudioDir = dir
	}

	return config, nil
}
