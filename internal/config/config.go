package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all bot configuration, read once at startup.
type Config struct {
	TelegramAPIBase  string
	TelegramFileBase string
	PollTimeout      int
	SleepSeconds     int

	GeminiAPIKey string

	EnableGemini     bool
	EnableDatabase   bool
	EnableHistory    bool
	EnableDailyLimit bool
	EnableImages     bool
	EnableAudio      bool
	EnableDocuments  bool

	HistoryWindow     int
	DailyChatLimit    int
	MaxImagesPerAlbum int
	MaxAudioBytes     int64
	MaxDocumentBytes  int64
	MaxMessageLength  int

	AlbumDebounce  time.Duration
	ChunkSendDelay time.Duration

	DefaultModelID  string
	AvailableModels map[string]string

	DefaultLanguage    string
	AvailableLanguages map[string]string

	GroupTriggerCommands []string

	DBPath string
}

// SupportedAudioMIMETypes is the set of audio formats the provider accepts,
// after audio/mpeg is normalized to audio/mp3.
var SupportedAudioMIMETypes = map[string]bool{
	"audio/wav":  true,
	"audio/mp3":  true,
	"audio/aiff": true,
	"audio/aac":  true,
	"audio/ogg":  true,
	"audio/flac": true,
}

// SupportedDocumentMIMETypes is the set of document formats the bot accepts.
var SupportedDocumentMIMETypes = map[string]bool{
	"application/pdf": true,
}

// Load reads bot configuration from environment variables. A .env file in
// the working directory seeds the environment when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return Config{}, fmt.Errorf("TELEGRAM_BOT_TOKEN is required in environment")
	}

	enableGemini := envBoolOrDefault("FEATURE_ENABLE_GEMINI", true)
	geminiKey := os.Getenv("GEMINI_API_KEY")
	if enableGemini && geminiKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY is required when FEATURE_ENABLE_GEMINI=true")
	}

	cfg := Config{
		TelegramAPIBase:  fmt.Sprintf("https://api.telegram.org/bot%s", token),
		TelegramFileBase: fmt.Sprintf("https://api.telegram.org/file/bot%s", token),
		PollTimeout:      envIntOrDefault("TG_TIMEOUT", 30),
		SleepSeconds:     envIntOrDefault("TG_SLEEP_SECONDS", 1),

		GeminiAPIKey: geminiKey,

		EnableGemini:     enableGemini,
		EnableDatabase:   envBoolOrDefault("FEATURE_ENABLE_DATABASE", true),
		EnableHistory:    envBoolOrDefault("FEATURE_ENABLE_CONVERSATION_HISTORY", true),
		EnableDailyLimit: envBoolOrDefault("FEATURE_ENABLE_DAILY_CHAT_LIMIT", true),
		EnableImages:     envBoolOrDefault("FEATURE_ENABLE_IMAGE_UNDERSTANDING", true),
		EnableAudio:      envBoolOrDefault("FEATURE_ENABLE_AUDIO_UNDERSTANDING", true),
		EnableDocuments:  envBoolOrDefault("FEATURE_ENABLE_DOCUMENT_UNDERSTANDING", true),

		HistoryWindow:     envIntOrDefault("GEMINI_CONVERSATION_HISTORY_MAX_MESSAGES", 10),
		DailyChatLimit:    envIntOrDefault("DAILY_CHAT_LIMIT_PER_USER", 20),
		MaxImagesPerAlbum: envIntOrDefault("MAX_IMAGES_PER_ALBUM", 5),
		MaxAudioBytes:     int64(envIntOrDefault("MAX_AUDIO_FILE_SIZE_MB", 20)) * 1024 * 1024,
		MaxDocumentBytes:  int64(envIntOrDefault("MAX_DOCUMENT_FILE_SIZE_MB", 20)) * 1024 * 1024,
		MaxMessageLength:  envIntOrDefault("TELEGRAM_MAX_MESSAGE_LENGTH", 4000),

		AlbumDebounce:  time.Duration(envIntOrDefault("ALBUM_DEBOUNCE_MS", 2500)) * time.Millisecond,
		ChunkSendDelay: time.Duration(envIntOrDefault("CHUNK_SEND_DELAY_MS", 500)) * time.Millisecond,

		DefaultModelID: envOrDefault("DEFAULT_GEMINI_MODEL_ID", "gemini-2.0-flash"),
		AvailableModels: map[string]string{
			"gemini-1.5-flash-8b":     "Gemini 1.5 Flash 8B",
			"gemini-1.5-flash-latest": "Gemini 1.5 Flash",
			"gemini-2.0-flash-lite":   "Gemini 2.0 Flash Lite",
			"gemini-2.0-flash":        "Gemini 2.0 Flash",
			"gemini-2.5-flash":        "Gemini 2.5 Flash",
		},

		DefaultLanguage: strings.ToLower(envOrDefault("DEFAULT_LANGUAGE", "id")),
		AvailableLanguages: map[string]string{
			"en": "English",
			"id": "Bahasa Indonesia",
			"ru": "Русский",
		},

		GroupTriggerCommands: splitList(envOrDefault("GROUP_TRIGGER_COMMANDS", "ai,chat,ask,tanya")),

		DBPath: envOrDefault("BOT_DB_PATH", "data/bot.db"),
	}

	if _, ok := cfg.AvailableModels[cfg.DefaultModelID]; !ok {
		return Config{}, fmt.Errorf("DEFAULT_GEMINI_MODEL_ID %q is not an available model", cfg.DefaultModelID)
	}
	if _, ok := cfg.AvailableLanguages[cfg.DefaultLanguage]; !ok {
		cfg.DefaultLanguage = "en"
	}
	if len(cfg.GroupTriggerCommands) == 0 {
		cfg.GroupTriggerCommands = []string{"ai", "chat", "ask", "tanya"}
	}

	return cfg, nil
}

// Languages returns the available language codes.
func (c *Config) Languages() []string {
	langs := make([]string, 0, len(c.AvailableLanguages))
	for code := range c.AvailableLanguages {
		langs = append(langs, code)
	}
	return langs
}

// IsGroupTrigger reports whether cmd (without the leading slash) is one of
// the configured group trigger commands.
func (c *Config) IsGroupTrigger(cmd string) bool {
	for _, trigger := range c.GroupTriggerCommands {
		if cmd == trigger {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolOrDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || strings.EqualFold(v, "true")
}
