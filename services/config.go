package services

import (
	"log/slog"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	LLM          LLMConfig
	ASR          ASRConfig
	Storage      StorageConfig
	JWT          JWTConfig
	WebSocket    WebSocketConfig
	Conversation ConversationConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	URL          string
	LogLevel     string
	MaxIdleConns int
	MaxOpenConns int
	SeedDemoData bool
}

// LLMConfig selects and configures the text generation backend.
type LLMConfig struct {
	Backend        string // "gemini" or "lmstudio"
	GeminiAPIKey   string
	GeminiModel    string
	LMStudioURL    string
	LMStudioModel  string
	FuzzyThreshold float64 // fuzzy search similarity ratio in (0, 1]
}

// ASRConfig selects and configures the speech recognition backend.
type ASRConfig struct {
	Backend               string // "gemini" or "lecture_translator"
	GeminiModel           string
	LectureTranslatorURL  string
	LectureTranslatorAuth string
}

type StorageConfig struct {
	Dir string
}

type JWTConfig struct {
	Secret string
}

type WebSocketConfig struct {
	AllowedOrigins string
}

type ConversationConfig struct {
	HistoryLimit int
}

// GeminiASRModel returns the transcription model, falling back to the text
// generation model when no dedicated one is configured.
func (c *Config) GeminiASRModel() string {
	if c.ASR.GeminiModel != "" {
		return c.ASR.GeminiModel
	}
	return c.LLM.GeminiModel
}

// LoadConfig loads configuration from environment variables and config files
func LoadConfig() *Config {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("websocket.allowed_origins", "")
	viper.SetDefault("database.url", "")
	viper.SetDefault("database.log_level", "silent")
	viper.SetDefault("database.max_idle_conns", "10")
	viper.SetDefault("database.max_open_conns", "100")
	viper.SetDefault("database.seed_demo_data", "false")
	viper.SetDefault("llm.backend", "gemini")
	viper.SetDefault("gemini.api_key", "")
	viper.SetDefault("gemini.model", "")
	viper.SetDefault("lmstudio.base_url", "")
	viper.SetDefault("lmstudio.model", "")
	viper.SetDefault("search.fuzzy_threshold", "0.7")
	viper.SetDefault("asr.backend", "gemini")
	viper.SetDefault("asr.gemini_model", "")
	viper.SetDefault("asr.lecture_translator_url", "")
	viper.SetDefault("asr.lecture_translator_token", "")
	viper.SetDefault("storage.dir", "data/packages")
	viper.SetDefault("jwt.secret", "")
	viper.SetDefault("conversation.history_limit", "20")

	// Map environment variables to config keys
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("websocket.allowed_origins", "WEBSOCKET_ALLOWED_ORIGINS")
	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("database.log_level", "DATABASE_LOG_LEVEL")
	viper.BindEnv("database.max_idle_conns", "DATABASE_MAX_IDLE_CONNS")
	viper.BindEnv("database.max_open_conns", "DATABASE_MAX_OPEN_CONNS")
	viper.BindEnv("database.seed_demo_data", "SEED_DEMO_DATA")
	viper.BindEnv("llm.backend", "LLM_BACKEND")
	viper.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	viper.BindEnv("gemini.model", "GEMINI_MODEL")
	viper.BindEnv("lmstudio.base_url", "LMSTUDIO_BASE_URL")
	viper.BindEnv("lmstudio.model", "LMSTUDIO_MODEL")
	viper.BindEnv("search.fuzzy_threshold", "SEARCH_FUZZY_THRESHOLD")
	viper.BindEnv("asr.backend", "ASR_BACKEND")
	viper.BindEnv("asr.gemini_model", "ASR_GEMINI_MODEL")
	viper.BindEnv("asr.lecture_translator_url", "ASR_LECTURE_TRANSLATOR_URL")
	viper.BindEnv("asr.lecture_translator_token", "ASR_LECTURE_TRANSLATOR_TOKEN")
	viper.BindEnv("storage.dir", "STORAGE_DIR")
	viper.BindEnv("jwt.secret", "JWT_SECRET")
	viper.BindEnv("conversation.history_limit", "CONVERSATION_HISTORY_LIMIT")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("Config file not found, using defaults and environment variables")
		} else {
			slog.Error("Error reading config file", "error", err)
		}
	}

	return &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
		},
		Database: DatabaseConfig{
			URL:          viper.GetString("database.url"),
			LogLevel:     viper.GetString("database.log_level"),
			MaxIdleConns: viper.GetInt("database.max_idle_conns"),
			MaxOpenConns: viper.GetInt("database.max_open_conns"),
			SeedDemoData: viper.GetBool("database.seed_demo_data"),
		},
		LLM: LLMConfig{
			Backend:        viper.GetString("llm.backend"),
			GeminiAPIKey:   viper.GetString("gemini.api_key"),
			GeminiModel:    viper.GetString("gemini.model"),
			LMStudioURL:    viper.GetString("lmstudio.base_url"),
			LMStudioModel:  viper.GetString("lmstudio.model"),
			FuzzyThreshold: viper.GetFloat64("search.fuzzy_threshold"),
		},
		ASR: ASRConfig{
			Backend:               viper.GetString("asr.backend"),
			GeminiModel:           viper.GetString("asr.gemini_model"),
			LectureTranslatorURL:  viper.GetString("asr.lecture_translator_url"),
			LectureTranslatorAuth: viper.GetString("asr.lecture_translator_token"),
		},
		Storage: StorageConfig{
			Dir: viper.GetString("storage.dir"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins: viper.GetString("websocket.allowed_origins"),
		},
		Conversation: ConversationConfig{
			HistoryLimit: viper.GetInt("conversation.history_limit"),
		},
	}
}
