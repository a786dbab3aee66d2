package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Host          string
	Port          string
	AllowedOrigin string
	BotName       string
	// Storage
	DatabaseURI string
	// Responder selection: "corpus" or "openai"
	Responder string
	// Corpus training
	Corpora         []string
	CorpusDir       string
	SkipTraining    bool
	Learn           bool
	MatchThreshold  float64
	DefaultResponse string
	// Number of messages kept per session
	SessionHistory int
	// OpenAI responder
	OpenAIAPIKey string
	Model        string
	// Logging
	LogLevel  string
	LogFormat string
}

// Addr is the listen address built from Host and Port.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

var defaults = map[string]any{
	"host":             "0.0.0.0",
	"port":             "5000",
	"allowed_origin":   "*",
	"bot_name":         "StudentBot",
	"database_uri":     "sqlite:///chatbot_database.sqlite3",
	"responder":        "corpus",
	"corpus":           "english",
	"corpus_dir":       "",
	"skip_training":    false,
	"learn":            true,
	"match_threshold":  0.5,
	"default_response": "I am sorry, but I do not understand.",
	"session_history":  40,
	"openai_api_key":   "",
	"openai_model":     "gpt-4o-mini",
	"log_level":        "info",
	"log_format":       "console",
}

// Load reads .env, then the optional YAML config file at path, then the
// environment. Environment variables win over the file.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for k, def := range defaults {
		v.SetDefault(k, def)
	}
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("config_file")
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := Config{
		Host:            v.GetString("host"),
		Port:            v.GetString("port"),
		AllowedOrigin:   v.GetString("allowed_origin"),
		BotName:         v.GetString("bot_name"),
		DatabaseURI:     v.GetString("database_uri"),
		Responder:       strings.ToLower(strings.TrimSpace(v.GetString("responder"))),
		Corpora:         corpora(v),
		CorpusDir:       v.GetString("corpus_dir"),
		SkipTraining:    v.GetBool("skip_training"),
		Learn:           v.GetBool("learn"),
		MatchThreshold:  v.GetFloat64("match_threshold"),
		DefaultResponse: v.GetString("default_response"),
		SessionHistory:  v.GetInt("session_history"),
		OpenAIAPIKey:    v.GetString("openai_api_key"),
		Model:           v.GetString("openai_model"),
		LogLevel:        strings.ToLower(v.GetString("log_level")),
		LogFormat:       strings.ToLower(v.GetString("log_format")),
	}

	switch cfg.Responder {
	case "corpus":
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Warn().Msg("OPENAI_API_KEY is not set; chat requests will fail until provided")
		}
	default:
		return Config{}, fmt.Errorf("unknown responder %q", cfg.Responder)
	}
	if cfg.MatchThreshold < 0 || cfg.MatchThreshold > 1 {
		return Config{}, fmt.Errorf("match_threshold must be within [0, 1], got %v", cfg.MatchThreshold)
	}
	return cfg, nil
}

// corpora accepts CORPUS as a comma-separated string or a YAML list.
func corpora(v *viper.Viper) []string {
	if s, ok := v.Get("corpus").(string); ok {
		return splitList(s)
	}
	return splitList(strings.Join(v.GetStringSlice("corpus"), ","))
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
