package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. WRTC_SRC.
const EnvPrefix = "WRTC"

// FileEnv names the environment variable holding an optional YAML config file.
const FileEnv = EnvPrefix + "_CONFIG"

// Config holds the application configuration.
type Config struct {
	Src string `mapstructure:"src"`
	// ICEServers is a JSON array of ICE servers; empty selects the default STUN server.
	ICEServers     string        `mapstructure:"ice_servers"`
	CandidateTypes []string      `mapstructure:"candidate_types"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	DataChannel    bool          `mapstructure:"data_channel"`
	ViewerInfo     string        `mapstructure:"viewer_info"`
	LogLevel       string        `mapstructure:"log_level"`
	EventBuffer    int           `mapstructure:"event_buffer"`
	MaxMessageSize int           `mapstructure:"max_message_size"`
	Autoplay       bool          `mapstructure:"autoplay"`
	ResumeDelay    time.Duration `mapstructure:"resume_delay"`
}

// Load reads configuration from a .env file (if present), an optional YAML
// file named by WRTC_CONFIG and WRTC_* environment variables. Environment
// variables take precedence over the file. A non-empty src overrides both.
func Load(src string) (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("src", "")
	v.SetDefault("ice_servers", "")
	v.SetDefault("candidate_types", []string{"udp", "tcp"})
	v.SetDefault("ping_interval", "3s")
	v.SetDefault("data_channel", true)
	v.SetDefault("viewer_info", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("event_buffer", 64)
	v.SetDefault("max_message_size", 64<<20)
	v.SetDefault("autoplay", true)
	v.SetDefault("resume_delay", "2s")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := os.Getenv(FileEnv); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
		log.Info().Str("module", "config").Str("file", file).Msg("loaded config file")
	}

	if src != "" {
		v.Set("src", src)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Src == "" {
		return nil, errors.New("stream url is required (argument or WRTC_SRC)")
	}
	if cfg.EventBuffer <= 0 {
		return nil, fmt.Errorf("event_buffer must be positive, got %d", cfg.EventBuffer)
	}
	if cfg.ViewerInfo == "" {
		cfg.ViewerInfo = "wrtcplay-" + uuid.NewString()
	}
	return &cfg, nil
}
