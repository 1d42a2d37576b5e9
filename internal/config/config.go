package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type VoiceConfig struct {
	Radius          float64       `mapstructure:"radius"`
	TickPeriod      time.Duration `mapstructure:"tick_period"`
	FlushPeriod     time.Duration `mapstructure:"flush_period"`
	StreamKeyLength int           `mapstructure:"stream_key_length"`
	Mutual          bool          `mapstructure:"mutual"`
	SpatialAudio    bool          `mapstructure:"spatial_audio"`
	ToggleLimit     int           `mapstructure:"toggle_limit"`
	ToggleInterval  time.Duration `mapstructure:"toggle_interval"`
	Backpressure    string        `mapstructure:"backpressure"`
}

type ClusterConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Forwarding    bool          `mapstructure:"forwarding"`
	NodeID        string        `mapstructure:"node_id"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Channel       string        `mapstructure:"channel"`
	BlockSet      string        `mapstructure:"block_set"`
	BlockCacheTTL time.Duration `mapstructure:"block_cache_ttl"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	AdminToken string        `mapstructure:"admin_token"`
	LogLevel   string        `mapstructure:"log_level"`

	Voice   VoiceConfig   `mapstructure:"voice"`
	Cluster ClusterConfig `mapstructure:"cluster"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("admin_token", "")
	v.SetDefault("log_level", "info")

	v.SetDefault("voice.radius", 48.0)
	v.SetDefault("voice.tick_period", "500ms")
	v.SetDefault("voice.flush_period", "100ms")
	v.SetDefault("voice.stream_key_length", 15)
	v.SetDefault("voice.mutual", true)
	v.SetDefault("voice.spatial_audio", true)
	v.SetDefault("voice.toggle_limit", 10)
	v.SetDefault("voice.toggle_interval", "10s")
	v.SetDefault("voice.backpressure", "drop")

	v.SetDefault("cluster.enabled", false)
	v.SetDefault("cluster.forwarding", false)
	v.SetDefault("cluster.node_id", "")
	v.SetDefault("cluster.redis_addr", "localhost:6379")
	v.SetDefault("cluster.redis_password", "")
	v.SetDefault("cluster.redis_db", 0)
	v.SetDefault("cluster.channel", "voice:mute")
	v.SetDefault("cluster.block_set", "voice:blocked")
	v.SetDefault("cluster.block_cache_ttl", "5s")

	v.SetDefault("metrics.namespace", "proximity_voice")
}

// Load reads config/config.<CONFIG_ENV>.yaml over the defaults.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Cluster.NodeID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "node"
		}
		cfg.Cluster.NodeID = host
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Float64("radius", cfg.Voice.Radius).
		Bool("cluster", cfg.Cluster.Enabled).
		Bool("admin_api", cfg.AdminToken != "").
		Msg("config ready")
	return &cfg, nil
}
