package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds everything the client needs to talk to its backend and run
// the local debug surface.
type Config struct {
	APIBaseURL string `mapstructure:"api_base_url"`
	WSURL      string `mapstructure:"ws_url"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`

	DebugAddr string `mapstructure:"debug_addr"`
	LogLevel  string `mapstructure:"log_level"`

	AMQPURL      string `mapstructure:"amqp_url"`
	AMQPExchange string `mapstructure:"amqp_exchange"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Environment  string `mapstructure:"environment"`

	// AllowRerequest permits sending a new chat request to a counterpart
	// that previously rejected one. The backend does not define a policy, so
	// it stays a client-side rule.
	AllowRerequest bool `mapstructure:"allow_rerequest"`
}

// Load reads configuration from CHAT_* environment variables and an optional
// chat-client.yaml in the working directory.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("chat")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api_base_url", "http://localhost:8000/api")
	v.SetDefault("ws_url", "ws://localhost:8000/ws/chat")
	v.SetDefault("debug_addr", ":8090")
	v.SetDefault("log_level", "info")
	v.SetDefault("amqp_url", "")
	v.SetDefault("amqp_exchange", "chat_client_events")
	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("environment", "dev")
	v.SetDefault("allow_rerequest", true)

	v.SetConfigName("chat-client")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
