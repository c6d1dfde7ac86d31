package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Runner   RunnerConfig
	Redis    RedisConfig
	Webhook  WebhookConfig
	Email    EmailConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	DSN string
}

type RunnerConfig struct {
	DelayMS int
}

// Delay returns the simulated work delay.
func (c RunnerConfig) Delay() time.Duration {
	return time.Duration(c.DelayMS) * time.Millisecond
}

// RedisConfig enables the durable asynq scheduler when Addr is set. With an
// empty Addr, finalizations run on in-process timers and pending timers are
// lost on restart.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type WebhookConfig struct {
	URL       string
	TimeoutMS int
}

// Timeout returns the bound on a single webhook delivery attempt.
func (c WebhookConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

type EmailConfig struct {
	SMTPHost string
	SMTPPort string
	Username string
	Password string
	From     string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "3001")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("database.dsn", "file:jobdeck.db?cache=shared&mode=rwc")
	viper.SetDefault("runner.delay_ms", 5000)
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("webhook.url", "")
	viper.SetDefault("webhook.timeout_ms", 5000)
	viper.SetDefault("email.smtp_host", "")
	viper.SetDefault("email.smtp_port", "587")
	viper.SetDefault("email.username", "")
	viper.SetDefault("email.password", "")
	viper.SetDefault("email.from", "")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Env:  viper.GetString("server.env"),
		},
		Database: DatabaseConfig{
			DSN: viper.GetString("database.dsn"),
		},
		Runner: RunnerConfig{
			DelayMS: viper.GetInt("runner.delay_ms"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Webhook: WebhookConfig{
			URL:       viper.GetString("webhook.url"),
			TimeoutMS: viper.GetInt("webhook.timeout_ms"),
		},
		Email: EmailConfig{
			SMTPHost: viper.GetString("email.smtp_host"),
			SMTPPort: viper.GetString("email.smtp_port"),
			Username: viper.GetString("email.username"),
			Password: viper.GetString("email.password"),
			From:     viper.GetString("email.from"),
		},
	}

	return cfg, nil
}
