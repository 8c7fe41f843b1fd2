package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

// Config is built once at startup and passed by reference; nothing reads
// the environment after Load returns.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	SMTPServer string `env:"SMTP_SERVER,required=true"`
	SMTPPort   int    `env:"SMTP_PORT,default=587"`
	SMTPUser   string `env:"SMTP_USER,required=true"`
	SMTPPass   string `env:"SMTP_PASS,required=true"`

	MaxDeliveryAttempts int `env:"MAX_DELIVERY_ATTEMPTS,default=3"`
	RetryBaseDelayMs    int `env:"RETRY_BASE_DELAY_MS,default=1000"`
	WorkerConcurrency   int `env:"WORKER_CONCURRENCY,default=1"`

	// Zero means "use RATE_LIMIT_PER_SEC" for that channel.
	RateLimitPerSec      int `env:"RATE_LIMIT_PER_SEC,default=100"`
	RateLimitEmailPerSec int `env:"RATE_LIMIT_EMAIL_PER_SEC,default=0"`
	RateLimitSMSPerSec   int `env:"RATE_LIMIT_SMS_PER_SEC,default=0"`

	OpsPort  int    `env:"OPS_PORT,default=8081"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
