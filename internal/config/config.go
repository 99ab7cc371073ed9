package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Mailer configures the bulk email sender.
type Mailer struct {
	SMTPServer      string `env:"SMTP_SERVER,default=smtp.gmail.com"`
	SMTPPort        int    `env:"SMTP_PORT,default=587"`
	SenderEmail     string `env:"SENDER_EMAIL,required=true"`
	SenderPassword  string `env:"SENDER_PASSWORD,required=true"`
	SenderName      string `env:"SENDER_NAME,default=Email Automation System"`
	UseTLS          bool   `env:"USE_TLS,default=true"`
	MaxAttempts     int    `env:"MAX_ATTEMPTS,default=3"`
	RetryDelayMs    int    `env:"RETRY_DELAY_MS,default=5000"`
	SendDelayMs     int    `env:"SEND_DELAY_MS,default=1000"`
	DatabaseDSN     string `env:"DATABASE_DSN"`
	RedisURL        string `env:"REDIS_URL"`
	RabbitMQURL     string `env:"RABBITMQ_URL"`
	RateLimitPerSec int    `env:"RATE_LIMIT_PER_SEC,default=10"`
	MetricsPort     int    `env:"METRICS_PORT,default=0"`
	LogLevel        string `env:"LOG_LEVEL,default=info"`
}

func (c *Mailer) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

func (c *Mailer) SendDelay() time.Duration {
	return time.Duration(c.SendDelayMs) * time.Millisecond
}

// Weather configures the weather lookup client.
type Weather struct {
	APIKey    string `env:"OPENWEATHER_API_KEY,required=true"`
	BaseURL   string `env:"OPENWEATHER_URL,default=https://api.openweathermap.org/data/2.5"`
	TimeoutMs int    `env:"WEATHER_TIMEOUT_MS,default=10000"`
	LogLevel  string `env:"LOG_LEVEL,default=warn"`
}

func (c *Weather) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Students configures the student record store.
type Students struct {
	DataFile string `env:"STUDENTS_FILE,default=data/students.json"`
	LogLevel string `env:"LOG_LEVEL,default=warn"`
}

// Server configures the standalone status server and the run history
// commands, which need no SMTP credentials.
type Server struct {
	DatabaseDSN string `env:"DATABASE_DSN"`
	RedisURL    string `env:"REDIS_URL"`
	MetricsPort int    `env:"METRICS_PORT,default=9090"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
}

func LoadMailer() (*Mailer, error) {
	var cfg Mailer
	if err := unmarshal(&cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.SenderEmail) == "" || strings.TrimSpace(cfg.SenderPassword) == "" {
		return nil, fmt.Errorf("failed to load config: SENDER_EMAIL and SENDER_PASSWORD must not be empty")
	}
	if cfg.SMTPPort <= 0 || cfg.SMTPPort > 65535 {
		return nil, fmt.Errorf("failed to load config: invalid SMTP_PORT %d", cfg.SMTPPort)
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("failed to load config: MAX_ATTEMPTS must be >= 1")
	}
	if cfg.RetryDelayMs < 0 || cfg.SendDelayMs < 0 {
		return nil, fmt.Errorf("failed to load config: delays must be >= 0")
	}
	return &cfg, nil
}

func LoadWeather() (*Weather, error) {
	var cfg Weather
	if err := unmarshal(&cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("failed to load config: OPENWEATHER_API_KEY must not be empty")
	}
	return &cfg, nil
}

func LoadServer() (*Server, error) {
	var cfg Server
	if err := unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return nil, fmt.Errorf("failed to load config: invalid METRICS_PORT %d", cfg.MetricsPort)
	}
	return &cfg, nil
}

func LoadStudents() (*Students, error) {
	var cfg Students
	if err := unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv reads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return false, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return true, nil
}

func unmarshal(cfg any) error {
	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}
