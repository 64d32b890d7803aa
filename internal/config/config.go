package config

import "github.com/caarlos0/env/v10"

// Config centralizes the client-side settings.
type Config struct {
	APIBaseURL    string `env:"API_BASE_URL" envDefault:"https://absences-api.orexi4.ru/api"`
	HubURL        string `env:"HUB_URL" envDefault:"https://absences-api.orexi4.ru/notification"`
	HTTPTimeoutMS int    `env:"HTTP_TIMEOUT_MS" envDefault:"5000"`
	Group         string `env:"NOTIFY_GROUP" envDefault:"student"`
	TokenFile     string `env:"TOKEN_FILE" envDefault:".inpass_token"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

// ServerConfig holds the mock backend's settings.
type ServerConfig struct {
	HTTPPort           string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL        string `env:"DATABASE_URL"`
	JWTSecret          string `env:"JWT_SECRET" envDefault:"dev-secret"`
	JWTTTLMinutes      int    `env:"JWT_TTL_MINUTES" envDefault:"720"`
	RedisAddr          string `env:"REDIS_ADDR"`
	RedisPassword      string `env:"REDIS_PASSWORD"`
	RedisDB            int    `env:"REDIS_DB" envDefault:"0"`
	LoginWindowSeconds int    `env:"LOGIN_WINDOW_SECONDS" envDefault:"60"`
	LoginMaxAttempts   int    `env:"LOGIN_MAX_ATTEMPTS" envDefault:"10"`
}

// LoadConfig reads the client configuration from the environment.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadServerConfig reads the mock backend configuration.
func LoadServerConfig() (*ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
