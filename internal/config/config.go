package config

import (
	"delivery-coordination-service/internal/domain"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the server's runtime configuration.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"databaseUrl"`

	Redis RedisConfig `yaml:"redis"`
	ORS   ORSConfig   `yaml:"ors"`
	Kafka KafkaConfig `yaml:"kafka"`

	// Fixed departure point for every optimization.
	Origin        domain.Coordinates `yaml:"origin"`
	RouteCacheTTL time.Duration      `yaml:"routeCacheTTL"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
}

// An empty APIKey disables the provider; optimizations use the fallback only.
type ORSConfig struct {
	APIKey  string        `yaml:"apiKey"`
	BaseURL string        `yaml:"baseUrl"`
	Timeout time.Duration `yaml:"timeout"`
}

// No brokers means domain events are dropped.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Get returns the environment value for key, or fallback when it is unset or empty.
func Get(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// Load reads .env (when present) and the environment, then overlays the
// YAML file named by CONFIG_FILE, if any.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := fromEnv()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if path := Get("CONFIG_FILE", ""); path != "" {
		if err := overlayFile(cfg, path); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func fromEnv() (*Config, error) {
	cfg := &Config{
		Port:        Get("PORT", "8080"),
		DatabaseURL: Get("DATABASE_URL", ""),
		Redis: RedisConfig{
			Addr:     Get("REDIS_ADDR", "localhost:6379"),
			Password: Get("REDIS_PASSWORD", ""),
		},
		ORS: ORSConfig{
			APIKey:  Get("ORS_API_KEY", ""),
			BaseURL: Get("ORS_BASE_URL", "https://api.openrouteservice.org"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(Get("KAFKA_BROKERS", "")),
			Topic:   Get("KAFKA_TOPIC", "delivery_events"),
		},
	}

	var err error
	if cfg.Origin.Lat, err = floatEnv("ORIGIN_LAT", 34.0894); err != nil {
		return nil, err
	}
	if cfg.Origin.Lng, err = floatEnv("ORIGIN_LNG", -117.8897); err != nil {
		return nil, err
	}
	if cfg.ORS.Timeout, err = durationEnv("PROVIDER_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.RouteCacheTTL, err = durationEnv("ROUTE_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlayFile replaces the fields present in the YAML file at path.
func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	if !c.Origin.Valid() {
		return fmt.Errorf("origin (%v,%v) is outside valid lat/lng ranges", c.Origin.Lat, c.Origin.Lng)
	}
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.ORS.Timeout <= 0 {
		return errors.New("provider timeout must be positive")
	}
	if c.RouteCacheTTL <= 0 {
		return errors.New("route cache ttl must be positive")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka topic is required when brokers are set")
	}
	return nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	v := Get(key, "")
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := Get(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
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
