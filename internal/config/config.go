package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Directory DirectoryConfig
	Twilio    TwilioConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type SchedulerConfig struct {
	Interval    time.Duration
	ReferenceTZ *time.Location
	DailyReset  bool
}

type DirectoryConfig struct {
	URL         string
	CountryCode string
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// LoadAll reads the whole configuration from the environment. Every problem
// is collected and reported in one combined error so a misconfigured deploy
// surfaces all missing keys at once.
func LoadAll() (*Config, error) {
	var errs []error

	collect := func(key string) string {
		v, err := requireEnv(key)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	collectInt := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	collectBool := func(key string, def bool) bool {
		v, err := getEnvBool(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: collect("POSTGRES_URL"),
		},
		Directory: DirectoryConfig{
			URL:         collect("DIRECTORY_URL"),
			CountryCode: getEnv("DIRECTORY_COUNTRY_CODE", "+36"),
		},
		Twilio: TwilioConfig{
			AccountSID: collect("TWILIO_ACCOUNT_SID"),
			AuthToken:  collect("TWILIO_AUTH_TOKEN"),
			FromNumber: collect("TWILIO_FROM_NUMBER"),
		},
		Scheduler: SchedulerConfig{
			Interval:   time.Duration(collectInt("SCHED_INTERVAL_SECONDS", 60)) * time.Second,
			DailyReset: collectBool("DAILY_RESET_ENABLED", true),
		},
	}

	tzName := getEnv("REFERENCE_TZ", "Europe/Budapest")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid REFERENCE_TZ %q: %w", tzName, err))
	}
	cfg.Scheduler.ReferenceTZ = loc

	redisCfg, err := loadRedisConfig()
	if err != nil {
		errs = append(errs, err)
	}
	cfg.Redis = redisCfg

	if cfg.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("SCHED_INTERVAL_SECONDS must be > 0"))
	}
	if !strings.HasPrefix(cfg.Directory.CountryCode, "+") {
		errs = append(errs, fmt.Errorf("DIRECTORY_COUNTRY_CODE must start with '+', got %q", cfg.Directory.CountryCode))
	}

	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	var errs []error

	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		errs = append(errs, err)
	}
	ttl, err := getEnvInt("REDIS_TTL_SECONDS", 86400)
	if err != nil {
		errs = append(errs, err)
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, joinErrors(errs)
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid bool for env %s: %q", key, v)
	}
	return b, nil
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
