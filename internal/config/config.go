package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/shaiso/Flume/internal/state"
)

// Ошибки конфигурации.
var (
	// ErrInvalid — конфигурация не прошла проверку.
	ErrInvalid = errors.New("invalid config")
)

// Config — конфигурация Flume.
type Config struct {
	Runner  Runner  `toml:"runner"`
	State   State   `toml:"state"`
	Logging Logging `toml:"logging"`
	Metrics Metrics `toml:"metrics"`
	MQ      MQ      `toml:"mq"`
}

// Runner — параметры исполнителя.
type Runner struct {
	// Parallelism — размер пула воркеров.
	Parallelism int `toml:"parallelism"`

	// MaxOutputs — потолок выходов одного вызова splittable функции.
	MaxOutputs int `toml:"max_outputs"`

	// PollIntervalMS — период опроса в WaitUntilFinish.
	PollIntervalMS int `toml:"poll_interval_ms"`
}

// State — хранилище состояния splittable стадий.
type State struct {
	// Backend — memory, redis или postgres.
	Backend string `toml:"backend"`

	RedisAddr   string `toml:"redis_addr"`
	RedisPrefix string `toml:"redis_prefix"`
	DBURL       string `toml:"db_url"`
}

// Logging — настройки slog.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Metrics — HTTP сервер /metrics и статуса pipeline.
type Metrics struct {
	// Addr — адрес сервера. Пустой — сервер не запускается.
	Addr string `toml:"addr"`
}

// MQ — публикация обновлений pipeline в RabbitMQ.
type MQ struct {
	// URL — адрес брокера. Пустой — публикация выключена.
	URL string `toml:"url"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() Config {
	return Config{
		Runner: Runner{
			Parallelism:    4,
			MaxOutputs:     10000,
			PollIntervalMS: 25,
		},
		State: State{
			Backend:     state.BackendMemory,
			RedisAddr:   "localhost:6379",
			RedisPrefix: state.DefaultRedisPrefix,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load читает TOML файл (если path не пуст) и применяет переменные окружения.
//
// Отсутствующий файл по явному пути — ошибка.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv переопределяет поля из окружения.
func (c *Config) applyEnv() error {
	if v := os.Getenv("FLUME_PARALLELISM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: FLUME_PARALLELISM: %v", ErrInvalid, err)
		}
		c.Runner.Parallelism = n
	}
	if v := os.Getenv("FLUME_MAX_OUTPUTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: FLUME_MAX_OUTPUTS: %v", ErrInvalid, err)
		}
		c.Runner.MaxOutputs = n
	}
	if v := os.Getenv("STATE_BACKEND"); v != "" {
		c.State.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.State.RedisAddr = v
	}
	if v := os.Getenv("DB_URL"); v != "" {
		c.State.DBURL = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		c.MQ.URL = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	return nil
}

// Validate проверяет значения.
func (c *Config) Validate() error {
	if c.Runner.Parallelism <= 0 {
		return fmt.Errorf("%w: runner.parallelism must be positive", ErrInvalid)
	}
	if c.Runner.MaxOutputs <= 0 {
		return fmt.Errorf("%w: runner.max_outputs must be positive", ErrInvalid)
	}
	if c.Runner.PollIntervalMS <= 0 {
		return fmt.Errorf("%w: runner.poll_interval_ms must be positive", ErrInvalid)
	}

	switch c.State.Backend {
	case state.BackendMemory:
	case state.BackendRedis:
		if c.State.RedisAddr == "" {
			return fmt.Errorf("%w: state.redis_addr is required for redis backend", ErrInvalid)
		}
	case state.BackendPostgres:
		if c.State.DBURL == "" {
			return fmt.Errorf("%w: state.db_url is required for postgres backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown state backend %q", ErrInvalid, c.State.Backend)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: logging.format must be json or text", ErrInvalid)
	}

	return nil
}

// StateConfig возвращает параметры подключения backend'а.
// Scope заполняет runner для каждого pipeline.
func (c *Config) StateConfig() state.Config {
	return state.Config{
		RedisAddr:   c.State.RedisAddr,
		RedisPrefix: c.State.RedisPrefix,
		DBURL:       c.State.DBURL,
	}
}
