package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config — корневая структура конфигурации сервиса оценки рисков.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Export   ExportConfig   `mapstructure:"export"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig описывает подключение к PostgreSQL (приемник экспорта).
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub команд и публикация health).
type RedisConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Addr           string        `mapstructure:"addr"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// EngineConfig — настройки агентов.
type EngineConfig struct {
	Agents          []string      `mapstructure:"agents"` // регистрируются при старте
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`
	MonitorBackoff  time.Duration `mapstructure:"monitor_backoff"`
	HistoryLimit    int           `mapstructure:"history_limit"` // 0 — без ограничения

	// Лимит оценок на агента через HTTP API, 0 — без лимита
	AssessRPS   float64 `mapstructure:"assess_rps"`
	AssessBurst int     `mapstructure:"assess_burst"`
}

// ExportConfig — выгрузка записей об оценках в PostgreSQL.
type ExportConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	RetryAttempts uint          `mapstructure:"retry_attempts"`

	// Настройки Circuit Breaker для хранилища
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	CBFailures    uint32        `mapstructure:"cb_failures"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig ищет config.yaml в корне и в ./configs, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := newViper()

	// 1. Настройка поиска файла
	v.SetConfigName("config")    // имя файла без расширения
	v.SetConfigType("yaml")      // формат
	v.AddConfigPath(".")         // ищем в корне
	v.AddConfigPath("./configs") // и в папке с конфигами

	// 2. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	return decode(v)
}

// LoadConfigFile читает конфиг из явно указанного файла.
func LoadConfigFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()

	// Позволяет перекрывать конфиг: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.health_interval", 5*time.Second)

	v.SetDefault("engine.agents", []string{"risk_agent_1", "risk_agent_2", "risk_agent_3"})
	v.SetDefault("engine.monitor_interval", 5*time.Second)
	v.SetDefault("engine.monitor_backoff", 1*time.Second)
	v.SetDefault("engine.history_limit", 0)
	v.SetDefault("engine.assess_rps", 0)
	v.SetDefault("engine.assess_burst", 10)

	v.SetDefault("export.enabled", false)
	v.SetDefault("export.buffer_size", 10000)
	v.SetDefault("export.batch_size", 100)
	v.SetDefault("export.flush_interval", 500*time.Millisecond)
	v.SetDefault("export.retry_attempts", 3)
	v.SetDefault("export.cb_max_requests", 3)
	v.SetDefault("export.cb_interval", 5*time.Second)
	v.SetDefault("export.cb_timeout", 30*time.Second)
	v.SetDefault("export.cb_failures", 5)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// Validate отсекает конфигурации, с которыми сервис работать не сможет.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Engine.MonitorInterval <= 0 {
		errs = append(errs, errors.New("engine.monitor_interval must be positive"))
	}
	if c.Engine.MonitorBackoff <= 0 {
		errs = append(errs, errors.New("engine.monitor_backoff must be positive"))
	}
	if c.Engine.HistoryLimit < 0 {
		errs = append(errs, errors.New("engine.history_limit must not be negative"))
	}
	if c.Engine.AssessRPS < 0 {
		errs = append(errs, errors.New("engine.assess_rps must not be negative"))
	}

	seen := make(map[string]struct{}, len(c.Engine.Agents))
	for _, id := range c.Engine.Agents {
		if id == "" {
			errs = append(errs, errors.New("engine.agents contains an empty id"))
			continue
		}
		if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("engine.agents contains duplicate id %q", id))
		}
		seen[id] = struct{}{}
	}

	if c.Redis.Enabled && c.Redis.HealthInterval <= 0 {
		errs = append(errs, errors.New("redis.health_interval must be positive"))
	}
	if c.Export.Enabled {
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required when export is enabled"))
		}
		if c.Export.FlushInterval <= 0 {
			errs = append(errs, errors.New("export.flush_interval must be positive"))
		}
		if c.Export.BatchSize <= 0 || c.Export.BufferSize <= 0 {
			errs = append(errs, errors.New("export.batch_size and export.buffer_size must be positive"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// WatchConfig следит за файлом конфигурации и отдает свежую версию в onChange.
// Невалидные правки логируются и пропускаются.
func WatchConfig(path string, logger *zap.Logger, onChange func(*Config)) error {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", path, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			logger.Warn("config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		logger.Info("config reloaded", zap.String("file", e.Name), zap.String("op", e.Op.String()))
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}
