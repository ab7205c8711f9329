package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix 环境变量前缀，例如 TGRELAY_TELEGRAM_TOKEN
const EnvPrefix = "TGRELAY"

// RequiredKeysHint is printed when the configuration is rejected.
const RequiredKeysHint = "required keys: telegram.token (TGRELAY_TELEGRAM_TOKEN or BOT_TOKEN), " +
	"admin_id (TGRELAY_ADMIN_ID or ADMIN_ID)"

// Config 应用配置
type Config struct {
	AdminID  int64          `mapstructure:"admin_id" yaml:"admin_id"`
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
	Relay    RelayConfig    `mapstructure:"relay" yaml:"relay"`
	Janitor  JanitorConfig  `mapstructure:"janitor" yaml:"janitor"`
	Bans     BansConfig     `mapstructure:"bans" yaml:"bans"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Status   StatusConfig   `mapstructure:"status" yaml:"status"`
}

// TelegramConfig Bot API 连接配置
type TelegramConfig struct {
	Token       string        `mapstructure:"token" yaml:"token"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	PollTimeout time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
}

// RelayConfig 转发核心配置
type RelayConfig struct {
	Workers        int           `mapstructure:"workers" yaml:"workers"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"` // 单次发送最多尝试次数
	RetryDelay     time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	MinInterval    time.Duration `mapstructure:"min_interval" yaml:"min_interval"`
	Retention      time.Duration `mapstructure:"retention" yaml:"retention"`
	DedupWindow    time.Duration `mapstructure:"dedup_window" yaml:"dedup_window"`
	RateStateIdle  time.Duration `mapstructure:"rate_state_idle" yaml:"rate_state_idle"` // 0 = 永不清理
	PollErrorDelay time.Duration `mapstructure:"poll_error_delay" yaml:"poll_error_delay"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace" yaml:"shutdown_grace"`
}

// JanitorConfig 定期清理配置
type JanitorConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// BansConfig 封禁列表存储配置
type BansConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // file | sqlite
	Path   string `mapstructure:"path" yaml:"path"`
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
	Watch  bool   `mapstructure:"watch" yaml:"watch"`
}

// LogConfig 日志配置
type LogConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"` // false 时关闭全部日志输出
	Level   string `mapstructure:"level" yaml:"level"`
	Format  string `mapstructure:"format" yaml:"format"`
	File    string `mapstructure:"file" yaml:"file"`
}

// StatusConfig 状态 HTTP 端点配置
type StatusConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host"`
	Port    int    `mapstructure:"port" yaml:"port"`
}

// Addr returns host:port.
func (s StatusConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// LoadDotEnv 加载 .env 文件（如存在），返回是否加载
func LoadDotEnv(paths ...string) bool {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	loaded := false
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err == nil {
			loaded = true
		}
	}
	return loaded
}

// Load 加载配置文件
// 优先级: ENV > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	bindLegacyEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			// 配置文件不存在时使用默认值
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", expandedPath, err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

// bindLegacyEnv keeps the short variable names of earlier deployments
// working next to the prefixed ones.
func bindLegacyEnv() {
	_ = viper.BindEnv("telegram.token", EnvPrefix+"_TELEGRAM_TOKEN", "BOT_TOKEN")
	_ = viper.BindEnv("admin_id", EnvPrefix+"_ADMIN_ID", "ADMIN_ID")
	_ = viper.BindEnv("relay.max_retries", EnvPrefix+"_RELAY_MAX_RETRIES", "MAX_RETRIES")
	_ = viper.BindEnv("relay.retry_delay", EnvPrefix+"_RELAY_RETRY_DELAY", "RETRY_DELAY")
	_ = viper.BindEnv("log.enabled", EnvPrefix+"_LOG_ENABLED", "ENABLE_LOGGING")
	_ = viper.BindEnv("log.file", EnvPrefix+"_LOG_FILE", "LOG_FILE")
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsToDurationHook reads a bare integer, from a file or the
// environment, as a number of seconds. Strings with a unit are left to
// StringToTimeDurationHookFunc.
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != durationType || from == durationType {
			return data, nil
		}
		switch from.Kind() {
		case reflect.String:
			s := strings.TrimSpace(data.(string))
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return data, nil
			}
			return time.Duration(n) * time.Second, nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return time.Duration(reflect.ValueOf(data).Uint()) * time.Second, nil
		}
		return data, nil
	}
}

// Validate 校验配置，返回第一个错误
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Telegram.Token) == "":
		return &ConfigError{Field: "telegram.token", Message: "required"}
	case c.AdminID == 0:
		return &ConfigError{Field: "admin_id", Message: "required"}
	case c.Relay.Workers < 1:
		return &ConfigError{Field: "relay.workers", Message: "must be at least 1"}
	case c.Relay.MaxRetries < 1:
		return &ConfigError{Field: "relay.max_retries", Message: "must be at least 1"}
	case c.Relay.RetryDelay < 0:
		return &ConfigError{Field: "relay.retry_delay", Message: "must not be negative"}
	case c.Relay.MinInterval < 0:
		return &ConfigError{Field: "relay.min_interval", Message: "must not be negative"}
	case c.Relay.Retention <= 0:
		return &ConfigError{Field: "relay.retention", Message: "must be positive"}
	case c.Relay.DedupWindow <= 0:
		return &ConfigError{Field: "relay.dedup_window", Message: "must be positive"}
	case c.Relay.RateStateIdle < 0:
		return &ConfigError{Field: "relay.rate_state_idle", Message: "must not be negative"}
	case c.Janitor.Interval < time.Second:
		return &ConfigError{Field: "janitor.interval", Message: "must be at least 1s"}
	case c.Bans.Driver != "file" && c.Bans.Driver != "sqlite":
		return &ConfigError{Field: "bans.driver", Message: fmt.Sprintf("unknown driver %q (want file or sqlite)", c.Bans.Driver)}
	case c.Bans.Driver == "file" && c.Bans.Path == "":
		return &ConfigError{Field: "bans.path", Message: "required for the file driver"}
	case c.Bans.Driver == "sqlite" && c.Bans.DBPath == "":
		return &ConfigError{Field: "bans.db_path", Message: "required for the sqlite driver"}
	case c.Status.Enabled && (c.Status.Port < 1 || c.Status.Port > 65535):
		return &ConfigError{Field: "status.port", Message: "must be between 1 and 65535"}
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	cp := *c
	if t := cp.Telegram.Token; t != "" {
		if len(t) > 6 {
			cp.Telegram.Token = t[:3] + "..." + t[len(t)-3:]
		} else {
			cp.Telegram.Token = "***"
		}
	}
	return &cp
}

// GetConfig 获取当前配置
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// ConfigPath 返回已加载的配置文件路径
func ConfigPath() string {
	mu.RLock()
	defer mu.RUnlock()
	return configPath
}

// SaveTo 保存配置到指定路径
func SaveTo(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// 0600: 包含 bot token
	return os.WriteFile(path, data, 0600)
}

// Reset 重置配置（主要用于测试）
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}
