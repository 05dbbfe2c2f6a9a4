package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// ErrCodeNotFound 表示显式指定的配置文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	DefaultAddr        = "127.0.0.1:9526"
	DefaultStorePath   = "./data/ammds-bridge.db"
	DefaultConcurrency = 4
	DefaultRetryTimes  = 2
	DefaultRetryDelay  = time.Second
	DefaultTimeout     = 30 * time.Second
	DefaultHealthEvery = 5 * time.Minute

	// EnvPrefix：AMMDS_SERVER_ADDR 覆盖 server.addr，以此类推。
	EnvPrefix = "AMMDS"
)

// Config 是合并（默认值 < 配置文件 < 环境变量）并校验后的最终配置。
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Store  StoreConfig  `mapstructure:"store"`
	Log    LogConfig    `mapstructure:"log"`
	Relay  RelayConfig  `mapstructure:"relay"`
	Fetch  FetchConfig  `mapstructure:"fetch"`
	Health HealthConfig `mapstructure:"health"`

	// File 是实际读取的配置文件；未找到时为空。
	File string `mapstructure:"-"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type StoreConfig struct {
	// Path 为空或 ":memory:" 时使用进程内存储。
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // console | json
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type RelayConfig struct {
	RetryTimes int           `mapstructure:"retry_times"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type FetchConfig struct {
	ProxyURL    string `mapstructure:"proxy_url"`
	ImageProxy  bool   `mapstructure:"image_proxy"`
	Cookies     string `mapstructure:"cookies"`
	Concurrency int    `mapstructure:"concurrency"`
	CacheDir    string `mapstructure:"cache_dir"`
	Attachments bool   `mapstructure:"attachments"`
}

type HealthConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Load 读取配置。
//
// 发现规则：
// - path 非空：必须存在，否则 config_not_found
// - path 为空：依次查找 ./ammds.{yaml,json}、$HOME/.ammds/ammds.{yaml,json}；都没有时只用默认值与环境变量
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	path = strings.TrimSpace(path)
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return Config{}, &Error{Code: ErrCodeNotFound, Path: path, Err: os.ErrNotExist}
			}
			return Config{}, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ammds")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.ammds")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return Config{}, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, &Error{Code: ErrCodeInvalid, Path: v.ConfigFileUsed(), Err: err}
	}
	c.File = v.ConfigFileUsed()
	if err := c.normalize(); err != nil {
		return Config{}, &Error{Code: ErrCodeInvalid, Path: c.File, Err: err}
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", DefaultAddr)
	v.SetDefault("store.path", DefaultStorePath)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.path", "")
	v.SetDefault("log.max_size_mb", 20)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)

	v.SetDefault("relay.retry_times", DefaultRetryTimes)
	v.SetDefault("relay.retry_delay", DefaultRetryDelay)
	v.SetDefault("relay.timeout", DefaultTimeout)

	v.SetDefault("fetch.proxy_url", "")
	v.SetDefault("fetch.image_proxy", false)
	v.SetDefault("fetch.cookies", "")
	v.SetDefault("fetch.concurrency", DefaultConcurrency)
	v.SetDefault("fetch.cache_dir", "")
	v.SetDefault("fetch.attachments", false)

	v.SetDefault("health.interval", DefaultHealthEvery)
}

// normalize 做最小规范化与校验；之后调用方不再做二次默认。
func (c *Config) normalize() error {
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}

	switch strings.ToLower(strings.TrimSpace(c.Log.Format)) {
	case "", "console":
		c.Log.Format = "console"
	case "json":
		c.Log.Format = "json"
	default:
		return fmt.Errorf("log.format 只能是 console 或 json，实际是 %q", c.Log.Format)
	}

	if c.Relay.RetryTimes < 0 {
		return fmt.Errorf("relay.retry_times 不能为负数：%d", c.Relay.RetryTimes)
	}
	if c.Relay.RetryDelay <= 0 {
		c.Relay.RetryDelay = DefaultRetryDelay
	}
	if c.Relay.Timeout <= 0 {
		c.Relay.Timeout = DefaultTimeout
	}

	// 建议范围 [1, 32]；超出截断。
	if c.Fetch.Concurrency < 1 {
		c.Fetch.Concurrency = 1
	}
	if c.Fetch.Concurrency > 32 {
		c.Fetch.Concurrency = 32
	}

	c.Fetch.ProxyURL = strings.TrimSpace(c.Fetch.ProxyURL)
	if c.Fetch.ProxyURL != "" {
		u, err := url.Parse(c.Fetch.ProxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("fetch.proxy_url 无效：%q", c.Fetch.ProxyURL)
		}
	}
	if c.Fetch.ImageProxy && c.Fetch.ProxyURL == "" {
		return fmt.Errorf("fetch.image_proxy=true 但 fetch.proxy_url 为空")
	}

	if c.Health.Interval <= 0 {
		c.Health.Interval = DefaultHealthEvery
	}
	return nil
}
