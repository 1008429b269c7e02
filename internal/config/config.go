package config

import (
	"strings"
	"time"

	"github.com/blues/rvs/internal/logger"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Raffle   RaffleConfig   `mapstructure:"raffle"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Custody  CustodyConfig  `mapstructure:"custody"`
	Task     TaskConfig     `mapstructure:"task"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // postgres, sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"` // sqlite 文件路径或 DSN
}

// RaffleConfig 抽奖默认参数
type RaffleConfig struct {
	DefaultDuration int64 `mapstructure:"default_duration"` // 秒
}

// AuthConfig 身份校验配置
type AuthConfig struct {
	Enabled bool          `mapstructure:"enabled"`  // 关闭时直接信任 X-Raffle-Address
	MaxSkew time.Duration `mapstructure:"max_skew"` // 签名时间戳允许的偏差
}

// CustodyConfig 托管配置
type CustodyConfig struct {
	AllowDeposit bool `mapstructure:"allow_deposit"` // 是否开放入金接口
}

type TaskConfig struct {
	Interval int `mapstructure:"interval"` // 秒
	Workers  int `mapstructure:"workers"`  // 协程池大小
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "raffle")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "raffle.db")
	v.SetDefault("raffle.default_duration", 3600)
	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.max_skew", "5m")
	v.SetDefault("custody.allow_deposit", false)
	v.SetDefault("task.interval", 60)
	v.SetDefault("task.workers", 8)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/app.log")
}

// Load 读取配置文件与环境变量（RVS_ 前缀，如 RVS_DATABASE_HOST）
func Load() *Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/rvs")

	setDefaults(v)

	v.SetEnvPrefix("rvs")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		logger.Warn("Could not read config file, using defaults: %v", err)
	}

	cfg, err := decode(v)
	if err != nil {
		logger.Fatal("Unable to decode config into struct: %v", err)
	}
	return cfg
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.Raffle.DefaultDuration <= 0 {
		logger.Warn("raffle.default_duration %d is not positive, falling back to 3600", cfg.Raffle.DefaultDuration)
		cfg.Raffle.DefaultDuration = 3600
	}
	if cfg.Task.Interval <= 0 {
		cfg.Task.Interval = 60
	}
	if cfg.Task.Workers <= 0 {
		cfg.Task.Workers = 1
	}
	return &cfg, nil
}
