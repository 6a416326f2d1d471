package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Env      string         `mapstructure:"env"` // 环境: development, production
	Server   ServerConfig   `mapstructure:"server"`
	Fanout   FanoutConfig   `mapstructure:"fanout"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// FanoutConfig WebSocket 广播服务器配置
type FanoutConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	MaxQueue int    `mapstructure:"max_queue"` // 每个订阅者的事件缓冲上限
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 秒
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 秒
}

// RedisConfig Redis 配置,用于设备注册表的短 TTL 读缓存
// Addr 为空时禁用缓存,注册表直接读库
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	CacheTTL int    `mapstructure:"cache_ttl"` // 秒
}

// ExecutorConfig 任务执行器配置
type ExecutorConfig struct {
	Workers        int `mapstructure:"workers"`          // 工作协程数
	PollInterval   int `mapstructure:"poll_interval"`    // 轮询间隔,秒
	MaxRetries     int `mapstructure:"max_retries"`      // 设备级重试次数
	MaxTaskRetries int `mapstructure:"max_task_retries"` // 任务级重新排队次数
	ShutdownGrace  int `mapstructure:"shutdown_grace"`   // 优雅关闭等待,秒
}

// GatewayConfig 设备网关配置
type GatewayConfig struct {
	ConnectTimeout int `mapstructure:"connect_timeout"` // 秒
	CommandTimeout int `mapstructure:"command_timeout"` // 秒
	LockWait       int `mapstructure:"lock_wait"`       // 秒
	IdleTimeout    int `mapstructure:"idle_timeout"`    // 秒
}

// MonitorConfig 监控引擎配置
type MonitorConfig struct {
	CollectInterval int `mapstructure:"collect_interval"` // 采集周期,秒
	TrafficInterval int `mapstructure:"traffic_interval"` // 流量采样周期,秒
	FreshnessWindow int `mapstructure:"freshness_window"` // 快照新鲜窗口,秒
	HardExpiry      int `mapstructure:"hard_expiry"`      // 快照硬过期,秒
	ForceInterval   int `mapstructure:"force_interval"`   // 无变化时的强制推送间隔,秒
	HistoryDays     int `mapstructure:"history_days"`     // 快照历史保留天数
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	MaxAge         int      `mapstructure:"max_age"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error
	Format string `mapstructure:"format"` // 日志格式: json, text
	Output string `mapstructure:"output"` // 输出位置: stdout, file, both
}

// AuthConfig 管理员鉴权配置
// 角色在上游解析,中间件只校验 JWT 中的 role 声明
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	AdminRole string `mapstructure:"admin_role"`
}

// Load 加载配置,支持配置文件和环境变量
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 如果提供了配置文件路径,从文件加载
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		// 尝试从默认位置加载
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.netops-gin")
		// 忽略配置文件不存在的错误,使用默认值
		_ = v.ReadInConfig()
	}

	// 支持环境变量
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// IsProduction 判断是否为生产环境
func IsProduction(cfg *Config) bool {
	if cfg == nil {
		return false
	}
	return cfg.Env == "production"
}

// Default 返回默认配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	env := v.GetString("env")
	if env == "" {
		env = os.Getenv("APP_ENV")
		if env == "" {
			env = "development"
		}
	}
	v.SetDefault("env", env)

	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	// WebSocket 广播服务器默认配置
	v.SetDefault("fanout.host", "0.0.0.0")
	v.SetDefault("fanout.port", 8765)
	v.SetDefault("fanout.max_queue", 256)

	// 数据库默认配置
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "netops")
	v.SetDefault("database.sslmode", "disable")

	// 数据库连接池配置(根据环境设置默认值)
	if env == "production" {
		v.SetDefault("database.max_idle_conns", 20)
		v.SetDefault("database.max_open_conns", 200)
		v.SetDefault("database.conn_max_lifetime", 3600)
		v.SetDefault("database.conn_max_idle_time", 300)
	} else {
		v.SetDefault("database.max_idle_conns", 10)
		v.SetDefault("database.max_open_conns", 100)
		v.SetDefault("database.conn_max_lifetime", 3600)
		v.SetDefault("database.conn_max_idle_time", 600)
	}

	// Redis 默认配置(Addr 为空表示不启用缓存)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", 30)

	// 执行器默认配置
	v.SetDefault("executor.workers", 4)
	v.SetDefault("executor.poll_interval", 5)
	v.SetDefault("executor.max_retries", 2)
	v.SetDefault("executor.max_task_retries", 1)
	v.SetDefault("executor.shutdown_grace", 10)

	// 设备网关默认配置
	v.SetDefault("gateway.connect_timeout", 20)
	v.SetDefault("gateway.command_timeout", 60)
	v.SetDefault("gateway.lock_wait", 120)
	v.SetDefault("gateway.idle_timeout", 120)

	// 监控引擎默认配置
	v.SetDefault("monitor.collect_interval", 30)
	v.SetDefault("monitor.traffic_interval", 5)
	v.SetDefault("monitor.freshness_window", 180)
	v.SetDefault("monitor.hard_expiry", 900)
	v.SetDefault("monitor.force_interval", 10)
	v.SetDefault("monitor.history_days", 30)

	// CORS 默认配置
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization", "X-Request-ID"})
	v.SetDefault("cors.max_age", 86400)

	// 日志配置(根据环境设置默认值)
	if env == "production" {
		v.SetDefault("log.level", "warn")
		v.SetDefault("log.format", "json")
	} else {
		v.SetDefault("log.level", "debug")
		v.SetDefault("log.format", "text")
	}
	v.SetDefault("log.output", "stdout")

	// 鉴权默认配置
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.admin_role", "admin")
}
