package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// AddressConfig 定义收件地址的核心业务配置
type AddressConfig struct {
	AllowedDomains []string // 允许创建地址的收件域名列表
	MaxMessages    int      // 单地址保留邮件数上限，0 表示不限制，超出按 FIFO 淘汰
	TokenLength    int      // 访问令牌长度，默认 32
}

// SMTPConfig 定义入站 SMTP 服务器的配置
type SMTPConfig struct {
	BindAddr        string  // SMTP 服务监听地址，格式 "host:port"，默认 ":25"
	Domain          string  // SMTP 服务器域名，用于 HELO/EHLO 响应
	MaxMessageBytes int64   // 单封邮件大小上限，默认 10MB
	MaxConnections  int     // 最大并发连接数，默认 100
	RatePerSecond   float64 // 新连接速率上限（令牌桶），默认 10
}

// WebhookConfig 定义 Webhook 投递的配置
type WebhookConfig struct {
	Timeout   time.Duration // 单次投递的 HTTP 超时，默认 10s
	Workers   int           // 投递协程池大小，默认 8
	QueueSize int           // 投递任务队列长度，默认 256
}

// RetentionConfig 定义保留策略后台清理的配置
type RetentionConfig struct {
	SweepInterval time.Duration // 清理周期，默认 1h
}

// RateLimitConfig 定义各限流维度的窗口配额（窗口均为 1 小时）
type RateLimitConfig struct {
	CreatePerHour          int // 单 IP 每小时可创建地址数，默认 10
	RecoveryIPPerHour      int // 单 IP 每小时恢复请求数，默认 10
	RecoveryContactPerHour int // 单恢复联系方式每小时请求数，默认 3
	RecoveryTargetPerHour  int // 单目标地址每小时恢复请求数，默认 3
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空只输出到标准输出
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"，为空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 缓存服务配置
type RedisConfig struct {
	Enabled  bool   // 是否启用 Redis 令牌查询缓存
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server    ServerConfig    // HTTP 服务器配置
	Address   AddressConfig   // 收件地址配置
	SMTP      SMTPConfig      // SMTP 服务配置
	Webhook   WebhookConfig   // Webhook 投递配置
	Retention RetentionConfig // 保留策略配置
	RateLimit RateLimitConfig // 限流配置
	CORS      CORSConfig      // 跨域配置
	Log       LogConfig       // 日志配置
	Database  DatabaseConfig  // 数据库配置
	Redis     RedisConfig     // Redis 配置
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: OTPINBOX_
// 例如: OTPINBOX_SERVER_HOST, OTPINBOX_DATABASE_DSN
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("otpinbox")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("address.allowed_domains", "otpinbox.dev")
	viper.SetDefault("address.max_messages", 100)
	viper.SetDefault("address.token_length", 32)
	viper.SetDefault("smtp.bind_addr", ":25")
	viper.SetDefault("smtp.domain", "otpinbox.dev")
	viper.SetDefault("smtp.max_message_bytes", 10*1024*1024)
	viper.SetDefault("smtp.max_connections", 100)
	viper.SetDefault("smtp.rate_per_second", 10)
	viper.SetDefault("webhook.timeout", "10s")
	viper.SetDefault("webhook.workers", 8)
	viper.SetDefault("webhook.queue_size", 256)
	viper.SetDefault("retention.sweep_interval", "1h")
	viper.SetDefault("ratelimit.create_per_hour", 10)
	viper.SetDefault("ratelimit.recovery_ip_per_hour", 10)
	viper.SetDefault("ratelimit.recovery_contact_per_hour", 3)
	viper.SetDefault("ratelimit.recovery_target_per_hour", 3)
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("database.type", "")
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	domainList := parseDomains(viper.GetString("address.allowed_domains"))
	if len(domainList) == 0 {
		return nil, fmt.Errorf("address.allowed_domains must not be empty")
	}

	tokenLength := viper.GetInt("address.token_length")
	if tokenLength < 16 {
		return nil, fmt.Errorf("address.token_length must be at least 16")
	}

	maxMessages := viper.GetInt("address.max_messages")
	if maxMessages < 0 {
		maxMessages = 0
	}

	webhookTimeout, err := time.ParseDuration(viper.GetString("webhook.timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid webhook.timeout: %w", err)
	}

	sweepInterval, err := time.ParseDuration(viper.GetString("retention.sweep_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid retention.sweep_interval: %w", err)
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	dbType := viper.GetString("database.type")
	if dbType != "" && dbType != "mysql" && dbType != "postgres" {
		return nil, fmt.Errorf("unsupported database.type: %s", dbType)
	}
	if dbType != "" && viper.GetString("database.dsn") == "" {
		return nil, fmt.Errorf("database.dsn is required when database.type is set")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Address: AddressConfig{
			AllowedDomains: domainList,
			MaxMessages:    maxMessages,
			TokenLength:    tokenLength,
		},
		SMTP: SMTPConfig{
			BindAddr:        viper.GetString("smtp.bind_addr"),
			Domain:          viper.GetString("smtp.domain"),
			MaxMessageBytes: viper.GetInt64("smtp.max_message_bytes"),
			MaxConnections:  viper.GetInt("smtp.max_connections"),
			RatePerSecond:   viper.GetFloat64("smtp.rate_per_second"),
		},
		Webhook: WebhookConfig{
			Timeout:   webhookTimeout,
			Workers:   viper.GetInt("webhook.workers"),
			QueueSize: viper.GetInt("webhook.queue_size"),
		},
		Retention: RetentionConfig{
			SweepInterval: sweepInterval,
		},
		RateLimit: RateLimitConfig{
			CreatePerHour:          viper.GetInt("ratelimit.create_per_hour"),
			RecoveryIPPerHour:      viper.GetInt("ratelimit.recovery_ip_per_hour"),
			RecoveryContactPerHour: viper.GetInt("ratelimit.recovery_contact_per_hour"),
			RecoveryTargetPerHour:  viper.GetInt("ratelimit.recovery_target_per_hour"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
		Database: DatabaseConfig{
			Type:            dbType,
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Enabled:  viper.GetBool("redis.enabled"),
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
	}

	return cfg, nil
}

// parseDomains 将逗号分隔的域名字符串解析为小写域名数组
func parseDomains(value string) []string {
	out := parseList(value)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env（用于从 backend/ 子目录运行的情况）
//
// 如果文件不存在，静默失败；已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
