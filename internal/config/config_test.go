package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	// 保存原始环境变量
	originalEnvs := make(map[string]string)
	envKeys := []string{
		"OTPINBOX_SERVER_HOST",
		"OTPINBOX_SERVER_PORT",
		"OTPINBOX_ADDRESS_ALLOWED_DOMAINS",
		"OTPINBOX_ADDRESS_MAX_MESSAGES",
		"OTPINBOX_ADDRESS_TOKEN_LENGTH",
		"OTPINBOX_SMTP_BIND_ADDR",
		"OTPINBOX_SMTP_DOMAIN",
		"OTPINBOX_WEBHOOK_TIMEOUT",
		"OTPINBOX_RETENTION_SWEEP_INTERVAL",
		"OTPINBOX_RATELIMIT_CREATE_PER_HOUR",
		"OTPINBOX_DATABASE_TYPE",
		"OTPINBOX_DATABASE_DSN",
		"OTPINBOX_LOG_LEVEL",
		"OTPINBOX_LOG_DEVELOPMENT",
	}

	for _, key := range envKeys {
		originalEnvs[key] = os.Getenv(key)
	}

	// 测试后恢复环境变量
	defer func() {
		for key, value := range originalEnvs {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	}()

	t.Run("加载默认配置成功", func(t *testing.T) {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}

		cfg, err := Load()

		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		// 验证默认值
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, []string{"otpinbox.dev"}, cfg.Address.AllowedDomains)
		assert.Equal(t, 100, cfg.Address.MaxMessages)
		assert.Equal(t, 32, cfg.Address.TokenLength)
		assert.Equal(t, ":25", cfg.SMTP.BindAddr)
		assert.Equal(t, "otpinbox.dev", cfg.SMTP.Domain)
		assert.Equal(t, int64(10*1024*1024), cfg.SMTP.MaxMessageBytes)
		assert.Equal(t, 10*time.Second, cfg.Webhook.Timeout)
		assert.Equal(t, 8, cfg.Webhook.Workers)
		assert.Equal(t, time.Hour, cfg.Retention.SweepInterval)
		assert.Equal(t, 10, cfg.RateLimit.CreatePerHour)
		assert.Equal(t, 3, cfg.RateLimit.RecoveryContactPerHour)
		assert.Equal(t, 3, cfg.RateLimit.RecoveryTargetPerHour)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.False(t, cfg.Log.Development)
		assert.Equal(t, "", cfg.Database.Type)
		assert.False(t, cfg.Redis.Enabled)
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		os.Setenv("OTPINBOX_SERVER_HOST", "127.0.0.1")
		os.Setenv("OTPINBOX_SERVER_PORT", "9090")
		os.Setenv("OTPINBOX_ADDRESS_ALLOWED_DOMAINS", "inbox.example,test.dev")
		os.Setenv("OTPINBOX_ADDRESS_MAX_MESSAGES", "50")
		os.Setenv("OTPINBOX_SMTP_BIND_ADDR", ":2525")
		os.Setenv("OTPINBOX_SMTP_DOMAIN", "inbox.example")
		os.Setenv("OTPINBOX_WEBHOOK_TIMEOUT", "5s")
		os.Setenv("OTPINBOX_RETENTION_SWEEP_INTERVAL", "30m")
		os.Setenv("OTPINBOX_RATELIMIT_CREATE_PER_HOUR", "20")
		os.Setenv("OTPINBOX_LOG_LEVEL", "debug")
		os.Setenv("OTPINBOX_LOG_DEVELOPMENT", "true")

		cfg, err := Load()

		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, []string{"inbox.example", "test.dev"}, cfg.Address.AllowedDomains)
		assert.Equal(t, 50, cfg.Address.MaxMessages)
		assert.Equal(t, ":2525", cfg.SMTP.BindAddr)
		assert.Equal(t, "inbox.example", cfg.SMTP.Domain)
		assert.Equal(t, 5*time.Second, cfg.Webhook.Timeout)
		assert.Equal(t, 30*time.Minute, cfg.Retention.SweepInterval)
		assert.Equal(t, 20, cfg.RateLimit.CreatePerHour)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.True(t, cfg.Log.Development)
	})

	t.Run("空的允许域名失败", func(t *testing.T) {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}
		os.Setenv("OTPINBOX_ADDRESS_ALLOWED_DOMAINS", " , , ")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "address.allowed_domains must not be empty")
	})

	t.Run("令牌长度过短失败", func(t *testing.T) {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}
		os.Setenv("OTPINBOX_ADDRESS_TOKEN_LENGTH", "8")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "token_length must be at least 16")
	})

	t.Run("无效的投递超时失败", func(t *testing.T) {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}
		os.Setenv("OTPINBOX_WEBHOOK_TIMEOUT", "not-a-duration")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid webhook.timeout")
	})

	t.Run("不支持的数据库类型失败", func(t *testing.T) {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}
		os.Setenv("OTPINBOX_DATABASE_TYPE", "sqlite")
		os.Setenv("OTPINBOX_DATABASE_DSN", "file::memory:")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "unsupported database.type")
	})

	t.Run("指定数据库类型但缺少DSN失败", func(t *testing.T) {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}
		os.Setenv("OTPINBOX_DATABASE_TYPE", "mysql")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "database.dsn is required")
	})
}

func TestParseDomains(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "单个域名",
			input:    "otpinbox.dev",
			expected: []string{"otpinbox.dev"},
		},
		{
			name:     "多个域名",
			input:    "otpinbox.dev,test.com,example.org",
			expected: []string{"otpinbox.dev", "test.com", "example.org"},
		},
		{
			name:     "带空格的域名",
			input:    " otpinbox.dev , test.com ",
			expected: []string{"otpinbox.dev", "test.com"},
		},
		{
			name:     "大写域名转小写",
			input:    "OTPINBOX.DEV,Test.Com",
			expected: []string{"otpinbox.dev", "test.com"},
		},
		{
			name:     "空字符串",
			input:    "",
			expected: []string{},
		},
		{
			name:     "混合空值",
			input:    "otpinbox.dev,,test.com,",
			expected: []string{"otpinbox.dev", "test.com"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := parseDomains(tc.input)
			assert.Equal(t, tc.expected, result)
		})
	}
}
