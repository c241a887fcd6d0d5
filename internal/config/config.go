package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// Config 描述守护进程在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	Log      LogConfig      `json:"log"`
	Storage  StorageConfig  `json:"storage"`
	Queue    QueueConfig    `json:"queue"`
	Chains   ChainsConfig   `json:"chains"`
	Delivery DeliveryConfig `json:"delivery"`
	Alerting AlertingConfig `json:"alerting"`
	Executor ExecutorConfig `json:"executor"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address        string `json:"address"`
	MetricsAddress string `json:"metrics_address"`
}

// LogConfig 控制结构化日志与审计日志的输出。
type LogConfig struct {
	Level       string      `json:"level"`
	Format      string      `json:"format"`
	OutputPaths []string    `json:"output_paths"`
	Audit       AuditConfig `json:"audit"`
}

// AuditConfig 控制审计日志的落盘与轮转。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// StorageConfig 统一描述钱包与暂存层的存储后端。
type StorageConfig struct {
	Driver string      `json:"driver"`
	MySQL  MySQLConfig `json:"mysql"`
	Redis  RedisConfig `json:"redis"`
}

// MySQLConfig 描述 MySQL 连接与连接池参数。DSN 不在此处配置，
// 从环境变量 OXVENTA_MYSQL_DSN 读取。
type MySQLConfig struct {
	MaxOpenConns           int `json:"max_open_conns"`
	MaxIdleConns           int `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `json:"conn_max_idle_time_seconds"`
}

// RedisConfig 描述暂存层使用的 Redis 实例。
type RedisConfig struct {
	Address    string `json:"address"`
	DB         int    `json:"db"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// QueueConfig 描述确认指令队列。Driver 取 none 时确认走同步路径。
type QueueConfig struct {
	Driver   string              `json:"driver"`
	Worker   int                 `json:"worker"`
	Redis    RedisQueueConfig    `json:"redis"`
	RabbitMQ RabbitMQQueueConfig `json:"rabbitmq"`
}

// RedisQueueConfig 描述 Redis 队列参数。
type RedisQueueConfig struct {
	Address          string `json:"address"`
	DB               int    `json:"db"`
	Queue            string `json:"queue"`
	BlockWaitSeconds int    `json:"block_wait_seconds"`
}

// RabbitMQQueueConfig 描述 RabbitMQ 队列参数。
type RabbitMQQueueConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// ChainsConfig 指向链定义文件。
type ChainsConfig struct {
	Path string `json:"path"`
}

// DeliveryConfig 控制进度消息如何送回用户。
type DeliveryConfig struct {
	WebhookEndpoint       string `json:"webhook_endpoint"`
	WebhookTimeoutSeconds int    `json:"webhook_timeout_seconds"`
}

// AlertingConfig 控制告警渠道。
type AlertingConfig struct {
	Email EmailAlertConfig `json:"email"`
	Slack SlackAlertConfig `json:"slack"`
}

// EmailAlertConfig 描述邮件告警的收件人。
type EmailAlertConfig struct {
	Enabled       bool     `json:"enabled"`
	To            []string `json:"to"`
	SubjectPrefix string   `json:"subject_prefix"`
}

// SlackAlertConfig 描述 Slack 告警频道。WebhookURL 指向 incoming webhook。
type SlackAlertConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
	ChannelID  string `json:"channel_id"`
}

// ExecutorConfig 控制执行器行为。
type ExecutorConfig struct {
	ReceiptTimeoutSeconds int `json:"receipt_timeout_seconds"`
}

// Secrets 承载只允许从环境变量注入的敏感配置，前缀 OXVENTA_。
type Secrets struct {
	KeySecret     string `envconfig:"KEY_SECRET"`
	MySQLDSN      string `envconfig:"MYSQL_DSN"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	WebhookToken  string `envconfig:"WEBHOOK_TOKEN"`
}

// Load 解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// LoadSecrets 从环境变量读取敏感配置。
func LoadSecrets() (*Secrets, error) {
	var secrets Secrets
	if err := envconfig.Process("oxventa", &secrets); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}
	return &secrets, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Worker <= 0 {
		c.Queue.Worker = 4
	}

	if c.Chains.Path == "" {
		c.Chains.Path = filepath.Join(baseDir, "chains.yaml")
	} else if !filepath.IsAbs(c.Chains.Path) {
		c.Chains.Path = filepath.Join(baseDir, c.Chains.Path)
	}

	if c.Executor.ReceiptTimeoutSeconds <= 0 {
		c.Executor.ReceiptTimeoutSeconds = 120
	}
}
