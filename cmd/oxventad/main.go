package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"OxVenta-Custody/internal/action"
	"OxVenta-Custody/internal/api"
	chainreg "OxVenta-Custody/internal/chain/registry"
	"OxVenta-Custody/internal/config"
	"OxVenta-Custody/internal/confirm"
	"OxVenta-Custody/internal/delivery"
	"OxVenta-Custody/internal/keycipher"
	"OxVenta-Custody/internal/observability/alerting"
	"OxVenta-Custody/internal/observability/metrics"
	"OxVenta-Custody/internal/stage"
	"OxVenta-Custody/internal/storage/mysql"
	"OxVenta-Custody/internal/wallet"
	"OxVenta-Custody/pkg/logger"
)

// main 是托管执行守护进程的入口。
func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("oxventad 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("OXVENTA_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "oxventa.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Log.Audit.Enabled,
			Path:       cfg.Log.Audit.Path,
			MaxSizeMB:  cfg.Log.Audit.MaxSizeMB,
			MaxBackups: cfg.Log.Audit.MaxBackups,
			MaxAgeDays: cfg.Log.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	// 钱包密钥的加密口令缺失时拒绝启动：没有它既不能建钱包也不能签名。
	if secrets.KeySecret == "" {
		return errors.New("环境变量 OXVENTA_KEY_SECRET 未设置")
	}
	cipher, err := keycipher.New(secrets.KeySecret)
	if err != nil {
		return err
	}

	walletStore, stageStore, err := buildStores(ctx, cfg, secrets)
	if err != nil {
		return err
	}
	defer func() {
		_ = stageStore.Close()
		_ = walletStore.Close()
	}()

	vault := wallet.NewVault(walletStore, cipher)

	chains, err := chainreg.New(ctx, cfg.Chains.Path)
	if err != nil {
		return err
	}
	defer chains.Close()

	handlers, err := action.NewRegistry(
		action.NewCreateToken(),
		action.NewCreatePair(),
		action.NewAddLiquidityETH(),
	)
	if err != nil {
		return err
	}
	executor := action.NewExecutor(vault, stageStore, chains, handlers, action.Config{
		ReceiptTimeout: time.Duration(cfg.Executor.ReceiptTimeoutSeconds) * time.Second,
	})

	notifier := buildNotifier(cfg, secrets)
	dispatcher := buildAlertDispatcher(cfg)

	queue, err := buildQueue(cfg, secrets)
	if err != nil {
		return err
	}

	var producer confirm.Producer
	if queue != nil {
		producer = queue
		defer func() {
			if err := queue.Close(); err != nil {
				log.Printf("关闭确认队列失败: %v", err)
			}
		}()

		processor := confirm.NewProcessor(executor, queue, notifier,
			confirm.WithWorkerCount(cfg.Queue.Worker),
			confirm.WithAlertDispatcher(dispatcher),
		)
		processorCtx, processorCancel := context.WithCancel(ctx)
		defer processorCancel()
		go func() {
			if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("确认处理器异常退出: %v", err)
			}
		}()
	}

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("指标服务异常退出: %v", err)
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, vault, executor, producer)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildStores(ctx context.Context, cfg *config.Config, secrets *config.Secrets) (wallet.Store, stage.Store, error) {
	switch cfg.Storage.Driver {
	case "", "memory":
		return wallet.NewMemoryStore(), stage.NewMemoryStore(), nil
	case "mysql":
		walletStore, err := mysql.NewWalletStore(ctx, mysqlConfig(cfg, secrets))
		if err != nil {
			return nil, nil, err
		}
		return walletStore, mysql.NewStageStoreWithDB(walletStore.DB()), nil
	case "redis":
		// 钱包记录必须持久化，redis 驱动只把暂存层放进 Redis。
		walletStore, err := mysql.NewWalletStore(ctx, mysqlConfig(cfg, secrets))
		if err != nil {
			return nil, nil, err
		}
		stageStore, err := stage.NewRedisStore(ctx, stage.RedisConfig{
			Addr:     cfg.Storage.Redis.Address,
			Password: secrets.RedisPassword,
			DB:       cfg.Storage.Redis.DB,
			TTL:      time.Duration(cfg.Storage.Redis.TTLSeconds) * time.Second,
		})
		if err != nil {
			_ = walletStore.Close()
			return nil, nil, err
		}
		return walletStore, stageStore, nil
	default:
		return nil, nil, fmt.Errorf("未知的存储驱动: %s", cfg.Storage.Driver)
	}
}

func mysqlConfig(cfg *config.Config, secrets *config.Secrets) mysql.Config {
	return mysql.Config{
		DSN:             secrets.MySQLDSN,
		MaxOpenConns:    cfg.Storage.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.Storage.MySQL.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Storage.MySQL.ConnMaxLifetimeSeconds) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Storage.MySQL.ConnMaxIdleTimeSeconds) * time.Second,
	}
}

func buildQueue(cfg *config.Config, secrets *config.Secrets) (confirm.Queue, error) {
	switch cfg.Queue.Driver {
	case "none":
		// 同步确认：API 直接执行并流式返回进度。
		return nil, nil
	case "", "memory":
		return confirm.NewMemoryQueue(1024), nil
	case "redis":
		return confirm.NewRedisQueue(confirm.RedisQueueConfig{
			Address:   cfg.Queue.Redis.Address,
			Password:  secrets.RedisPassword,
			DB:        cfg.Queue.Redis.DB,
			Queue:     cfg.Queue.Redis.Queue,
			BlockWait: time.Duration(cfg.Queue.Redis.BlockWaitSeconds) * time.Second,
		})
	case "rabbitmq":
		return confirm.NewRabbitMQQueue(confirm.RabbitMQConfig{
			URL:        cfg.Queue.RabbitMQ.URL,
			Queue:      cfg.Queue.RabbitMQ.Queue,
			Prefetch:   cfg.Queue.RabbitMQ.Prefetch,
			Durable:    cfg.Queue.RabbitMQ.Durable,
			AutoDelete: cfg.Queue.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}
}

func buildNotifier(cfg *config.Config, secrets *config.Secrets) delivery.Notifier {
	if cfg.Delivery.WebhookEndpoint == "" {
		return delivery.NewLogNotifier()
	}
	webhook := delivery.NewWebhookNotifier(
		cfg.Delivery.WebhookEndpoint,
		secrets.WebhookToken,
		time.Duration(cfg.Delivery.WebhookTimeoutSeconds)*time.Second,
	)
	return delivery.NewFanout(delivery.NewLogNotifier(), webhook)
}

func buildAlertDispatcher(cfg *config.Config) alerting.Dispatcher {
	var notifiers []alerting.Notifier
	if cfg.Alerting.Slack.Enabled && cfg.Alerting.Slack.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.SlackNotifier{
			Sender:    alerting.NewWebhookSlackSender(cfg.Alerting.Slack.WebhookURL, 0),
			ChannelID: cfg.Alerting.Slack.ChannelID,
		})
	}
	if len(notifiers) == 0 {
		return nil
	}
	return alerting.NewFanout(notifiers...)
}
