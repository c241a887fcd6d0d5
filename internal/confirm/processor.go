package confirm

import (
	"context"
	"log/slog"
	"time"

	"OxVenta-Custody/internal/action"
	"OxVenta-Custody/internal/chain"
	"OxVenta-Custody/internal/delivery"
	xerrors "OxVenta-Custody/internal/errors"
	"OxVenta-Custody/internal/keycipher"
	"OxVenta-Custody/internal/observability/alerting"
	"OxVenta-Custody/internal/observability/metrics"
	"OxVenta-Custody/internal/stage"
	"OxVenta-Custody/internal/wallet"
	"OxVenta-Custody/pkg/logger"
)

// Runner 定义处理器所需的执行器能力。
type Runner interface {
	Confirm(ctx context.Context, topic, userID string, report action.Reporter) (*action.Outcome, error)
	Cancel(ctx context.Context, topic, userID string) error
}

// Processor 从队列消费确认/取消指令，交给执行器处理，并把过程消息
// 送回用户。
type Processor struct {
	runner      Runner
	consumer    Consumer
	notifier    delivery.Notifier
	alerter     alerting.Dispatcher
	workerCount int
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(runner Runner, consumer Consumer, notifier delivery.Notifier, opts ...ProcessorOption) *Processor {
	p := &Processor{
		runner:      runner,
		consumer:    consumer,
		notifier:    notifier,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.notifier == nil {
		p.notifier = delivery.NewLogNotifier()
	}
	return p
}

// Start 启动消费循环，阻塞直到 ctx 取消或队列出错。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置队列消费者")
	}
	if p.runner == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置执行器")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.Handle)
}

// Handle 处理一条队列任务。永远返回 nil：确认指令失败不重投，失败
// 路径通过用户通知、审计日志与告警收敛。
func (p *Processor) Handle(ctx context.Context, job Job) error {
	switch job.Verb {
	case action.VerbCancel:
		p.handleCancel(ctx, job)
	default:
		p.handleConfirm(ctx, job)
	}
	return nil
}

func (p *Processor) handleCancel(ctx context.Context, job Job) {
	if err := p.runner.Cancel(ctx, job.Topic, job.UserUUID); err != nil {
		logger.L().Error("取消暂存操作失败",
			slog.Any("error", err),
			slog.String("topic", job.Topic),
			slog.String("user_uuid", job.UserUUID))
		metrics.ObserveAction(job.Topic, "failed")
		p.notify(ctx, job.UserUUID, UserMessage(err))
		return
	}
	metrics.ObserveAction(job.Topic, "cancelled")
	p.notify(ctx, job.UserUUID, "Action cancelled. Nothing was sent to the chain.")
}

func (p *Processor) handleConfirm(ctx context.Context, job Job) {
	report := action.ReporterFunc(func(message string) {
		p.notify(ctx, job.UserUUID, message)
	})

	outcome, err := p.runner.Confirm(ctx, job.Topic, job.UserUUID, report)
	if err != nil {
		metrics.ObserveAction(job.Topic, confirmOutcome(err))
		logger.L().Warn("确认执行失败",
			slog.Any("error", err),
			slog.String("topic", job.Topic),
			slog.String("user_uuid", job.UserUUID),
			slog.String("error_code", string(xerrors.CodeOf(err))))
		p.notify(ctx, job.UserUUID, UserMessage(err))
		if xerrors.ShouldAlert(err) {
			p.emitAlert(ctx, job, err)
		}
		return
	}
	metrics.ObserveAction(job.Topic, "confirmed")
	logger.L().Info("确认执行完成",
		slog.String("topic", job.Topic),
		slog.String("user_uuid", job.UserUUID),
		slog.String("tx_hash", outcome.Result.Hash))
}

// confirmOutcome 区分业务拒绝与系统失败，喂给指标计数。
func confirmOutcome(err error) string {
	switch xerrors.CodeOf(err) {
	case action.CodeInsufficientBalance, action.CodePairExists, stage.CodeStageExpired, xerrors.CodeInvalidArgument:
		return "rejected"
	default:
		return "failed"
	}
}

// UserMessage 把内部错误翻译成可以直接回给用户的文案。回执超时
// 要明确告知“结果未知、先查浏览器”，绝不暗示可以直接重发。
func UserMessage(err error) string {
	coded, ok := xerrors.From(err)
	if !ok {
		return "The operation failed. Please try again later."
	}
	meta := coded.Metadata()
	switch coded.Code() {
	case action.CodeInsufficientBalance:
		if meta["required"] != "" && meta["available"] != "" {
			return "Insufficient balance: the transaction needs " + meta["required"] +
				" wei but the wallet holds " + meta["available"] + " wei. Nothing was sent."
		}
		return "Insufficient balance to cover gas and value. Nothing was sent."
	case action.CodePairExists:
		if meta["pair_address"] != "" {
			return "A pair for this token already exists at " + meta["pair_address"] + ". No transaction was sent."
		}
		return "A pair for this token already exists. No transaction was sent."
	case stage.CodeStageExpired:
		return "There is nothing staged to act on. It may have already been confirmed or cancelled."
	case chain.CodeReceiptTimeout:
		msg := "Transaction submitted but not confirmed in time. The outcome is unknown; check the explorer before doing anything else."
		if meta["explorer"] != "" {
			msg += " " + meta["explorer"]
		} else if meta["tx_hash"] != "" {
			msg += " Hash: " + meta["tx_hash"]
		}
		return msg
	case chain.CodeReverted:
		return "The transaction was mined but reverted on-chain. Gas was spent, state did not change."
	case chain.CodeEstimationFailed:
		return "The transaction would fail and was not sent."
	case chain.CodeBroadcastFailed:
		return "The node rejected the transaction. Nothing was broadcast."
	case chain.CodeUnsupportedNetwork:
		return "This network is not supported."
	case wallet.CodeWalletNotFound:
		return "No wallet exists for this network yet. Create one first."
	case keycipher.CodeDecryption:
		return "The stored key material could not be decrypted. Contact support."
	case xerrors.CodeInvalidArgument:
		return coded.Message()
	default:
		return "The operation failed. Please try again later."
	}
}

func (p *Processor) notify(ctx context.Context, userID, message string) {
	if err := p.notifier.Notify(ctx, userID, message); err != nil {
		logger.L().Error("投递用户通知失败",
			slog.Any("error", err),
			slog.String("user_uuid", userID))
	}
}

func (p *Processor) emitAlert(ctx context.Context, job Job, cause error) {
	if p.alerter == nil {
		return
	}
	coded, _ := xerrors.From(cause)
	event := alerting.Event{
		Code:       xerrors.CodeOf(cause),
		Message:    cause.Error(),
		Severity:   xerrors.SeverityOf(cause),
		Topic:      job.Topic,
		UserUUID:   job.UserUUID,
		OccurredAt: time.Now(),
	}
	if coded != nil {
		meta := coded.Metadata()
		event.Metadata = meta
		event.TxHash = meta["tx_hash"]
		event.Network = meta["network"]
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("topic", job.Topic),
			slog.String("user_uuid", job.UserUUID))
	}
}
