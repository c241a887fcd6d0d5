// Package delivery 把执行进度消息送回用户所在的渠道（聊天后端的
// webhook，或仅落日志）。
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	xerrors "OxVenta-Custody/internal/errors"
	"OxVenta-Custody/pkg/logger"
)

// Notifier 将一条用户可见消息投递给指定用户。
type Notifier interface {
	Notify(ctx context.Context, userID, message string) error
}

// LogNotifier 把消息写进结构化日志，用于开发与测试环境。
type LogNotifier struct{}

// NewLogNotifier 创建 LogNotifier。
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify 实现 Notifier 接口。
func (n *LogNotifier) Notify(_ context.Context, userID, message string) error {
	logger.L().Info("user notification", "user_uuid", userID, "message", message)
	return nil
}

// WebhookNotifier 把消息 POST 给聊天后端。
type WebhookNotifier struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewWebhookNotifier 创建 WebhookNotifier。
func NewWebhookNotifier(endpoint, token string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

type webhookPayload struct {
	UserUUID string `json:"user_uuid"`
	Message  string `json:"message"`
}

// Notify 实现 Notifier 接口。
func (n *WebhookNotifier) Notify(ctx context.Context, userID, message string) error {
	body, err := json.Marshal(webhookPayload{UserUUID: userID, Message: message})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "序列化通知消息失败")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "构造通知请求失败")
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "投递通知失败", xerrors.WithRetryable(true))
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return xerrors.New(xerrors.CodeQueueFailure,
			fmt.Sprintf("通知回调返回状态码 %d", resp.StatusCode), xerrors.WithRetryable(true))
	}
	return nil
}

// Fanout 把消息同时投递给多个 Notifier。
type Fanout struct {
	notifiers []Notifier
}

// NewFanout 创建 Fanout。
func NewFanout(notifiers ...Notifier) *Fanout {
	kept := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			kept = append(kept, n)
		}
	}
	return &Fanout{notifiers: kept}
}

// Notify 实现 Notifier 接口。
func (f *Fanout) Notify(ctx context.Context, userID, message string) error {
	var errs []error
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, userID, message); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
