package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookSlackSender 通过 Slack incoming webhook 投递消息。
type WebhookSlackSender struct {
	url    string
	client *http.Client
}

// NewWebhookSlackSender 创建 WebhookSlackSender。
func NewWebhookSlackSender(url string, timeout time.Duration) *WebhookSlackSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSlackSender{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type slackWebhookPayload struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

// Send 实现 SlackSender 接口。
func (s *WebhookSlackSender) Send(ctx context.Context, channel, content string) error {
	body, err := json.Marshal(slackWebhookPayload{Channel: channel, Text: content})
	if err != nil {
		return fmt.Errorf("序列化 Slack 消息失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构造 Slack 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("投递 Slack 消息失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("Slack webhook 返回状态码 %d", resp.StatusCode)
	}
	return nil
}
