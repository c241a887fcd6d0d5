// Package stage 实现两段式执行里的暂存层：敏感操作先连同全部参数
// 暂存，待用户明确 confirm 后才会上链。暂存键为 "topic:user_uuid"，
// 因此同一用户在同一 topic 下永远只有一条待确认操作。
package stage

import (
	"time"

	"github.com/google/uuid"

	xerrors "OxVenta-Custody/internal/errors"
)

// StagedAction 是一条待确认操作。Payload 在暂存时已通过参数校验，
// 确认阶段只需重新校验链上前置条件（余额、pair 是否已存在等）。
type StagedAction struct {
	UUID      string            `json:"uuid"`
	Topic     string            `json:"topic"`
	UserUUID  string            `json:"user_uuid"`
	Network   string            `json:"network"`
	Payload   map[string]string `json:"payload"`
	Summary   string            `json:"summary"`
	CreatedAt int64             `json:"created_at"`
}

// NewStagedAction 构造一条暂存记录并分配 UUID。
func NewStagedAction(topic, userID, network string, payload map[string]string, summary string) *StagedAction {
	return &StagedAction{
		UUID:      uuid.NewString(),
		Topic:     topic,
		UserUUID:  userID,
		Network:   network,
		Payload:   payload,
		Summary:   summary,
		CreatedAt: time.Now().Unix(),
	}
}

// Key 返回暂存键。
func (a *StagedAction) Key() string {
	return Key(a.Topic, a.UserUUID)
}

// Key 拼接暂存键 "topic:user_uuid"。
func Key(topic, userID string) string {
	return topic + ":" + userID
}

// CodeStageExpired 表示确认/取消时暂存记录已不存在。
const CodeStageExpired xerrors.Code = "STAGE_EXPIRED"

// ErrStageExpired 在暂存记录缺失时返回：可能已被确认、已被取消，
// 或被同 topic 的新操作覆盖后又消费掉。
var ErrStageExpired = xerrors.New(CodeStageExpired, "staged action not found")

func init() {
	xerrors.Register(CodeStageExpired, xerrors.Attributes{
		Message:   "staged action not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}
