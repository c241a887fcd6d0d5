package action

import (
	"context"
	"encoding/base64"
	"strings"

	xerrors "OxVenta-Custody/internal/errors"
	"OxVenta-Custody/internal/stage"
	"OxVenta-Custody/pkg/logger"
)

// Proposal 是 propose 阶段的返回值：确认摘要加两个不透明令牌，
// 供聊天端渲染 confirm / cancel 两个按钮。
type Proposal struct {
	Action       *stage.StagedAction `json:"action"`
	Summary      string              `json:"summary"`
	ConfirmToken string              `json:"confirm_token"`
	CancelToken  string              `json:"cancel_token"`
}

// Verb 是令牌携带的用户决定。
type Verb string

const (
	VerbConfirm Verb = "confirm"
	VerbCancel  Verb = "cancel"
)

// Propose 校验参数、覆盖式暂存操作并返回确认提案。同一用户同一 topic
// 的旧暂存会被新提案替换。
func (e *Executor) Propose(ctx context.Context, topic, userID, network string, payload map[string]string) (*Proposal, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "user_uuid 不能为空")
	}
	handler, err := e.registry.Handler(topic)
	if err != nil {
		return nil, err
	}
	// 网络名在暂存前就要解析，不能等到确认阶段才发现配置缺失。
	if _, err := e.chains.Resolve(network); err != nil {
		return nil, err
	}

	normalized, summary, err := handler.Validate(payload)
	if err != nil {
		return nil, err
	}

	act := stage.NewStagedAction(topic, userID, network, normalized, summary)
	if err := e.stages.Stage(ctx, act); err != nil {
		return nil, err
	}

	logger.L().Info("action staged",
		"topic", topic,
		"user_uuid", userID,
		"network", network,
		"stage_uuid", act.UUID,
	)
	return &Proposal{
		Action:       act,
		Summary:      summary,
		ConfirmToken: EncodeToken(VerbConfirm, topic, userID),
		CancelToken:  EncodeToken(VerbCancel, topic, userID),
	}, nil
}

// EncodeToken 打包 (verb, topic, user) 为不透明令牌。
func EncodeToken(verb Verb, topic, userID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(string(verb) + "|" + topic + "|" + userID))
}

// ParseToken 还原令牌内容。
func ParseToken(token string) (Verb, string, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", "", "", xerrors.New(xerrors.CodeInvalidArgument, "非法的操作令牌")
	}
	parts := strings.SplitN(string(raw), "|", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return "", "", "", xerrors.New(xerrors.CodeInvalidArgument, "非法的操作令牌")
	}
	verb := Verb(parts[0])
	if verb != VerbConfirm && verb != VerbCancel {
		return "", "", "", xerrors.New(xerrors.CodeInvalidArgument, "非法的操作令牌")
	}
	return verb, parts[1], parts[2], nil
}
