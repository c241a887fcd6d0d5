package stage

import "context"

// Store 抽象暂存层。实现必须保证 Stage 的覆盖写与 Take 的
// 取走即删除都是原子操作，并发的重复确认至多有一方拿到记录。
type Store interface {
	// Stage 按键覆盖写入：同键已有记录时无条件替换为新记录。
	Stage(ctx context.Context, action *StagedAction) error
	// Peek 只读返回暂存记录，不存在时返回 ErrStageExpired。
	Peek(ctx context.Context, topic, userID string) (*StagedAction, error)
	// Take 原子地取走并删除暂存记录，不存在时返回 ErrStageExpired。
	Take(ctx context.Context, topic, userID string) (*StagedAction, error)
	// Clear 删除暂存记录。记录本就不存在也视为成功。
	Clear(ctx context.Context, topic, userID string) error
	Close() error
}
