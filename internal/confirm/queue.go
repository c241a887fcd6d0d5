// Package confirm 实现确认/取消指令的异步处理管道：HTTP 层只负责把
// 指令投递进队列，真正的链上执行由后台 worker 完成。队列载荷只携带
// 意图坐标（topic + 用户），具体参数仍留在暂存层，由执行器原子取走。
package confirm

import (
	"context"
	"encoding/json"

	"OxVenta-Custody/internal/action"
	xerrors "OxVenta-Custody/internal/errors"
)

// Job 描述一条待执行的确认或取消指令。
type Job struct {
	Topic    string      `json:"topic"`
	UserUUID string      `json:"user_uuid"`
	Verb     action.Verb `json:"verb"`
}

// Encode 将任务编码为队列载荷。
func (j Job) Encode() (string, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeQueueFailure, err, "序列化队列任务失败")
	}
	return string(data), nil
}

// DecodeJob 从队列载荷解析任务。
func DecodeJob(payload string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return Job{}, xerrors.Wrap(xerrors.CodeQueueFailure, err, "解析队列任务失败")
	}
	if job.Topic == "" || job.UserUUID == "" {
		return Job{}, xerrors.New(xerrors.CodeQueueFailure, "队列任务缺少 topic 或用户标识")
	}
	if job.Verb != action.VerbConfirm && job.Verb != action.VerbCancel {
		return Job{}, xerrors.New(xerrors.CodeQueueFailure, "队列任务携带未知指令: "+string(job.Verb))
	}
	return job, nil
}

// Handler 处理一条任务。返回错误不会触发重投：确认类任务一旦可能已经
// 广播，重投就有重复上链的风险，失败只记录与告警。
type Handler func(ctx context.Context, job Job) error

// Producer 负责投递任务。
type Producer interface {
	Publish(ctx context.Context, job Job) error
	Close() error
}

// Consumer 负责消费任务。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备投递与消费能力。
type Queue interface {
	Producer
	Consumer
}
