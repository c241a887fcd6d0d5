// Package api 暴露 REST 接口：创建/查询托管钱包、暂存操作提案、
// 基于不透明令牌的确认与取消，以及健康检查与指标端点。
package api
