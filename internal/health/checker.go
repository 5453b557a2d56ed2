package health

import (
	"context"
	"time"
)

// Status 组件健康状态
type Status string

const (
	StatusHealthy Status = "healthy"
	// StatusDegraded 还能提供服务但有异常：串口久未收帧、发送积压、下游变慢
	StatusDegraded Status = "degraded"
	// StatusUnhealthy 依赖不可用，无法提供对应功能
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult 单个组件的检查结果，Details 携带组件自述的诊断字段
type CheckResult struct {
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Latency time.Duration  `json:"latency"`
}

// Checker 组件健康检查。Check 必须尊重 ctx 超时，
// 单个慢组件不能拖垮整个 /health。
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}
