package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/bms-bridge/internal/transport"
)

// staleAfter 这么久没有任何校验通过的帧即认为总线失联
const staleAfter = 30 * time.Second

// SerialChecker 串口链路健康检查器：看最近是否还有帧进来、
// 发送队列是否积压
type SerialChecker struct {
	tr        *transport.Transport
	warnDepth int
}

// NewSerialChecker 创建串口健康检查器
func NewSerialChecker(tr *transport.Transport, warnDepth int) *SerialChecker {
	if warnDepth <= 0 {
		warnDepth = 5
	}
	return &SerialChecker{tr: tr, warnDepth: warnDepth}
}

// Name 返回检查器名称
func (c *SerialChecker) Name() string {
	return "serial"
}

// Check 执行健康检查
func (c *SerialChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	last := c.tr.LastFrameAt()
	depth := c.tr.QueueDepth()

	status := StatusHealthy
	message := "ok"

	switch {
	case last.IsZero():
		// 启动后还没收到过帧；电池可能休眠，不算故障
		status = StatusDegraded
		message = "no frames received yet"
	case time.Since(last) > staleAfter:
		status = StatusDegraded
		message = fmt.Sprintf("no frames for %s", time.Since(last).Round(time.Second))
	case depth > c.warnDepth:
		status = StatusDegraded
		message = "outbound queue backlog"
	}

	details := map[string]interface{}{
		"queue_depth": depth,
	}
	if !last.IsZero() {
		details["last_frame_at"] = last.Format(time.RFC3339)
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: details,
		Latency: time.Since(start),
	}
}
