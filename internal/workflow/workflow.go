// Package workflow 实现建立在会话缓存之上的有界重试流程。
//
// 串口数据经回调零散到达，流程在轮询节拍上推进：首个节拍发出请求，
// 之后每个节拍检查缓存是否就绪，超过固定节拍数仍未就绪即判超时。
// 传输层内部没有任何重试，等待策略全部集中在这里。
package workflow

import (
	"errors"

	"github.com/taoyao-code/bms-bridge/internal/protocol/seplos"
)

// Status 流程推进结果
type Status int

const (
	StatusPending Status = iota // 继续等待
	StatusDone                  // 成功完成
	StatusFailed                // 超时或写入失败
	StatusAborted               // 用户放弃
)

// DefaultTickLimit 默认节拍上限；第51个节拍仍未就绪即超时
const DefaultTickLimit = 50

// ErrTimeout 超过节拍上限
var ErrTimeout = errors.New("timeout waiting for response")

// RequestFunc 发起整页读请求
type RequestFunc func(p seplos.Page)

// BatteryView 流程需要的会话能力（session.Battery 满足）
type BatteryView interface {
	Value(key string) (float64, bool)
	Values() map[string]float64
	Forget(key string)
	WriteField(key string, value float64, unsafe bool) error
}

// ReadField 读单个字段：请求字段所在整页，等待键出现在缓存
type ReadField struct {
	Field   seplos.FieldDescriptor
	Result  float64
	request RequestFunc
	battery BatteryView
	ticks   int
	limit   int
}

// NewReadField 创建单字段读流程
func NewReadField(fd seplos.FieldDescriptor, request RequestFunc, battery BatteryView) *ReadField {
	return &ReadField{Field: fd, request: request, battery: battery, limit: DefaultTickLimit}
}

// Tick 推进一个节拍
func (w *ReadField) Tick() Status {
	w.ticks++
	if w.ticks == 1 {
		w.request(w.Field.Page)
		return StatusPending
	}
	if v, ok := w.battery.Value(w.Field.Key()); ok {
		w.Result = v
		return StatusDone
	}
	if w.ticks > w.limit {
		return StatusFailed
	}
	return StatusPending
}

// ReadAll 读全部页：请求三页，等待缓存字段数稳定
type ReadAll struct {
	request   RequestFunc
	battery   BatteryView
	ticks     int
	limit     int
	lastCount int
}

// NewReadAll 创建全量读流程
func NewReadAll(request RequestFunc, battery BatteryView) *ReadAll {
	return &ReadAll{request: request, battery: battery, limit: DefaultTickLimit}
}

// Tick 推进一个节拍
func (w *ReadAll) Tick() Status {
	w.ticks++
	if w.ticks == 1 {
		w.request(seplos.PageMain)
		w.request(seplos.PageCell)
		w.request(seplos.PageParam)
		return StatusPending
	}
	if w.ticks > w.limit {
		return StatusFailed
	}
	n := len(w.battery.Values())
	if n > w.lastCount {
		// 仍在接收
		w.lastCount = n
		return StatusPending
	}
	if n > 0 {
		return StatusDone
	}
	return StatusPending
}

// editPhase 编辑流程阶段
type editPhase int

const (
	phaseRead   editPhase = iota // 等待基线读
	phaseVerify                  // 写已发出，等待复读确认
)

// Edit 编辑参数：先读基线并请求外部确认，写入后复读验证。
// 验证阶段超时与基线阶段超时含义不同：前者写入结果未知。
type Edit struct {
	Field    seplos.FieldDescriptor
	NewValue float64
	Old      float64
	Verified float64

	request RequestFunc
	battery BatteryView
	confirm func(old, newValue float64) bool
	ticks   int
	limit   int
	phase   editPhase
	err     error
}

// NewEdit 创建编辑流程。confirm 在基线读完成后调用，返回 false 放弃
func NewEdit(fd seplos.FieldDescriptor, newValue float64, request RequestFunc, battery BatteryView, confirm func(old, newValue float64) bool) *Edit {
	return &Edit{Field: fd, NewValue: newValue, request: request, battery: battery, confirm: confirm, limit: DefaultTickLimit}
}

// Tick 推进一个节拍
func (w *Edit) Tick() Status {
	w.ticks++
	if w.ticks == 1 {
		w.request(seplos.PageParam)
		return StatusPending
	}
	if w.ticks > w.limit {
		w.err = ErrTimeout
		return StatusFailed
	}

	key := w.Field.Key()
	switch w.phase {
	case phaseRead:
		old, ok := w.battery.Value(key)
		if !ok {
			return StatusPending
		}
		w.Old = old
		if !w.confirm(old, w.NewValue) {
			return StatusAborted
		}
		// 安全检查已由人工确认替代；丢弃缓存让复读必须来自设备
		w.battery.Forget(key)
		if err := w.battery.WriteField(key, w.NewValue, true); err != nil {
			w.err = err
			return StatusFailed
		}
		w.request(seplos.PageParam)
		w.phase = phaseVerify
		return StatusPending
	case phaseVerify:
		if v, ok := w.battery.Value(key); ok {
			w.Verified = v
			return StatusDone
		}
		return StatusPending
	}
	return StatusPending
}

// Err 失败原因
func (w *Edit) Err() error {
	return w.err
}

// WriteOutcomeUnknown 超时发生在验证阶段：写请求已发出，
// 可能已经生效，只是没等到确认
func (w *Edit) WriteOutcomeUnknown() bool {
	return w.phase == phaseVerify
}
