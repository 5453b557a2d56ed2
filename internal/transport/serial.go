// Package transport 管理与BMS的半双工串口会话。
//
// 协议帧之间以至少3.5字符（约1ms）的线路静默分隔，主机侧无法可靠观测
// 这么短的间隙，所以用读超时近似：0.1s 读不到新字节即认为一帧结束。
// 作为主站我们掌握请求节奏，发送侧节流到 0.3s 一帧，远大于判定窗口，
// 配合超时切帧工作稳定。
package transport

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/taoyao-code/bms-bridge/internal/metrics"
	"github.com/taoyao-code/bms-bridge/internal/protocol/seplos"
)

// Port 串口抽象，go.bug.st/serial.Port 满足该接口；测试用内存实现替换
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Config 传输层配置
type Config struct {
	Device      string
	ReadTimeout time.Duration // 帧间静默判定窗口
	WriteEvery  time.Duration // 发送节流间隔
	PollPeriod  time.Duration // 轮询定时器周期
	WarnDepth   int           // 发送队列积压告警阈值
}

func (c *Config) applyDefaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 100 * time.Millisecond
	}
	if c.WriteEvery <= 0 {
		c.WriteEvery = 300 * time.Millisecond
	}
	if c.PollPeriod <= 0 {
		c.PollPeriod = 2 * time.Second
	}
	if c.WarnDepth <= 0 {
		c.WarnDepth = 5
	}
}

// Transport 串口帧传输：读协程按静默切帧并校验，写协程节流发送，
// 轮询协程周期触发回调。三者只通过发送队列与帧回调交互。
type Transport struct {
	cfg     Config
	port    Port
	queue   Queue
	onFrame func([]byte)
	onPoll  func()
	log     *zap.Logger
	m       *metrics.AppMetrics

	lastFrame atomic.Int64 // 最近一个校验通过帧的到达时间（UnixNano）
}

// Open 按协议固定线路参数（19200 8N1）打开串口并构造传输层
func Open(cfg Config, onFrame func([]byte), onPoll func(), log *zap.Logger, m *metrics.AppMetrics) (*Transport, error) {
	port, err := serial.Open(cfg.Device, &serial.Mode{
		BaudRate: seplos.BaudRate,
		DataBits: seplos.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Device, err)
	}
	return New(port, cfg, onFrame, onPoll, log, m), nil
}

// New 用已打开的端口构造传输层（测试入口）
func New(port Port, cfg Config, onFrame func([]byte), onPoll func(), log *zap.Logger, m *metrics.AppMetrics) *Transport {
	cfg.applyDefaults()
	return &Transport{cfg: cfg, port: port, onFrame: onFrame, onPoll: onPoll, log: log, m: m}
}

// Run 启动读/写/轮询三个协程并阻塞，直到 ctx 取消或串口失效。
// 串口错误不可本地恢复，返回错误交由进程级重启策略处理。
func (t *Transport) Run(ctx context.Context) error {
	if err := t.port.SetReadTimeout(t.cfg.ReadTimeout); err != nil {
		return fmt.Errorf("set read timeout: %w", err)
	}

	readErr := make(chan error, 1)
	go func() { readErr <- t.readLoop() }()
	go t.writeLoop(ctx)
	go t.pollLoop(ctx)

	select {
	case <-ctx.Done():
		_ = t.port.Close()
		<-readErr
		return nil
	case err := <-readErr:
		_ = t.port.Close()
		return err
	}
}

// Send 组帧（参数按16位大端展开）、追加校验和并入队
func (t *Transport) Send(addr, fn byte, words ...uint16) {
	t.SendFrame(seplos.BuildRequest(addr, fn, words...))
}

// SendFrame 为帧体追加校验和并入队。
// 帧体本身已带合法校验和说明调用方重复组帧，拒绝入队防止双重校验和。
func (t *Transport) SendFrame(body []byte) {
	if seplos.VerifyChecksum(body) {
		t.log.Error("refusing to enqueue frame that already carries a checksum",
			zap.String("frame", hex.EncodeToString(body)))
		return
	}
	t.SendRaw(seplos.AppendChecksum(body))
}

// SendRaw 入队已带校验和的完整帧
func (t *Transport) SendRaw(frame []byte) {
	t.queue.Push(frame)
	t.m.OutboundQueueDepth.Set(float64(t.queue.Depth()))
}

// QueueDepth 当前发送队列深度
func (t *Transport) QueueDepth() int {
	return t.queue.Depth()
}

// LastFrameAt 最近一个校验通过帧的到达时间；从未收到过帧时为零值
func (t *Transport) LastFrameAt() time.Time {
	ns := t.lastFrame.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// readLoop 读侧唯一消费者：累积字节，读超时即按帧处理。
// 校验失败的帧丢弃并记录原始字节，保持读循环存活。
func (t *Transport) readLoop() error {
	buf := make([]byte, 64)
	var frame []byte
	for {
		n, err := t.port.Read(buf)
		if err != nil {
			return fmt.Errorf("serial read: %w", err)
		}
		if n > 0 {
			frame = append(frame, buf[:n]...)
			t.m.SerialBytesIn.Add(float64(n))
			continue
		}
		// 读超时：帧间静默已满，缓冲里如果有数据就是一个完整帧
		if len(frame) == 0 {
			continue
		}
		if seplos.VerifyChecksum(frame) {
			t.lastFrame.Store(time.Now().UnixNano())
			t.m.FramesTotal.WithLabelValues("ok").Inc()
			t.onFrame(frame)
		} else {
			t.m.FramesTotal.WithLabelValues("checksum_error").Inc()
			t.log.Warn("discarding frame with checksum failure",
				zap.String("frame", hex.EncodeToString(frame)))
		}
		frame = nil
	}
}

// writeLoop 写侧唯一生产者：固定节奏下每次最多发一帧
func (t *Transport) writeLoop(ctx context.Context) {
	limiter := rate.NewLimiter(rate.Every(t.cfg.WriteEvery), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if frame, ok := t.queue.Pop(); ok {
			if _, err := t.port.Write(frame); err != nil {
				t.log.Error("serial write failed", zap.Error(err))
			} else {
				t.m.SerialBytesOut.Add(float64(len(frame)))
			}
		}
		depth := t.queue.Depth()
		t.m.OutboundQueueDepth.Set(float64(depth))
		if depth > t.cfg.WarnDepth {
			t.log.Warn("not keeping up with outgoing frames", zap.Int("queued", depth))
		}
	}
}

// pollLoop 周期触发轮询回调，与读写节奏相互独立
func (t *Transport) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.PollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.m.PollTicksTotal.Inc()
			if t.onPoll != nil {
				t.onPoll()
			}
		}
	}
}
