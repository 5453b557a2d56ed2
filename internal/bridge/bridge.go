// Package bridge 将串口传输、会话管理与发布者装配成常驻轮询服务。
package bridge

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/bms-bridge/internal/config"
	"github.com/taoyao-code/bms-bridge/internal/metrics"
	"github.com/taoyao-code/bms-bridge/internal/outbound"
	"github.com/taoyao-code/bms-bridge/internal/protocol/seplos"
	"github.com/taoyao-code/bms-bridge/internal/session"
	"github.com/taoyao-code/bms-bridge/internal/transport"
)

// Bridge 常驻模式：周期轮询整页数据，解码后经变化过滤推给发布者
type Bridge struct {
	tr             *transport.Transport
	mgr            *session.Manager
	pollAddr       byte
	republishEvery time.Duration
	paramDone      atomic.Bool
	log            *zap.Logger
}

// New 打开串口并装配桥接服务
func New(serialCfg cfgpkg.SerialConfig, pollCfg cfgpkg.PollConfig, pub outbound.Publisher, log *zap.Logger, m *metrics.AppMetrics) (*Bridge, error) {
	br := &Bridge{
		pollAddr:       byte(serialCfg.PollAddress),
		republishEvery: pollCfg.RepublishEvery,
		log:            log,
	}

	tr, err := transport.Open(transport.Config{
		Device:      serialCfg.Device,
		ReadTimeout: serialCfg.ReadTimeout,
		WriteEvery:  serialCfg.WriteEvery,
		PollPeriod:  pollCfg.Period,
		WarnDepth:   serialCfg.WarnDepth,
	}, br.handleFrame, br.pollTick, log, m)
	if err != nil {
		return nil, err
	}
	br.tr = tr

	br.mgr = session.NewManager(tr,
		func(addr byte, key string, value float64) { pub.PublishUpdate(addr, key, value) },
		func(addr byte) {
			pub.PublishOnline(addr)
			pub.PublishDiscovery(addr)
		},
		log, m)
	return br, nil
}

// Run 阻塞运行，直到 ctx 取消或串口失效
func (br *Bridge) Run(ctx context.Context) error {
	if br.republishEvery > 0 {
		go br.republishLoop(ctx)
	}
	return br.tr.Run(ctx)
}

// Manager 会话管理器（HTTP API 使用）
func (br *Bridge) Manager() *session.Manager {
	return br.mgr
}

// Transport 底层传输（健康检查使用）
func (br *Bridge) Transport() *transport.Transport {
	return br.tr
}

func (br *Bridge) handleFrame(frame []byte) {
	br.mgr.HandleFrame(frame)
}

// pollTick 每个周期请求主包页与单体页；参数页基本不变，
// 只在首个周期请求一次，之后按需单读。
func (br *Bridge) pollTick() {
	if br.paramDone.CompareAndSwap(false, true) {
		br.tr.Send(br.pollAddr, seplos.FuncReadRegisters, seplos.ParamBase, seplos.ParamRegisters)
	}
	br.tr.Send(br.pollAddr, seplos.FuncReadRegisters, seplos.MainBase, seplos.MainRegisters)
	br.tr.Send(br.pollAddr, seplos.FuncReadRegisters, seplos.CellBase, seplos.CellRegisters)
}

// republishLoop 周期清空发布缓存，兜底下游错过的更新
func (br *Bridge) republishLoop(ctx context.Context) {
	ticker := time.NewTicker(br.republishEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			br.log.Debug("forcing full republish")
			br.mgr.ForcePublishAll()
		}
	}
}
