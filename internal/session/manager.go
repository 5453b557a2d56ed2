package session

import (
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/taoyao-code/bms-bridge/internal/metrics"
	"github.com/taoyao-code/bms-bridge/internal/protocol/seplos"
)

// AnnounceFunc 新电池上线回调，每个地址只调用一次
type AnnounceFunc func(addr byte)

// Manager 按总线地址管理电池会话。首次见到某地址的帧时惰性创建会话
// 并上报上线事件；进程生命周期内会话不销毁。
type Manager struct {
	sender     Sender
	onUpdate   UpdateFunc
	onAnnounce AnnounceFunc
	log        *zap.Logger
	m          *metrics.AppMetrics

	mu        sync.RWMutex
	batteries map[byte]*Battery
}

// NewManager 创建会话管理器
func NewManager(sender Sender, onUpdate UpdateFunc, onAnnounce AnnounceFunc, log *zap.Logger, m *metrics.AppMetrics) *Manager {
	return &Manager{
		sender:     sender,
		onUpdate:   onUpdate,
		onAnnounce: onAnnounce,
		log:        log,
		m:          m,
		batteries:  make(map[byte]*Battery),
	}
}

// HandleFrame 按帧首地址路由到对应电池会话
func (mgr *Manager) HandleFrame(frame []byte) {
	if len(frame) < 3 {
		return
	}
	b := mgr.ensure(seplos.DeviceID(frame))
	if err := b.HandleFrame(frame); err != nil {
		result := "malformed"
		if errors.Is(err, ErrUnknownShape) {
			result = "unknown_shape"
		}
		if mgr.m != nil {
			mgr.m.FramesTotal.WithLabelValues(result).Inc()
		}
		mgr.log.Error("frame decode failed", zap.Uint8("battery", b.Address()), zap.Error(err))
	}
}

func (mgr *Manager) ensure(addr byte) *Battery {
	mgr.mu.RLock()
	b, ok := mgr.batteries[addr]
	mgr.mu.RUnlock()
	if ok {
		return b
	}

	mgr.mu.Lock()
	if b, ok = mgr.batteries[addr]; !ok {
		b = NewBattery(addr, mgr.sender, mgr.onUpdate, mgr.log, mgr.m)
		mgr.batteries[addr] = b
		if mgr.m != nil {
			mgr.m.BatteriesSeen.Set(float64(len(mgr.batteries)))
		}
		mgr.mu.Unlock()

		mgr.log.Info("battery discovered", zap.Uint8("battery", addr))
		if mgr.onAnnounce != nil {
			mgr.onAnnounce(addr)
		}
		return b
	}
	mgr.mu.Unlock()
	return b
}

// Ensure 按地址取会话，不存在则创建（交互式流程在收到帧之前就需要会话）
func (mgr *Manager) Ensure(addr byte) *Battery {
	return mgr.ensure(addr)
}

// Battery 按地址取会话
func (mgr *Manager) Battery(addr byte) (*Battery, bool) {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	b, ok := mgr.batteries[addr]
	return b, ok
}

// Addresses 已见到的电池地址，升序
func (mgr *Manager) Addresses() []byte {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	out := make([]byte, 0, len(mgr.batteries))
	for addr := range mgr.batteries {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ForcePublishAll 所有会话清空发布缓存
func (mgr *Manager) ForcePublishAll() {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	for _, b := range mgr.batteries {
		b.ForcePublishAll()
	}
}
