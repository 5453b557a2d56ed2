package session

import (
	"encoding/hex"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/taoyao-code/bms-bridge/internal/metrics"
	"github.com/taoyao-code/bms-bridge/internal/protocol/seplos"
)

// Sender 发送通道：帧体入队，校验和由传输层追加
type Sender interface {
	SendFrame(body []byte)
}

// UpdateFunc 发布回调，仅对通过变化过滤的字段调用
type UpdateFunc func(addr byte, key string, value float64)

var (
	// ErrUnknownShape 响应长度对不上任何已知页，且没有挂起的单字段读
	ErrUnknownShape = errors.New("unrecognized response shape")
	// ErrReadUnsupported 主包/单体页不支持单字段读（整页轮询已覆盖）
	ErrReadUnsupported = errors.New("single-field read is only supported for param fields")
)

// publishEpsilon 变化过滤阈值：单体电压自然波动大约在这个量级，
// 小于它的变化不值得往下游发
const publishEpsilon = 0.003

// Battery 单块电池的会话状态：最近解码值、上次发布值、
// 在途单字段读上下文。帧解码路径串行执行，锁只防外部读取竞争。
type Battery struct {
	addr     byte
	sender   Sender
	onUpdate UpdateFunc
	log      *zap.Logger
	m        *metrics.AppMetrics

	mu        sync.Mutex
	current   map[string]float64
	published map[string]float64
	// pending 在途单字段读的描述符。2字节响应没有其他上下文可依附，
	// 只有一个槽位：上一个未决前再发一个单字段读会让响应张冠李戴。
	pending *seplos.FieldDescriptor
}

// NewBattery 创建电池会话
func NewBattery(addr byte, sender Sender, onUpdate UpdateFunc, log *zap.Logger, m *metrics.AppMetrics) *Battery {
	return &Battery{
		addr:      addr,
		sender:    sender,
		onUpdate:  onUpdate,
		log:       log,
		m:         m,
		current:   make(map[string]float64),
		published: make(map[string]float64),
	}
}

// Address 总线地址
func (b *Battery) Address() byte {
	return b.addr
}

// fieldUpdate 通过变化过滤、待通知下游的一条更新
type fieldUpdate struct {
	key   string
	value float64
}

// HandleFrame 解码一个校验通过的读响应帧并更新缓存。
// 页由寄存器数量判定；单字驱动在途单字段读的归属。
// 发布回调在锁外调用：慢速下游不能卡住缓存读取。
func (b *Battery) HandleFrame(frame []byte) error {
	if len(frame) < 3 {
		return seplos.ErrFrameTooShort
	}
	if seplos.DeviceID(frame) != b.addr {
		return seplos.ErrWrongDevice
	}
	if frame[1] != seplos.FuncReadRegisters {
		// 写响应等其他功能码当前不携带需要缓存的数据
		return nil
	}
	words, err := seplos.ParseReadResponse(frame)
	if err != nil {
		return err
	}

	var updates []fieldUpdate
	b.mu.Lock()
	if len(words) == 1 {
		updates, err = b.resolveSingleLocked(words[0], frame)
	} else if page, ok := seplos.PageForWordCount(len(words)); ok {
		updates = b.decodePageLocked(page, words)
	} else {
		err = ErrUnknownShape
	}
	b.mu.Unlock()

	b.notify(updates)
	return err
}

func (b *Battery) decodePageLocked(page seplos.Page, words []uint16) []fieldUpdate {
	values := seplos.DecodePage(page, words)
	if page == seplos.PageMain {
		seplos.DeriveMain(values)
	}
	// 按表序写缓存并发布，保证派生字段排在原始字段之后
	var updates []fieldUpdate
	for _, fd := range seplos.Table() {
		if fd.Page != page {
			continue
		}
		k := fd.Key()
		v, ok := values[k]
		if !ok {
			continue
		}
		b.current[k] = v
		if b.recordPublishLocked(k, v) {
			updates = append(updates, fieldUpdate{key: k, value: v})
		}
	}
	return updates
}

func (b *Battery) resolveSingleLocked(raw uint16, frame []byte) ([]fieldUpdate, error) {
	if b.pending == nil {
		b.log.Warn("dropping single-register response with no pending read",
			zap.String("frame", hex.EncodeToString(frame)))
		return nil, ErrUnknownShape
	}
	fd := *b.pending
	b.pending = nil

	v := seplos.DecodeValue(fd, raw)
	k := fd.Key()
	b.current[k] = v
	b.log.Info("single field read", zap.String("field", k), zap.Float64("value", v))
	if !b.recordPublishLocked(k, v) {
		return nil, nil
	}
	return []fieldUpdate{{key: k, value: v}}, nil
}

// recordPublishLocked 变化过滤：没发布过、或与上次发布差异达到阈值
// 才记为已发布并返回 true，实际通知由调用方在锁外完成
func (b *Battery) recordPublishLocked(key string, v float64) bool {
	if old, ok := b.published[key]; ok {
		if v == old {
			return false
		}
		diff := v - old
		if diff < 0 {
			diff = -diff
		}
		if diff < publishEpsilon {
			return false
		}
	}
	b.published[key] = v
	if b.m != nil {
		b.m.PublishTotal.Inc()
	}
	return true
}

func (b *Battery) notify(updates []fieldUpdate) {
	if b.onUpdate == nil {
		return
	}
	for _, u := range updates {
		b.onUpdate(b.addr, u.key, u.value)
	}
}

// ReadField 发起参数页单寄存器读，并记录在途描述符供响应归属。
// 主包/单体字段靠整页轮询获得，不支持单读。
func (b *Battery) ReadField(key string) error {
	fd, ok := seplos.Lookup(key)
	if !ok {
		return seplos.ErrUnknownField
	}
	if fd.Page != seplos.PageParam {
		return ErrReadUnsupported
	}

	b.mu.Lock()
	if b.pending != nil {
		b.log.Warn("issuing single-field read while another is pending, the previous response will be misattributed",
			zap.String("pending", b.pending.Key()), zap.String("new", key))
	}
	b.pending = &fd
	b.mu.Unlock()

	b.sender.SendFrame(seplos.ReadFieldRequest(b.addr, byte(fd.Register)))
	return nil
}

// WriteField 安全门保护下的参数写。unsafe 跳过安全门（不跳过范围检查），
// 供交互式确认过的流程使用。
func (b *Battery) WriteField(key string, value float64, unsafe bool) error {
	fd, ok := seplos.Lookup(key)
	if !ok {
		b.countWrite("rejected")
		return seplos.ErrUnknownField
	}
	if !fd.Writable || fd.Page != seplos.PageParam {
		b.countWrite("rejected")
		return seplos.ErrNotWritable
	}

	if !unsafe {
		b.mu.Lock()
		old, have := b.current[key]
		b.mu.Unlock()
		if !have {
			b.countWrite("rejected")
			return seplos.ErrNoBaseline
		}
		if err := seplos.CheckWrite(old, value); err != nil {
			if errors.Is(err, seplos.ErrNoChange) {
				b.countWrite("noop")
				b.log.Info("no need to update, value unchanged", zap.String("field", key))
			} else {
				b.countWrite("rejected")
				b.log.Error("refusing parameter write",
					zap.String("field", key), zap.Float64("old", old), zap.Float64("new", value), zap.Error(err))
			}
			return err
		}
	}

	raw, err := seplos.EncodeValue(fd, value)
	if err != nil {
		b.countWrite("rejected")
		b.log.Error("parameter value out of range", zap.String("field", key), zap.Float64("value", value))
		return err
	}

	req := seplos.WriteFieldRequest(b.addr, byte(fd.Register), raw)
	b.log.Debug("sending parameter write", zap.String("frame", hex.EncodeToString(req)))
	b.sender.SendFrame(req)
	b.countWrite("sent")
	return nil
}

func (b *Battery) countWrite(outcome string) {
	if b.m != nil {
		b.m.WritesTotal.WithLabelValues(outcome).Inc()
	}
}

// Value 读取缓存值
func (b *Battery) Value(key string) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.current[key]
	return v, ok
}

// Values 缓存快照
func (b *Battery) Values() map[string]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]float64, len(b.current))
	for k, v := range b.current {
		out[k] = v
	}
	return out
}

// Forget 丢弃一个缓存值（编辑流程写后复读前使用）
func (b *Battery) Forget(key string) {
	b.mu.Lock()
	delete(b.current, key)
	b.mu.Unlock()
}

// ForcePublishAll 清空已发布缓存，下一轮解码将全量重新发布。
// 周期性调用，兜底下游丢失的更新。
func (b *Battery) ForcePublishAll() {
	b.mu.Lock()
	b.published = make(map[string]float64)
	b.mu.Unlock()
}
