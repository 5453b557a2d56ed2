package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// Redis Key模板
	batteryValuesKey = "bms:battery:%d:values" // 最新字段值（Hash）
	batteryOnlineKey = "bms:battery:%d:online" // 上线时间（String）
)

// writeTimeout 单次镜像写入超时
const writeTimeout = 3 * time.Second

// mirrorBuffer 内存缓冲容量。整页解码一次最多产生几十条更新，
// 1024 足够扛住 Redis 短暂抖动。
const mirrorBuffer = 1024

// mirrorOp 一条待写入的镜像操作
type mirrorOp struct {
	addr   byte
	key    string
	value  float64
	online bool
}

// ValueMirror 把字段更新镜像到 Redis Hash，供外部系统按需拉取最新状态。
// 实现 outbound.Publisher。发布回调只做入队，网络写入由 Run 的后台
// 协程完成，解码路径上不碰 Redis；缓冲写满时丢弃新更新并告警
// （下一轮轮询会重新产生最新值）。
type ValueMirror struct {
	client *Client
	log    *zap.Logger
	ops    chan mirrorOp
}

// NewValueMirror 创建 Redis 最新值镜像，需要另行启动 Run
func NewValueMirror(client *Client, log *zap.Logger) *ValueMirror {
	return &ValueMirror{
		client: client,
		log:    log,
		ops:    make(chan mirrorOp, mirrorBuffer),
	}
}

// PublishUpdate 单个字段最新值入队
func (v *ValueMirror) PublishUpdate(addr byte, key string, value float64) {
	v.enqueue(mirrorOp{addr: addr, key: key, value: value})
}

// PublishOnline 电池上线时间入队
func (v *ValueMirror) PublishOnline(addr byte) {
	v.enqueue(mirrorOp{addr: addr, online: true})
}

// PublishDiscovery 元数据发现只对 MQTT 有意义
func (v *ValueMirror) PublishDiscovery(addr byte) {}

func (v *ValueMirror) enqueue(op mirrorOp) {
	select {
	case v.ops <- op:
	default:
		v.log.Warn("redis mirror buffer full, dropping update",
			zap.Uint8("battery", op.addr), zap.String("field", op.key))
	}
}

// Run 后台写入循环，ctx 取消时退出
func (v *ValueMirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-v.ops:
			v.apply(op)
		}
	}
}

func (v *ValueMirror) apply(op mirrorOp) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if op.online {
		if err := v.client.Set(ctx, fmt.Sprintf(batteryOnlineKey, op.addr),
			time.Now().Format(time.RFC3339), 0).Err(); err != nil {
			v.log.Warn("redis online marker failed", zap.Uint8("battery", op.addr), zap.Error(err))
		}
		return
	}
	if err := v.client.HSet(ctx, fmt.Sprintf(batteryValuesKey, op.addr), op.key, op.value).Err(); err != nil {
		v.log.Warn("redis value mirror failed",
			zap.Uint8("battery", op.addr), zap.String("field", op.key), zap.Error(err))
	}
}

// Values 读取一块电池的全部镜像值
func (v *ValueMirror) Values(ctx context.Context, addr byte) (map[string]string, error) {
	return v.client.HGetAll(ctx, fmt.Sprintf(batteryValuesKey, addr)).Result()
}
