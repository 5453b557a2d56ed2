package pg

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const measurementsSchema = `
CREATE TABLE IF NOT EXISTS measurements (
    ts        TIMESTAMPTZ      NOT NULL,
    address   SMALLINT         NOT NULL,
    field_key TEXT             NOT NULL,
    value     DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_measurements_addr_key_ts
    ON measurements (address, field_key, ts DESC);
`

// Measurement 一条测量记录
type Measurement struct {
	Ts      time.Time `json:"ts"`
	Address int16     `json:"address"`
	Key     string    `json:"key"`
	Value   float64   `json:"value"`
}

// MeasurementWriter 测量值批量落库。字段更新先进内存缓冲，
// 后台按周期用 CopyFrom 批量写入，解码路径上不碰数据库。
// 实现 outbound.Publisher。
type MeasurementWriter struct {
	pool       *pgxpool.Pool
	flushEvery time.Duration
	log        *zap.Logger

	mu  sync.Mutex
	buf []Measurement
}

// NewMeasurementWriter 建表并创建批量写入器
func NewMeasurementWriter(ctx context.Context, pool *pgxpool.Pool, flushEvery time.Duration, log *zap.Logger) (*MeasurementWriter, error) {
	if _, err := pool.Exec(ctx, measurementsSchema); err != nil {
		return nil, err
	}
	if flushEvery <= 0 {
		flushEvery = 10 * time.Second
	}
	return &MeasurementWriter{pool: pool, flushEvery: flushEvery, log: log}, nil
}

// PublishUpdate 测量值入缓冲
func (w *MeasurementWriter) PublishUpdate(addr byte, key string, value float64) {
	w.mu.Lock()
	w.buf = append(w.buf, Measurement{Ts: time.Now(), Address: int16(addr), Key: key, Value: value})
	w.mu.Unlock()
}

// PublishOnline 上线事件由元数据仓库记录，这里无事可做
func (w *MeasurementWriter) PublishOnline(addr byte) {}

// PublishDiscovery 元数据发现只对 MQTT 有意义
func (w *MeasurementWriter) PublishDiscovery(addr byte) {}

// Run 周期刷盘，ctx 取消时做最后一次刷盘后返回
func (w *MeasurementWriter) Run(ctx context.Context) {
	ticker := time.NewTicker(w.flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.flush(context.Background())
			return
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *MeasurementWriter) flush(ctx context.Context) {
	w.mu.Lock()
	batch := w.buf
	w.buf = nil
	w.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	rows := make([][]interface{}, len(batch))
	for i, m := range batch {
		rows[i] = []interface{}{m.Ts, m.Address, m.Key, m.Value}
	}

	ctxFlush, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	n, err := w.pool.CopyFrom(ctxFlush,
		pgx.Identifier{"measurements"},
		[]string{"ts", "address", "field_key", "value"},
		pgx.CopyFromRows(rows))
	if err != nil {
		w.log.Error("measurement flush failed", zap.Int("rows", len(batch)), zap.Error(err))
		// 放回缓冲，下个周期重试
		w.mu.Lock()
		w.buf = append(batch, w.buf...)
		w.mu.Unlock()
		return
	}
	w.log.Debug("measurements flushed", zap.Int64("rows", n))
}

// Recent 按时间倒序查询某字段最近的测量值
func (w *MeasurementWriter) Recent(ctx context.Context, addr byte, key string, limit int) ([]Measurement, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := w.pool.Query(ctx,
		`SELECT ts, address, field_key, value FROM measurements
		 WHERE address = $1 AND field_key = $2
		 ORDER BY ts DESC LIMIT $3`,
		int16(addr), key, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Measurement
	for rows.Next() {
		var m Measurement
		if err := rows.Scan(&m.Ts, &m.Address, &m.Key, &m.Value); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
