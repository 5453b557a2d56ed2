// Package storage 定义持久层接口；实现见 gormrepo（元数据）与 pg（测量值热路径）。
package storage

import (
	"context"
	"time"

	"github.com/taoyao-code/bms-bridge/internal/storage/models"
)

// Repo 电池元数据与写入审计的持久层接口
type Repo interface {
	// EnsureBattery 按总线地址登记电池，已存在则刷新 last_seen_at
	EnsureBattery(ctx context.Context, addr byte) (*models.Battery, error)
	// TouchLastSeen 刷新电池最近在线时间
	TouchLastSeen(ctx context.Context, addr byte, at time.Time) error
	// ListBatteries 全部已登记电池，按地址升序
	ListBatteries(ctx context.Context) ([]models.Battery, error)
	// RecordParamWrite 记录一次参数写入尝试
	RecordParamWrite(ctx context.Context, rec *models.ParamWrite) error
	// ListParamWrites 按电池地址倒序列出写入审计
	ListParamWrites(ctx context.Context, addr byte, limit int) ([]models.ParamWrite, error)
}
