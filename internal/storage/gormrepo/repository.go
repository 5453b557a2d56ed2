package gormrepo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/taoyao-code/bms-bridge/internal/storage"
	"github.com/taoyao-code/bms-bridge/internal/storage/models"
)

// Open 打开 PostgreSQL 连接并迁移表结构
func Open(dsn string, maxOpen int, maxLifetime time.Duration) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(maxLifetime)
	}

	if err := db.AutoMigrate(&models.Battery{}, &models.ParamWrite{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Repository 基于 GORM 的 storage.Repo 实现
type Repository struct {
	db *gorm.DB
}

// New 返回一个使用给定 *gorm.DB 的 Repo 实例
func New(db *gorm.DB) storage.Repo {
	return &Repository{db: db}
}

// EnsureBattery 若电池不存在则插入，存在则刷新 last_seen_at
func (r *Repository) EnsureBattery(ctx context.Context, addr byte) (*models.Battery, error) {
	now := time.Now()
	record := &models.Battery{
		Address:    int16(addr),
		LastSeenAt: &now,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"last_seen_at": now, "updated_at": now}),
		}).
		Create(record).Error
	if err != nil {
		return nil, err
	}

	var out models.Battery
	if err := r.db.WithContext(ctx).Where("address = ?", int16(addr)).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// TouchLastSeen 刷新电池最近在线时间
func (r *Repository) TouchLastSeen(ctx context.Context, addr byte, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Battery{}).
		Where("address = ?", int16(addr)).
		Update("last_seen_at", at).Error
}

// ListBatteries 全部已登记电池，按地址升序
func (r *Repository) ListBatteries(ctx context.Context) ([]models.Battery, error) {
	var out []models.Battery
	err := r.db.WithContext(ctx).Order("address asc").Find(&out).Error
	return out, err
}

// RecordParamWrite 记录一次参数写入尝试
func (r *Repository) RecordParamWrite(ctx context.Context, rec *models.ParamWrite) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// ListParamWrites 按电池地址倒序列出写入审计
func (r *Repository) ListParamWrites(ctx context.Context, addr byte, limit int) ([]models.ParamWrite, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.ParamWrite
	err := r.db.WithContext(ctx).
		Where("address = ?", int16(addr)).
		Order("id desc").Limit(limit).
		Find(&out).Error
	return out, err
}
