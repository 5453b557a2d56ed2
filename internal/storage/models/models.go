package models

import (
	"time"
)

// 注意：
// - 不使用 gorm.Model，显式声明每个字段，避免隐式 DeletedAt

// Battery 映射 batteries 表，总线上观测到的电池
type Battery struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// 总线地址（Modbus 设备地址）
	Address int16 `gorm:"column:address;not null;uniqueIndex"`
	// 最近一次收到该地址的帧
	LastSeenAt *time.Time `gorm:"column:last_seen_at"`
	// 审计字段
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Battery) TableName() string { return "batteries" }

// ParamWrite 映射 param_writes 表，参数写入审计记录
type ParamWrite struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// 请求关联ID，同一次 API 调用产生的记录共享
	CorrelationID string `gorm:"column:correlation_id;type:text;not null;index"`
	Address       int16  `gorm:"column:address;not null"`
	FieldKey      string `gorm:"column:field_key;type:text;not null"`
	// 写入前缓存值，没有基线时为空
	OldValue *float64 `gorm:"column:old_value"`
	NewValue float64  `gorm:"column:new_value;not null"`
	// sent / rejected / noop
	Outcome string `gorm:"column:outcome;type:text;not null"`
	// 拒绝原因，成功时为空
	Reason    *string   `gorm:"column:reason;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (ParamWrite) TableName() string { return "param_writes" }
