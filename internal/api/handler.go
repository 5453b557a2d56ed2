// Package api 暴露电池状态查询与参数读写的HTTP接口。
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/bms-bridge/internal/protocol/seplos"
	"github.com/taoyao-code/bms-bridge/internal/session"
	"github.com/taoyao-code/bms-bridge/internal/storage"
	"github.com/taoyao-code/bms-bridge/internal/storage/models"
	pgstorage "github.com/taoyao-code/bms-bridge/internal/storage/pg"
)

// Handler 电池API处理器。repo 与 history 可为 nil，对应存储未启用。
type Handler struct {
	mgr     *session.Manager
	repo    storage.Repo
	history *pgstorage.MeasurementWriter
	logger  *zap.Logger
}

// NewHandler 创建API处理器
func NewHandler(mgr *session.Manager, repo storage.Repo, history *pgstorage.MeasurementWriter, logger *zap.Logger) *Handler {
	return &Handler{mgr: mgr, repo: repo, history: history, logger: logger}
}

// fieldInfo 字段表对外表示
type fieldInfo struct {
	Key         string  `json:"key"`
	Name        string  `json:"name"`
	Page        string  `json:"page"`
	Unit        string  `json:"unit,omitempty"`
	DeviceClass string  `json:"device_class,omitempty"`
	Precision   float64 `json:"precision"`
	Writable    bool    `json:"writable"`
}

// ListFields 字段表查询；?writable=true 只看可写参数
func (h *Handler) ListFields(c *gin.Context) {
	onlyWritable := c.Query("writable") == "true"

	var out []fieldInfo
	for _, fd := range seplos.Table() {
		if onlyWritable && !fd.Writable {
			continue
		}
		out = append(out, fieldInfo{
			Key:         fd.Key(),
			Name:        fd.Name,
			Page:        fd.Page.String(),
			Unit:        fd.Unit,
			DeviceClass: fd.DeviceClass,
			Precision:   fd.Precision,
			Writable:    fd.Writable,
		})
	}
	c.JSON(http.StatusOK, gin.H{"fields": out})
}

// ListBatteries 总线上观测到的电池
func (h *Handler) ListBatteries(c *gin.Context) {
	addrs := h.mgr.Addresses()
	out := make([]gin.H, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, gin.H{"address": a})
	}
	c.JSON(http.StatusOK, gin.H{"batteries": out})
}

// GetValues 一块电池的全部缓存值
func (h *Handler) GetValues(c *gin.Context) {
	b, ok := h.battery(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": b.Address(), "values": b.Values()})
}

// TriggerRead 发起参数页单字段读；结果异步出现在缓存里
func (h *Handler) TriggerRead(c *gin.Context) {
	b, ok := h.battery(c)
	if !ok {
		return
	}
	key := c.Param("key")
	if err := b.ReadField(key); err != nil {
		switch {
		case errors.Is(err, seplos.ErrUnknownField):
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown field"})
		case errors.Is(err, session.ErrReadUnsupported):
			c.JSON(http.StatusBadRequest, gin.H{"error": "single-field read is only supported for param fields"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "requested", "field": key})
}

// writeRequest 参数写请求体
type writeRequest struct {
	Value  float64 `json:"value"`
	Unsafe bool    `json:"unsafe"`
}

// WriteField 安全门保护下的参数写
func (h *Handler) WriteField(c *gin.Context) {
	b, ok := h.battery(c)
	if !ok {
		return
	}
	key := c.Param("key")

	var req writeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	old, hadOld := b.Value(key)
	err := b.WriteField(key, req.Value, req.Unsafe)
	h.audit(c, b.Address(), key, old, hadOld, req.Value, err)

	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent", "field": key, "value": req.Value})
}

// writeError 写入失败到HTTP状态码的映射
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, seplos.ErrUnknownField):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown field"})
	case errors.Is(err, seplos.ErrNotWritable):
		c.JSON(http.StatusBadRequest, gin.H{"error": "field is not writable"})
	case errors.Is(err, seplos.ErrNoBaseline):
		c.JSON(http.StatusConflict, gin.H{"error": "no baseline value cached yet, read the field first"})
	case errors.Is(err, seplos.ErrNoChange):
		c.JSON(http.StatusOK, gin.H{"status": "noop", "message": "value unchanged"})
	case errors.Is(err, seplos.ErrZeroGuard),
		errors.Is(err, seplos.ErrChangeTooLarge),
		errors.Is(err, seplos.ErrValueOutOfRange):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// audit 写入尝试落库（未启用数据库时跳过）
func (h *Handler) audit(c *gin.Context, addr byte, key string, old float64, hadOld bool, newValue float64, werr error) {
	if h.repo == nil {
		return
	}

	rec := &models.ParamWrite{
		CorrelationID: uuid.NewString(),
		Address:       int16(addr),
		FieldKey:      key,
		NewValue:      newValue,
		Outcome:       "sent",
	}
	if hadOld {
		rec.OldValue = &old
	}
	if werr != nil {
		rec.Outcome = "rejected"
		if errors.Is(werr, seplos.ErrNoChange) {
			rec.Outcome = "noop"
		}
		reason := werr.Error()
		rec.Reason = &reason
	}

	if err := h.repo.RecordParamWrite(c.Request.Context(), rec); err != nil {
		h.logger.Warn("param write audit failed", zap.Error(err))
	}
}

// GetHistory 字段历史测量值（需要启用数据库）
func (h *Handler) GetHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "measurement history is not enabled"})
		return
	}
	b, ok := h.battery(c)
	if !ok {
		return
	}
	key := c.Param("key")
	limit := 100
	if v := c.Query("limit"); v != "" {
		if vv, e := strconv.Atoi(v); e == nil {
			limit = vv
		}
	}

	rows, err := h.history.Recent(c.Request.Context(), b.Address(), key, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"measurements": rows})
}

// ListWrites 参数写入审计记录（需要启用数据库）
func (h *Handler) ListWrites(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "write audit is not enabled"})
		return
	}
	b, ok := h.battery(c)
	if !ok {
		return
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		if vv, e := strconv.Atoi(v); e == nil {
			limit = vv
		}
	}

	rows, err := h.repo.ListParamWrites(c.Request.Context(), b.Address(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"writes": rows})
}

// battery 解析路径里的电池地址并取会话；失败时已写出响应
func (h *Handler) battery(c *gin.Context) (*session.Battery, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 0 || id > 255 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid battery address"})
		return nil, false
	}
	b, ok := h.mgr.Battery(byte(id))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "battery not seen on the bus"})
		return nil, false
	}
	return b, true
}
