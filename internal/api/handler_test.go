package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/bms-bridge/internal/api/middleware"
	"github.com/taoyao-code/bms-bridge/internal/protocol/seplos"
	"github.com/taoyao-code/bms-bridge/internal/session"
)

type nopSender struct{}

func (nopSender) SendFrame(body []byte) {}

// pageFrame 把整页寄存器字组装成带校验和的读响应帧
func pageFrame(addr byte, words []uint16) []byte {
	body := []byte{addr, seplos.FuncReadRegisters, byte(2 * len(words))}
	for _, w := range words {
		body = append(body, byte(w>>8), byte(w&0xFF))
	}
	return seplos.AppendChecksum(body)
}

func newTestRouter(t *testing.T, authCfg middleware.AuthConfig) (*gin.Engine, *session.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mgr := session.NewManager(nopSender{}, nil, nil, zap.NewNop(), nil)
	r := gin.New()
	RegisterRoutes(r, mgr, nil, nil, authCfg, zap.NewNop())
	return r, mgr
}

// feedMainPage 让指定地址的电池出现在总线上并带上主包数据
func feedMainPage(mgr *session.Manager, addr byte) {
	words := make([]uint16, seplos.MainRegisters)
	words[0] = 3281
	words[5] = 855
	mgr.HandleFrame(pageFrame(addr, words))
}

// feedParamBaseline 灌入参数页基线
func feedParamBaseline(t *testing.T, mgr *session.Manager, addr byte, key string, raw uint16) {
	t.Helper()
	fd, ok := seplos.Lookup(key)
	require.True(t, ok)
	words := make([]uint16, seplos.ParamRegisters)
	words[fd.Register] = raw
	mgr.HandleFrame(pageFrame(addr, words))
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListFields(t *testing.T) {
	r, _ := newTestRouter(t, middleware.AuthConfig{})

	w := doJSON(r, http.MethodGet, "/api/fields", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Fields []fieldInfo `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, len(seplos.Table()), len(resp.Fields))
}

func TestListFieldsWritableOnly(t *testing.T) {
	r, _ := newTestRouter(t, middleware.AuthConfig{})

	w := doJSON(r, http.MethodGet, "/api/fields?writable=true", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Fields []fieldInfo `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Fields)
	for _, f := range resp.Fields {
		assert.True(t, f.Writable, "field %s", f.Key)
		assert.Equal(t, "param", f.Page)
	}
}

func TestListBatteries(t *testing.T) {
	r, mgr := newTestRouter(t, middleware.AuthConfig{})

	w := doJSON(r, http.MethodGet, "/api/batteries", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"batteries":[]}`, w.Body.String())

	feedMainPage(mgr, 0x00)
	feedMainPage(mgr, 0x02)

	w = doJSON(r, http.MethodGet, "/api/batteries", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"batteries":[{"address":0},{"address":2}]}`, w.Body.String())
}

func TestGetValues(t *testing.T) {
	r, mgr := newTestRouter(t, middleware.AuthConfig{})
	feedMainPage(mgr, 0x00)

	w := doJSON(r, http.MethodGet, "/api/batteries/0/values", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Address int                `json:"address"`
		Values  map[string]float64 `json:"values"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 32.81, resp.Values["pack_voltage"])
	assert.Equal(t, 85.5, resp.Values["soc"])
}

func TestGetValuesUnknownBattery(t *testing.T) {
	r, _ := newTestRouter(t, middleware.AuthConfig{})
	w := doJSON(r, http.MethodGet, "/api/batteries/9/values", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetValuesBadAddress(t *testing.T) {
	r, _ := newTestRouter(t, middleware.AuthConfig{})
	for _, path := range []string{"/api/batteries/abc/values", "/api/batteries/300/values"} {
		w := doJSON(r, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestTriggerRead(t *testing.T) {
	r, mgr := newTestRouter(t, middleware.AuthConfig{})
	feedMainPage(mgr, 0x00)

	w := doJSON(r, http.MethodPost, "/api/batteries/0/fields/battery_high_voltage_recovery/read", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	// 主包字段不支持单读
	w = doJSON(r, http.MethodPost, "/api/batteries/0/fields/pack_voltage/read", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/batteries/0/fields/no_such_field/read", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWriteFieldSafetyGateMapping(t *testing.T) {
	const key = "battery_high_voltage_recovery"
	r, mgr := newTestRouter(t, middleware.AuthConfig{})
	feedMainPage(mgr, 0x00)

	// 没有基线
	w := doJSON(r, http.MethodPut, "/api/batteries/0/fields/"+key, writeRequest{Value: 54})
	assert.Equal(t, http.StatusConflict, w.Code)

	feedParamBaseline(t, mgr, 0x00, key, 5400)

	// 变化过大
	w = doJSON(r, http.MethodPut, "/api/batteries/0/fields/"+key, writeRequest{Value: 70})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// 原值：no-op
	w = doJSON(r, http.MethodPut, "/api/batteries/0/fields/"+key, writeRequest{Value: 54})
	assert.Equal(t, http.StatusOK, w.Code)

	// 合理变化
	w = doJSON(r, http.MethodPut, "/api/batteries/0/fields/"+key, writeRequest{Value: 60})
	assert.Equal(t, http.StatusAccepted, w.Code)

	// unsafe 跳过安全门
	w = doJSON(r, http.MethodPut, "/api/batteries/0/fields/"+key, writeRequest{Value: 40, Unsafe: true})
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestWriteFieldNotWritable(t *testing.T) {
	r, mgr := newTestRouter(t, middleware.AuthConfig{})
	feedMainPage(mgr, 0x00)

	w := doJSON(r, http.MethodPut, "/api/batteries/0/fields/pack_voltage", writeRequest{Value: 30})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryUnavailableWithoutDatabase(t *testing.T) {
	r, mgr := newTestRouter(t, middleware.AuthConfig{})
	feedMainPage(mgr, 0x00)

	w := doJSON(r, http.MethodGet, "/api/batteries/0/fields/pack_voltage/history", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doJSON(r, http.MethodGet, "/api/batteries/0/writes", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAPIKeyAuth(t *testing.T) {
	authCfg := middleware.AuthConfig{Enabled: true, APIKeys: []string{"sk_test_valid"}}
	r, _ := newTestRouter(t, authCfg)

	// 无Key
	w := doJSON(r, http.MethodGet, "/api/fields", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 错误Key
	req := httptest.NewRequest(http.MethodGet, "/api/fields", nil)
	req.Header.Set("X-API-Key", "sk_test_wrong")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// 正确Key
	req = httptest.NewRequest(http.MethodGet, "/api/fields", nil)
	req.Header.Set("X-API-Key", "sk_test_valid")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Bearer形式
	req = httptest.NewRequest(http.MethodGet, "/api/fields", nil)
	req.Header.Set("Authorization", "Bearer sk_test_valid")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
