package workflow

import (
	"errors"
	"testing"

	"github.com/taoyao-code/bms-bridge/internal/protocol/seplos"
)

// fakeView 内存里的会话缓存替身
type fakeView struct {
	values   map[string]float64
	writes   []fakeWrite
	writeErr error
}

type fakeWrite struct {
	key    string
	value  float64
	unsafe bool
}

func newFakeView() *fakeView {
	return &fakeView{values: make(map[string]float64)}
}

func (v *fakeView) Value(key string) (float64, bool) {
	val, ok := v.values[key]
	return val, ok
}

func (v *fakeView) Values() map[string]float64 {
	out := make(map[string]float64, len(v.values))
	for k, val := range v.values {
		out[k] = val
	}
	return out
}

func (v *fakeView) Forget(key string) {
	delete(v.values, key)
}

func (v *fakeView) WriteField(key string, value float64, unsafe bool) error {
	v.writes = append(v.writes, fakeWrite{key, value, unsafe})
	return v.writeErr
}

type requestRecorder struct {
	pages []seplos.Page
}

func (r *requestRecorder) fn() RequestFunc {
	return func(p seplos.Page) { r.pages = append(r.pages, p) }
}

func mustLookup(t *testing.T, key string) seplos.FieldDescriptor {
	t.Helper()
	fd, ok := seplos.Lookup(key)
	if !ok {
		t.Fatalf("unknown field %s", key)
	}
	return fd
}

func TestReadFieldRequestsPageThenResolves(t *testing.T) {
	fd := mustLookup(t, "battery_high_voltage_recovery")
	view := newFakeView()
	reqs := &requestRecorder{}
	wf := NewReadField(fd, reqs.fn(), view)

	if got := wf.Tick(); got != StatusPending {
		t.Fatalf("tick 1 = %v", got)
	}
	if len(reqs.pages) != 1 || reqs.pages[0] != seplos.PageParam {
		t.Fatalf("requests = %v", reqs.pages)
	}

	// 还没有响应
	if got := wf.Tick(); got != StatusPending {
		t.Fatalf("tick 2 = %v", got)
	}

	view.values[fd.Key()] = 54.0
	if got := wf.Tick(); got != StatusDone {
		t.Fatalf("tick 3 = %v", got)
	}
	if wf.Result != 54.0 {
		t.Fatalf("Result = %v", wf.Result)
	}
}

func TestReadFieldTimesOutAfterLimit(t *testing.T) {
	fd := mustLookup(t, "battery_high_voltage_recovery")
	wf := NewReadField(fd, (&requestRecorder{}).fn(), newFakeView())

	for i := 1; i <= DefaultTickLimit; i++ {
		if got := wf.Tick(); got != StatusPending {
			t.Fatalf("tick %d = %v", i, got)
		}
	}
	// 第51个节拍：超时
	if got := wf.Tick(); got != StatusFailed {
		t.Fatalf("tick %d = %v, want StatusFailed", DefaultTickLimit+1, got)
	}
}

func TestReadAllWaitsForStableCount(t *testing.T) {
	view := newFakeView()
	reqs := &requestRecorder{}
	wf := NewReadAll(reqs.fn(), view)

	if got := wf.Tick(); got != StatusPending {
		t.Fatalf("tick 1 = %v", got)
	}
	if len(reqs.pages) != 3 {
		t.Fatalf("requested pages %v", reqs.pages)
	}

	// 数据还在陆续到达
	view.values["pack_voltage"] = 32.81
	if got := wf.Tick(); got != StatusPending {
		t.Fatalf("tick 2 = %v", got)
	}
	view.values["soc"] = 85.5
	view.values["cell_1"] = 3.281
	if got := wf.Tick(); got != StatusPending {
		t.Fatalf("tick 3 = %v", got)
	}

	// 字段数连续两个节拍不变：完成
	if got := wf.Tick(); got != StatusDone {
		t.Fatalf("tick 4 = %v", got)
	}
}

func TestReadAllTimesOutOnSilence(t *testing.T) {
	wf := NewReadAll((&requestRecorder{}).fn(), newFakeView())
	var got Status
	for i := 0; i <= DefaultTickLimit; i++ {
		got = wf.Tick()
	}
	if got != StatusFailed {
		t.Fatalf("final status = %v, want StatusFailed", got)
	}
}

func TestEditHappyPath(t *testing.T) {
	fd := mustLookup(t, "battery_high_voltage_recovery")
	view := newFakeView()
	reqs := &requestRecorder{}

	confirmed := false
	wf := NewEdit(fd, 60, reqs.fn(), view, func(old, newValue float64) bool {
		confirmed = true
		if old != 54 || newValue != 60 {
			t.Fatalf("confirm(%v, %v)", old, newValue)
		}
		return true
	})

	if got := wf.Tick(); got != StatusPending {
		t.Fatalf("tick 1 = %v", got)
	}

	// 基线到达，确认后发写并复读
	view.values[fd.Key()] = 54
	if got := wf.Tick(); got != StatusPending {
		t.Fatalf("tick 2 = %v", got)
	}
	if !confirmed {
		t.Fatal("confirm not called")
	}
	if len(view.writes) != 1 || view.writes[0].value != 60 || !view.writes[0].unsafe {
		t.Fatalf("writes = %v", view.writes)
	}
	// 写前丢弃缓存，复读必须来自设备
	if _, ok := view.Value(fd.Key()); ok {
		t.Fatal("baseline survived the write")
	}
	// 复读请求已发出
	if len(reqs.pages) != 2 {
		t.Fatalf("requests = %v", reqs.pages)
	}

	// 验证读尚未返回
	if got := wf.Tick(); got != StatusPending {
		t.Fatalf("tick 3 = %v", got)
	}

	view.values[fd.Key()] = 60
	if got := wf.Tick(); got != StatusDone {
		t.Fatalf("tick 4 = %v", got)
	}
	if wf.Old != 54 || wf.Verified != 60 {
		t.Fatalf("Old=%v Verified=%v", wf.Old, wf.Verified)
	}
}

func TestEditAborted(t *testing.T) {
	fd := mustLookup(t, "battery_high_voltage_recovery")
	view := newFakeView()
	wf := NewEdit(fd, 60, (&requestRecorder{}).fn(), view, func(_, _ float64) bool { return false })

	wf.Tick()
	view.values[fd.Key()] = 54
	if got := wf.Tick(); got != StatusAborted {
		t.Fatalf("got %v, want StatusAborted", got)
	}
	if len(view.writes) != 0 {
		t.Fatal("aborted edit still wrote")
	}
}

func TestEditWriteFailure(t *testing.T) {
	fd := mustLookup(t, "battery_high_voltage_recovery")
	view := newFakeView()
	view.writeErr = seplos.ErrValueOutOfRange
	wf := NewEdit(fd, 60, (&requestRecorder{}).fn(), view, func(_, _ float64) bool { return true })

	wf.Tick()
	view.values[fd.Key()] = 54
	if got := wf.Tick(); got != StatusFailed {
		t.Fatalf("got %v, want StatusFailed", got)
	}
	if !errors.Is(wf.Err(), seplos.ErrValueOutOfRange) {
		t.Fatalf("Err() = %v", wf.Err())
	}
	if wf.WriteOutcomeUnknown() {
		t.Fatal("write never hit the wire, outcome is known")
	}
}

func TestEditVerifyTimeoutMarksOutcomeUnknown(t *testing.T) {
	fd := mustLookup(t, "battery_high_voltage_recovery")
	view := newFakeView()
	wf := NewEdit(fd, 60, (&requestRecorder{}).fn(), view, func(_, _ float64) bool { return true })

	wf.Tick()
	view.values[fd.Key()] = 54
	wf.Tick() // 写已发出，进入验证阶段

	var got Status
	for got = wf.Tick(); got == StatusPending; got = wf.Tick() {
	}
	if got != StatusFailed {
		t.Fatalf("final status = %v", got)
	}
	if !errors.Is(wf.Err(), ErrTimeout) {
		t.Fatalf("Err() = %v", wf.Err())
	}
	if !wf.WriteOutcomeUnknown() {
		t.Fatal("verify timeout must report unknown write outcome")
	}
}
