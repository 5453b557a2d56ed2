package session

import (
	"testing"

	"go.uber.org/zap"
)

func TestManagerDiscoversBatteriesByAddress(t *testing.T) {
	sender := &fakeSender{}
	rec := &updateRecorder{}
	var announced []byte
	mgr := NewManager(sender, rec.fn(), func(addr byte) {
		announced = append(announced, addr)
	}, zap.NewNop(), nil)

	mgr.HandleFrame(pageFrame(0x02, mainPageWords()))
	mgr.HandleFrame(pageFrame(0x00, mainPageWords()))
	mgr.HandleFrame(pageFrame(0x02, mainPageWords()))

	addrs := mgr.Addresses()
	if len(addrs) != 2 || addrs[0] != 0x00 || addrs[1] != 0x02 {
		t.Fatalf("Addresses() = %v", addrs)
	}

	// 上线事件每个地址只报一次
	if len(announced) != 2 {
		t.Fatalf("announced %v", announced)
	}

	if _, ok := mgr.Battery(0x02); !ok {
		t.Fatal("battery 2 missing")
	}
	if _, ok := mgr.Battery(0x07); ok {
		t.Fatal("battery 7 should not exist")
	}
}

func TestManagerRoutesByDeviceID(t *testing.T) {
	sender := &fakeSender{}
	rec := &updateRecorder{}
	mgr := NewManager(sender, rec.fn(), nil, zap.NewNop(), nil)

	words := mainPageWords()
	mgr.HandleFrame(pageFrame(0x03, words))

	b, ok := mgr.Battery(0x03)
	if !ok {
		t.Fatal("battery 3 missing")
	}
	if v, ok := b.Value("pack_voltage"); !ok || v != 32.81 {
		t.Fatalf("pack_voltage = %v,%v", v, ok)
	}

	// 发布回调携带正确地址
	for _, u := range rec.updates {
		if u.addr != 0x03 {
			t.Fatalf("update with address %d", u.addr)
		}
	}
}

func TestManagerIgnoresShortFrames(t *testing.T) {
	mgr := NewManager(&fakeSender{}, nil, nil, zap.NewNop(), nil)
	mgr.HandleFrame([]byte{0x00, 0x04})
	if len(mgr.Addresses()) != 0 {
		t.Fatal("short frame created a session")
	}
}

func TestManagerForcePublishAll(t *testing.T) {
	rec := &updateRecorder{}
	mgr := NewManager(&fakeSender{}, rec.fn(), nil, zap.NewNop(), nil)

	words := mainPageWords()
	mgr.HandleFrame(pageFrame(0x00, words))
	first := len(rec.updates)

	mgr.HandleFrame(pageFrame(0x00, words))
	if len(rec.updates) != first {
		t.Fatal("unchanged page republished")
	}

	mgr.ForcePublishAll()
	mgr.HandleFrame(pageFrame(0x00, words))
	if len(rec.updates) != 2*first {
		t.Fatalf("got %d updates after force republish, want %d", len(rec.updates)-first, first)
	}
}
