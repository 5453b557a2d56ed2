package redis

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

// 发布入队不触网：Redis 不可达甚至未配置时回调也要立即返回
func TestPublishUpdateNeverBlocks(t *testing.T) {
	v := NewValueMirror(nil, zap.NewNop())

	start := time.Now()
	for i := 0; i < 4*mirrorBuffer; i++ {
		v.PublishUpdate(0x00, "pack_voltage", 32.81)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("enqueue took %v", elapsed)
	}

	// 超出容量的更新被丢弃而不是阻塞
	if depth := len(v.ops); depth != mirrorBuffer {
		t.Fatalf("buffer depth = %d, want %d", depth, mirrorBuffer)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	v := NewValueMirror(nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		v.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after cancel")
	}
}
