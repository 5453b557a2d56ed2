// Package outbound 定义字段更新的下游发布接口与实现（MQTT、Redis、数据库）。
package outbound

// Publisher 下游发布接口。回调在解码路径上同步调用，实现必须快速返回，
// 慢速落库走内部缓冲。
type Publisher interface {
	// PublishUpdate 发布单个字段的新值（已通过变化过滤）
	PublishUpdate(addr byte, key string, value float64)
	// PublishOnline 电池上线事件，每个地址只调用一次
	PublishOnline(addr byte)
	// PublishDiscovery 电池上线时发布自描述元数据
	PublishDiscovery(addr byte)
}

// Fanout 顺序广播给多个发布者
type Fanout []Publisher

func (f Fanout) PublishUpdate(addr byte, key string, value float64) {
	for _, p := range f {
		p.PublishUpdate(addr, key, value)
	}
}

func (f Fanout) PublishOnline(addr byte) {
	for _, p := range f {
		p.PublishOnline(addr)
	}
}

func (f Fanout) PublishDiscovery(addr byte) {
	for _, p := range f {
		p.PublishDiscovery(addr)
	}
}

// Nop 空实现，未配置任何下游时使用
type Nop struct{}

func (Nop) PublishUpdate(addr byte, key string, value float64) {}
func (Nop) PublishOnline(addr byte)                            {}
func (Nop) PublishDiscovery(addr byte)                         {}
