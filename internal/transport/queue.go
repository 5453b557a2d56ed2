package transport

import "sync"

// Queue 互斥保护的发送队列。任意协程生产，仅节流写协程消费，
// 入队顺序即发送顺序。队列不设上限，积压由指标与告警暴露。
type Queue struct {
	mu     sync.Mutex
	frames [][]byte
}

// Push 追加一帧到队尾
func (q *Queue) Push(frame []byte) {
	q.mu.Lock()
	q.frames = append(q.frames, frame)
	q.mu.Unlock()
}

// Pop 弹出队首帧；队列为空返回 false
func (q *Queue) Pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		return nil, false
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	return f, true
}

// Depth 当前排队帧数
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}
