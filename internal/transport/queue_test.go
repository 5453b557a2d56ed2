package transport

import (
	"fmt"
	"sync"
	"testing"
)

func TestQueueFIFO(t *testing.T) {
	var q Queue
	q.Push([]byte{1})
	q.Push([]byte{2})
	q.Push([]byte{3})

	if q.Depth() != 3 {
		t.Fatalf("Depth() = %d", q.Depth())
	}
	for want := byte(1); want <= 3; want++ {
		f, ok := q.Pop()
		if !ok || f[0] != want {
			t.Fatalf("Pop() = %v,%v want [%d]", f, ok, want)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("Pop on empty queue succeeded")
	}
	if q.Depth() != 0 {
		t.Fatalf("Depth() = %d after drain", q.Depth())
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	var q Queue
	const producers = 8
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push([]byte(fmt.Sprintf("%d-%d", p, i)))
			}
		}(p)
	}
	wg.Wait()

	if q.Depth() != producers*perProducer {
		t.Fatalf("Depth() = %d, want %d", q.Depth(), producers*perProducer)
	}

	// 每个生产者内部的顺序必须保持
	lastSeen := make(map[int]int)
	for {
		f, ok := q.Pop()
		if !ok {
			break
		}
		var p, i int
		if _, err := fmt.Sscanf(string(f), "%d-%d", &p, &i); err != nil {
			t.Fatal(err)
		}
		if last, seen := lastSeen[p]; seen && i != last+1 {
			t.Fatalf("producer %d: frame %d after %d", p, i, last)
		}
		lastSeen[p] = i
	}
}
