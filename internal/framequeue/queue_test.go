package framequeue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDropWhenFull(t *testing.T) {
	tests := []struct {
		capacity, pushes int
	}{
		{1, 5},
		{3, 10},
		{10, 10},
		{16, 4},
	}
	for _, tt := range tests {
		q := New[int](tt.capacity)
		for i := 0; i < tt.pushes; i++ {
			q.Push(i)
		}

		got := q.Drain()
		want := min(tt.capacity, tt.pushes)
		if len(got) != want {
			t.Errorf("cap %d, %d pushes: drained %d, want %d", tt.capacity, tt.pushes, len(got), want)
		}
		for i, v := range got {
			if v != i {
				t.Errorf("cap %d: item %d = %d, want %d (oldest kept)", tt.capacity, i, v, i)
			}
		}
		if d := q.Dropped(); d != uint64(tt.pushes-want) {
			t.Errorf("cap %d: dropped %d, want %d", tt.capacity, d, tt.pushes-want)
		}
	}
}

func TestPushNeverBlocks(t *testing.T) {
	q := New[int](1)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			q.Push(i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Push blocked on a full queue")
	}
}

func TestPopTimeout(t *testing.T) {
	q := New[int](4)
	start := time.Now()
	_, err := q.Pop(context.Background(), 30*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("Pop returned after %v, expected to wait for the timeout", elapsed)
	}
}

func TestPopWakesOnPush(t *testing.T) {
	q := New[string](4)
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push("frame")
	}()
	v, err := q.Pop(context.Background(), time.Second)
	if err != nil || v != "frame" {
		t.Fatalf("Pop = %q, %v", v, err)
	}
}

func TestPopHonorsContext(t *testing.T) {
	q := New[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Pop(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestReset(t *testing.T) {
	q := New[int](2)
	q.Push(1)
	q.Push(2)
	q.Push(3)
	q.Reset()
	if q.Len() != 0 || q.Dropped() != 0 || q.Pushed() != 0 {
		t.Errorf("after Reset: len %d dropped %d pushed %d", q.Len(), q.Dropped(), q.Pushed())
	}
}

func TestConcurrentProducersAndConsumer(t *testing.T) {
	q := New[int](64)
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				q.Push(i)
			}
		}()
	}

	received := 0
	stop := make(chan struct{})
	go func() {
		wg.Wait()
		close(stop)
	}()
loop:
	for {
		if _, err := q.Pop(context.Background(), 5*time.Millisecond); err == nil {
			received++
			continue
		}
		select {
		case <-stop:
			break loop
		default:
		}
	}
	received += len(q.Drain())

	if uint64(received) != q.Pushed() {
		t.Errorf("received %d, pushed %d", received, q.Pushed())
	}
	if q.Pushed()+q.Dropped() != 2000 {
		t.Errorf("pushed+dropped = %d, want 2000", q.Pushed()+q.Dropped())
	}
}

func TestDefaultCapacity(t *testing.T) {
	if got := New[int](0).Cap(); got != DefaultCapacity {
		t.Errorf("Cap = %d, want %d", got, DefaultCapacity)
	}
}
