package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(nil, nil)
	for i := uint64(1); i <= 3; i++ {
		if err := q.Push(utterance(i, 1)); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}
	for want := uint64(1); want <= 3; want++ {
		u, err := q.Pop(context.Background())
		if err != nil {
			t.Fatalf("Pop() error = %v", err)
		}
		if u.Seq != want {
			t.Errorf("Pop() seq = %d, want %d", u.Seq, want)
		}
	}
	if !q.IsEmpty() {
		t.Error("IsEmpty() = false after draining")
	}
}

func TestQueuePurge(t *testing.T) {
	q := NewQueue(nil, nil)
	for i := uint64(1); i <= 4; i++ {
		q.Push(utterance(i, 1))
	}
	if n := q.Purge(); n != 4 {
		t.Errorf("Purge() = %d, want 4", n)
	}
	if n := q.Purge(); n != 0 {
		t.Errorf("second Purge() = %d, want 0", n)
	}
}

func TestQueueCloseAfterPending(t *testing.T) {
	q := NewQueue(nil, nil)
	q.Push(utterance(1, 1))
	q.Push(utterance(2, 1))
	q.Close()

	for want := uint64(1); want <= 2; want++ {
		u, err := q.Pop(context.Background())
		if err != nil {
			t.Fatalf("Pop() error = %v, want pending item %d first", err, want)
		}
		if u.Seq != want {
			t.Errorf("Pop() seq = %d, want %d", u.Seq, want)
		}
	}
	if _, err := q.Pop(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Pop() error = %v, want ErrQueueClosed", err)
	}
}

func TestQueueCloseSurvivesPurge(t *testing.T) {
	q := NewQueue(nil, nil)
	q.Push(utterance(1, 1))
	q.Close()
	q.Purge()

	if _, err := q.Pop(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Pop() error = %v, want ErrQueueClosed", err)
	}
	if err := q.Push(utterance(2, 1)); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Push() after Close error = %v, want ErrQueueClosed", err)
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := NewQueue(nil, nil)
	got := make(chan Utterance, 1)
	go func() {
		u, err := q.Pop(context.Background())
		if err == nil {
			got <- u
		}
	}()

	select {
	case <-got:
		t.Fatal("Pop() returned before Push")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(utterance(7, 1))
	select {
	case u := <-got:
		if u.Seq != 7 {
			t.Errorf("Pop() seq = %d, want 7", u.Seq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Pop() did not wake on Push")
	}
}

func TestQueuePopContextCancel(t *testing.T) {
	q := NewQueue(nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := q.Pop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Pop() error = %v, want DeadlineExceeded", err)
	}
}

func TestQueueClaimClearsComplete(t *testing.T) {
	state := NewState()
	q := NewQueue(state, nil)
	q.Push(utterance(1, 1))

	if !state.TranscriptionComplete() {
		t.Fatal("TranscriptionComplete() = false before claim")
	}
	if _, err := q.Pop(context.Background()); err != nil {
		t.Fatalf("Pop() error = %v", err)
	}
	if state.TranscriptionComplete() {
		t.Error("TranscriptionComplete() = true after claim")
	}
}

func TestQueueDrain(t *testing.T) {
	q := NewQueue(nil, nil)
	q.Push(utterance(1, 1))
	q.Push(utterance(2, 1))

	items := q.Drain()
	if len(items) != 2 || items[0].Seq != 1 || items[1].Seq != 2 {
		t.Errorf("Drain() = %+v, want seq 1 and 2", items)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d after Drain, want 0", q.Len())
	}
}
