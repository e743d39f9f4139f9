package queue

import (
	"sync"
	"testing"
	"time"
)

func popAll(t *testing.T, d *Deque[int]) []int {
	t.Helper()
	var out []int
	for {
		v, ok := d.PopFront()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDeque_FIFO(t *testing.T) {
	d := New[int](10)

	for i := 0; i < 5; i++ {
		if !d.PushBack(i) {
			t.Fatalf("PushBack(%d) returned false", i)
		}
	}
	if d.Len() != 5 {
		t.Errorf("Len() = %d, want 5", d.Len())
	}

	got := popAll(t, d)
	if want := []int{0, 1, 2, 3, 4}; !equalInts(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestDeque_PushFrontJumpsQueue(t *testing.T) {
	d := New[int](4)

	d.PushBack(1)
	d.PushBack(2)
	d.PushBack(3)

	head, _ := d.PopFront()
	if head != 1 {
		t.Fatalf("PopFront() = %d, want 1", head)
	}

	// A retried item goes back ahead of newer work.
	d.PushFront(head)
	d.PushBack(4)

	got := popAll(t, d)
	if want := []int{1, 2, 3, 4}; !equalInts(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}

	if s := d.Stats(); s.TotalPromoted != 1 {
		t.Errorf("TotalPromoted = %d, want 1", s.TotalPromoted)
	}
}

func TestDeque_PushFrontOnEmpty(t *testing.T) {
	d := New[int](1)

	d.PushFront(7)
	d.PushFront(6)
	d.PushBack(8)

	got := popAll(t, d)
	if want := []int{6, 7, 8}; !equalInts(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestDeque_GrowKeepsOrderAcrossWrap(t *testing.T) {
	d := New[int](10)

	for i := 1; i <= 5; i++ {
		d.PushBack(i)
	}
	for i := 0; i < 4; i++ {
		d.PopFront()
	}

	// Tail wraps past the end of the backing slice.
	for i := 6; i <= 10; i++ {
		d.PushBack(i)
	}
	// Head insert plus one more push forces a grow while wrapped.
	d.PushFront(0)
	d.PushBack(11)

	got := popAll(t, d)
	if want := []int{0, 5, 6, 7, 8, 9, 10, 11}; !equalInts(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	if d.Stats().ResizeCount < 1 {
		t.Errorf("expected at least one resize, stats %+v", d.Stats())
	}
}

func TestDeque_ManyGrows(t *testing.T) {
	d := New[int](4)

	for i := 0; i < 100; i++ {
		if i%2 == 0 {
			d.PushBack(i)
		} else {
			d.PushFront(-i)
		}
	}
	if d.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", d.Len())
	}
	if d.Stats().ResizeCount < 3 {
		t.Errorf("ResizeCount = %d, want >= 3", d.Stats().ResizeCount)
	}

	// Front half is the PushFront values in reverse push order.
	first, _ := d.PopFront()
	if first != -99 {
		t.Errorf("first = %d, want -99", first)
	}
}

func TestDeque_Close(t *testing.T) {
	d := New[int](10)
	d.PushBack(1)
	d.PushBack(2)

	d.Close()

	if d.PushBack(3) {
		t.Error("PushBack should return false after Close")
	}
	if d.PushFront(0) {
		t.Error("PushFront should return false after Close")
	}

	got := popAll(t, d)
	if want := []int{1, 2}; !equalInts(got, want) {
		t.Errorf("remaining = %v, want %v", got, want)
	}
}

func TestDeque_ReceiveBlocksUntilPush(t *testing.T) {
	d := New[int](10)
	received := make(chan int, 1)

	go func() {
		if v, ok := d.Receive(); ok {
			received <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	d.PushBack(42)

	select {
	case v := <-received:
		if v != 42 {
			t.Errorf("received %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for blocked receive")
	}
}

func TestDeque_CloseUnblocksReceive(t *testing.T) {
	d := New[int](10)
	done := make(chan bool, 1)

	go func() {
		_, ok := d.Receive()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	d.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Receive should return false when closed and empty")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Receive")
	}
}

func TestDeque_DrainTo(t *testing.T) {
	d := New[int](10)
	for i := 0; i < 10; i++ {
		d.PushBack(i)
	}

	items := d.DrainTo(4)
	if want := []int{0, 1, 2, 3}; !equalInts(items, want) {
		t.Errorf("DrainTo(4) = %v, want %v", items, want)
	}

	items = d.DrainTo(0)
	if len(items) != 6 {
		t.Errorf("DrainTo(0) returned %d items, want 6", len(items))
	}
	if d.DrainTo(0) != nil {
		t.Error("DrainTo on empty deque should return nil")
	}
}

func TestDeque_ConcurrentProducers(t *testing.T) {
	d := New[int](8)
	const perProducer = 500

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if i%3 == 0 {
					d.PushFront(p*perProducer + i)
				} else {
					d.PushBack(p*perProducer + i)
				}
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for _, v := range d.DrainTo(0) {
		seen[v] = true
	}
	if len(seen) != 4*perProducer {
		t.Errorf("saw %d distinct items, want %d", len(seen), 4*perProducer)
	}
}

func TestNew_MinCapacity(t *testing.T) {
	if c := New[int](0).Cap(); c != 1 {
		t.Errorf("Cap() = %d, want 1 for initial capacity 0", c)
	}
	if c := New[int](-3).Cap(); c != 1 {
		t.Errorf("Cap() = %d, want 1 for negative capacity", c)
	}
}
