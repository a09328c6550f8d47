package rooms

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestAggregator_AppendFlushOrder(t *testing.T) {
	a := NewAggregator(time.Minute)

	a.Append("r1", []byte("aaa"))
	a.Append("r1", []byte("bb"))
	a.Append("r1", []byte("c"))

	got := a.Flush("r1")
	if want := []byte("aaabbc"); !bytes.Equal(got, want) {
		t.Errorf("Flush: want %q, got %q", want, got)
	}

	// The flush cleared the buffer.
	if got := a.Flush("r1"); len(got) != 0 {
		t.Errorf("second Flush: want empty, got %q", got)
	}
	if n := a.Buffered("r1"); n != 0 {
		t.Errorf("Buffered after flush: want 0, got %d", n)
	}
}

func TestAggregator_FlushUnknownRoom(t *testing.T) {
	a := NewAggregator(time.Minute)

	got := a.Flush("never-seen")
	if got == nil {
		t.Fatal("Flush unknown room: want non-nil empty slice")
	}
	if len(got) != 0 {
		t.Errorf("Flush unknown room: want empty, got %q", got)
	}
}

func TestAggregator_RoomsIndependent(t *testing.T) {
	a := NewAggregator(time.Minute)

	a.Append("r1", []byte("one"))
	a.Append("r2", []byte("two"))
	a.Append("r1", []byte("-more"))

	if got := a.Flush("r2"); !bytes.Equal(got, []byte("two")) {
		t.Errorf("r2: want %q, got %q", "two", got)
	}
	if got := a.Flush("r1"); !bytes.Equal(got, []byte("one-more")) {
		t.Errorf("r1: want %q, got %q", "one-more", got)
	}
}

func TestAggregator_AppendCopiesFragment(t *testing.T) {
	a := NewAggregator(time.Minute)

	buf := []byte("orig")
	a.Append("r1", buf)
	copy(buf, "XXXX") // caller reuses its read buffer

	if got := a.Flush("r1"); !bytes.Equal(got, []byte("orig")) {
		t.Errorf("fragment aliased caller buffer: got %q", got)
	}
}

func TestAggregator_EmptyFragmentIgnored(t *testing.T) {
	a := NewAggregator(time.Minute)

	a.Append("r1", nil)
	a.Append("r1", []byte{})
	if a.Len() != 0 {
		t.Errorf("empty fragments should not create a room, Len = %d", a.Len())
	}
}

func TestAggregator_Sweep(t *testing.T) {
	a := NewAggregator(time.Minute)

	base := time.Now()
	now := base
	a.now = func() time.Time { return now }

	a.Append("stale", []byte("x"))
	now = base.Add(30 * time.Second)
	a.Append("fresh", []byte("y"))

	// "stale" is 90s idle, "fresh" 60s — only "stale" exceeds the minute.
	now = base.Add(90*time.Second + time.Millisecond)
	if dropped := a.Sweep(); dropped != 1 {
		t.Fatalf("Sweep: want 1 dropped, got %d", dropped)
	}
	if a.Len() != 1 {
		t.Errorf("Len after sweep: want 1, got %d", a.Len())
	}

	// Swept room lost its audio; a later flush sees nothing.
	if got := a.Flush("stale"); len(got) != 0 {
		t.Errorf("swept room: want empty flush, got %q", got)
	}
	if got := a.Flush("fresh"); !bytes.Equal(got, []byte("y")) {
		t.Errorf("surviving room: want %q, got %q", "y", got)
	}
}

func TestAggregator_FlushResetsIdleClock(t *testing.T) {
	a := NewAggregator(time.Minute)

	base := time.Now()
	now := base
	a.now = func() time.Time { return now }

	a.Append("r1", []byte("x"))
	now = base.Add(50 * time.Second)
	a.Flush("r1")

	// 70s after the append but only 20s after the flush.
	now = base.Add(70 * time.Second)
	if dropped := a.Sweep(); dropped != 0 {
		t.Errorf("Sweep: room flushed recently, want 0 dropped, got %d", dropped)
	}
}

func TestAggregator_Drop(t *testing.T) {
	a := NewAggregator(time.Minute)

	a.Append("r1", []byte("x"))
	a.Drop("r1")
	if a.Len() != 0 {
		t.Errorf("Len after Drop: want 0, got %d", a.Len())
	}
	if got := a.Flush("r1"); len(got) != 0 {
		t.Errorf("Flush after Drop: want empty, got %q", got)
	}
}

func TestAggregator_ConcurrentAppend(t *testing.T) {
	a := NewAggregator(time.Minute)

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				a.Append(fmt.Sprintf("room-%d", w%2), []byte{byte(w)})
			}
		}(w)
	}
	wg.Wait()

	total := len(a.Flush("room-0")) + len(a.Flush("room-1"))
	if total != writers*perWriter {
		t.Errorf("lost fragments: want %d bytes, got %d", writers*perWriter, total)
	}
}
