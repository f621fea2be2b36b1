package logbuf

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestAppendEvictsOldest(t *testing.T) {
	b := New(500)
	for i := 0; i < 501; i++ {
		b.Append(fmt.Sprintf("line %d", i))
	}

	if got := b.Len(); got != 500 {
		t.Fatalf("Len() = %d, want 500", got)
	}

	lines := b.Lines()
	if lines[0] != "line 1" {
		t.Errorf("oldest line = %q, want %q (line 0 evicted)", lines[0], "line 1")
	}
	if lines[len(lines)-1] != "line 500" {
		t.Errorf("newest line = %q, want %q", lines[len(lines)-1], "line 500")
	}
	for i, line := range lines {
		if want := fmt.Sprintf("line %d", i+1); line != want {
			t.Fatalf("line %d = %q, want %q (order broken)", i, line, want)
		}
	}
}

func TestClear(t *testing.T) {
	b := New(10)
	b.Append("a")
	b.Append("b")
	b.Clear()

	if got := b.Len(); got != 0 {
		t.Errorf("Len() after Clear() = %d, want 0", got)
	}
	if got := b.Dump(); got != "" {
		t.Errorf("Dump() after Clear() = %q, want empty", got)
	}
}

func TestDumpOrder(t *testing.T) {
	b := New(10)
	b.Append("first")
	b.Append("second")
	b.Append("third")

	want := "first\nsecond\nthird\n"
	if got := b.Dump(); got != want {
		t.Errorf("Dump() = %q, want %q", got, want)
	}
}

func TestDefaultCapacity(t *testing.T) {
	b := New(0)
	for i := 0; i < DefaultCapacity+50; i++ {
		b.Append("x")
	}
	if got := b.Len(); got != DefaultCapacity {
		t.Errorf("Len() = %d, want %d", got, DefaultCapacity)
	}
}

func TestConcurrentAppend(t *testing.T) {
	b := New(100)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				b.Append(fmt.Sprintf("g%d-%d", g, i))
				_ = b.Len()
				_ = b.Dump()
			}
		}(g)
	}
	wg.Wait()

	if got := b.Len(); got != 100 {
		t.Errorf("Len() = %d, want 100", got)
	}
	if !strings.Contains(b.Dump(), "g") {
		t.Error("Dump() lost all content")
	}
}
