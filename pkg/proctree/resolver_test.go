package proctree

import (
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"
)

func snapshotOf(pairs ...[2]int) *Snapshot {
	records := make([]ProcessRecord, len(pairs))
	for i, p := range pairs {
		records[i] = ProcessRecord{PID: p[0], ParentPID: p[1]}
	}
	return NewSnapshot(records, time.Unix(1700000000, 0))
}

func sorted(in []int) []int {
	out := append([]int(nil), in...)
	sort.Ints(out)
	return out
}

func TestResolverTreeScenario(t *testing.T) {
	r := NewResolver(snapshotOf([2]int{1, 0}, [2]int{2, 1}, [2]int{3, 2}, [2]int{4, 99}))

	tests := []struct {
		name     string
		got      []int
		expected []int
	}{
		{name: "children of 1", got: r.Children(1), expected: []int{2}},
		{name: "descendants of 1", got: sorted(r.Descendants(1)), expected: []int{2, 3}},
		{name: "children of absent 99", got: r.Children(99), expected: []int{}},
		{name: "descendants of absent 99", got: r.Descendants(99), expected: []int{}},
		{name: "children of leaf 3", got: r.Children(3), expected: []int{}},
		{name: "children of absent root 0", got: r.Children(0), expected: []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !reflect.DeepEqual(tt.got, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, tt.got)
			}
		})
	}

	t.Run("orphan is nobody's child", func(t *testing.T) {
		for _, pid := range r.Snapshot().PIDs() {
			for _, child := range r.Children(pid) {
				if child == 4 {
					t.Errorf("pid 4 listed as child of %d", pid)
				}
			}
		}
	})

	t.Run("roots", func(t *testing.T) {
		expected := []int{1, 4}
		if got := r.Roots(); !reflect.DeepEqual(got, expected) {
			t.Errorf("expected roots %v, got %v", expected, got)
		}
	})
}

func TestResolverCycle(t *testing.T) {
	r := NewResolver(snapshotOf([2]int{5, 6}, [2]int{6, 5}))

	done := make(chan []int)
	go func() { done <- r.Descendants(5) }()

	select {
	case got := <-done:
		if !reflect.DeepEqual(got, []int{6}) {
			t.Errorf("expected [6], got %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("descendant traversal did not terminate on a cycle")
	}

	if got := r.Descendants(6); !reflect.DeepEqual(got, []int{5}) {
		t.Errorf("expected [5], got %v", got)
	}
	if got := r.Ancestors(5); !reflect.DeepEqual(got, []int{6}) {
		t.Errorf("expected ancestors [6], got %v", got)
	}
	if got := r.Roots(); len(got) != 0 {
		t.Errorf("expected no roots in a pure cycle, got %v", got)
	}
}

func TestResolverLongerCycle(t *testing.T) {
	// 10 -> 11 -> 12 -> 10, with 13 hanging off 12
	r := NewResolver(snapshotOf([2]int{10, 12}, [2]int{11, 10}, [2]int{12, 11}, [2]int{13, 12}))

	got := r.Descendants(10)
	expected := []int{11, 12, 13}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}
	for _, pid := range got {
		if pid == 10 {
			t.Error("origin must not be part of its own descendants")
		}
	}
}

func TestResolverSelfParent(t *testing.T) {
	r := NewResolver(snapshotOf([2]int{7, 7}))

	if got := r.Children(7); len(got) != 0 {
		t.Errorf("expected no children, got %v", got)
	}
	if got := r.Descendants(7); len(got) != 0 {
		t.Errorf("expected no descendants, got %v", got)
	}
	if got := r.Roots(); !reflect.DeepEqual(got, []int{7}) {
		t.Errorf("expected 7 to be a root, got %v", got)
	}
	if _, ok := r.Parent(7); ok {
		t.Error("self-parented process must not report a parent")
	}
}

func TestResolverDesignatedRoot(t *testing.T) {
	// Windows-style table: idle process 0 is its own parent, System (4) hangs off it
	snap := snapshotOf([2]int{0, 0}, [2]int{4, 0}, [2]int{400, 4}, [2]int{404, 4}, [2]int{500, 400})

	r := NewResolver(snap)
	if got := r.Children(0); !reflect.DeepEqual(got, []int{4}) {
		t.Errorf("expected [4], got %v", got)
	}
	if got := r.Descendants(0); !reflect.DeepEqual(got, []int{4, 400, 404, 500}) {
		t.Errorf("expected breadth-first [4 400 404 500], got %v", got)
	}
	if got := r.Ancestors(500); !reflect.DeepEqual(got, []int{400, 4, 0}) {
		t.Errorf("expected ancestors [400 4 0], got %v", got)
	}

	t.Run("custom root never gets a parent", func(t *testing.T) {
		r := NewResolver(snapshotOf([2]int{1, 2}, [2]int{2, 1}), WithRootPID(1))
		if r.RootPID() != 1 {
			t.Fatalf("expected root pid 1, got %d", r.RootPID())
		}
		if _, ok := r.Parent(1); ok {
			t.Error("designated root must not report a parent")
		}
		if got := r.Descendants(1); !reflect.DeepEqual(got, []int{2}) {
			t.Errorf("expected [2], got %v", got)
		}
		if got := r.Children(2); len(got) != 0 {
			t.Errorf("expected root not to be linked under 2, got %v", got)
		}
	})
}

func TestResolverPreservesSnapshotOrder(t *testing.T) {
	r := NewResolver(snapshotOf([2]int{1, 0}, [2]int{30, 1}, [2]int{10, 1}, [2]int{20, 1}))

	expected := []int{30, 10, 20}
	if got := r.Children(1); !reflect.DeepEqual(got, expected) {
		t.Errorf("expected snapshot order %v, got %v", expected, got)
	}
}

func TestResolverDuplicatePIDs(t *testing.T) {
	r := NewResolver(snapshotOf([2]int{1, 0}, [2]int{2, 1}, [2]int{2, 1}, [2]int{3, 2}))

	if got := r.Children(1); !reflect.DeepEqual(got, []int{2}) {
		t.Errorf("expected duplicate to be ignored, got %v", got)
	}
	if got := r.Descendants(1); !reflect.DeepEqual(got, []int{2, 3}) {
		t.Errorf("expected [2 3], got %v", got)
	}
}

func TestResolverReturnsCopies(t *testing.T) {
	r := NewResolver(snapshotOf([2]int{1, 0}, [2]int{2, 1}, [2]int{3, 1}))

	kids := r.Children(1)
	kids[0] = 999

	if got := r.Children(1); !reflect.DeepEqual(got, []int{2, 3}) {
		t.Errorf("resolver index was mutated through returned slice: %v", got)
	}
}

func TestResolverNilSnapshot(t *testing.T) {
	r := NewResolver(nil)
	if got := r.Descendants(1); len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
	if r.Snapshot().Len() != 0 {
		t.Errorf("expected empty snapshot, got %d records", r.Snapshot().Len())
	}
}

func TestResolverConcurrentQueries(t *testing.T) {
	records := make([]ProcessRecord, 0, 1000)
	records = append(records, ProcessRecord{PID: 1, ParentPID: 0})
	for pid := 2; pid <= 1000; pid++ {
		records = append(records, ProcessRecord{PID: pid, ParentPID: pid / 2})
	}
	r := NewResolver(NewSnapshot(records, time.Now()))

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if got := len(r.Descendants(1)); got != 999 {
					t.Errorf("expected 999 descendants, got %d", got)
					return
				}
				_ = r.Children(i)
				_ = r.Ancestors(1000)
			}
		}()
	}
	wg.Wait()
}

func TestSnapshotImmutable(t *testing.T) {
	records := []ProcessRecord{{PID: 1, ParentPID: 0}, {PID: 2, ParentPID: 1}}
	at := time.Unix(1700000000, 0)
	snap := NewSnapshot(records, at)

	records[1].ParentPID = 42
	if rec, _ := snap.Record(2); rec.ParentPID != 1 {
		t.Errorf("snapshot changed when caller mutated input: %+v", rec)
	}

	out := snap.Records()
	out[0].PID = 77
	if snap.At(0).PID != 1 {
		t.Errorf("snapshot changed when caller mutated Records(): %+v", snap.At(0))
	}

	if !snap.CapturedAt().Equal(at) {
		t.Errorf("expected capture time %v, got %v", at, snap.CapturedAt())
	}
	if snap.Len() != 2 || !snap.Contains(2) || snap.Contains(3) {
		t.Error("unexpected snapshot contents")
	}
}

func BenchmarkDescendants(b *testing.B) {
	records := make([]ProcessRecord, 0, 4096)
	records = append(records, ProcessRecord{PID: 1, ParentPID: 0})
	for pid := 2; pid <= 4096; pid++ {
		records = append(records, ProcessRecord{PID: pid, ParentPID: pid / 2})
	}
	r := NewResolver(NewSnapshot(records, time.Now()))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.Descendants(1)
	}
}
