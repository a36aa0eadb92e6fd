package cache

import (
	"fmt"
	"sort"
	"sync"
	"testing"
)

func TestKeyRegistry_AllWithPrefix(t *testing.T) {
	r := NewKeyRegistry()
	r.Add("lyrics:collection")
	r.Add("lyrics:song:42")
	r.Add("artist:wu-tang")
	r.Add("lyrics:song:42") // duplicate

	got := r.AllWithPrefix("lyrics:")
	sort.Strings(got)

	want := []string{"lyrics:collection", "lyrics:song:42"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("AllWithPrefix mismatch: got %v, want %v", got, want)
	}

	if all := r.AllWithPrefix(""); len(all) != 3 {
		t.Errorf("empty prefix should match all keys, got %v", all)
	}
	if none := r.AllWithPrefix("speech:"); len(none) != 0 {
		t.Errorf("expected no matches, got %v", none)
	}
}

func TestKeyRegistry_RemoveAndClear(t *testing.T) {
	r := NewKeyRegistry()
	r.Add("a")
	r.Add("b")

	r.Remove("a")
	r.Remove("missing")

	if r.Contains("a") {
		t.Error("a should have been removed")
	}
	if !r.Contains("b") {
		t.Error("b should still be registered")
	}

	r.Clear()
	if r.Len() != 0 {
		t.Errorf("Len not zero after clear: %d", r.Len())
	}
}

func TestKeyRegistry_SnapshotIsStable(t *testing.T) {
	r := NewKeyRegistry()
	for i := 0; i < 10; i++ {
		r.Add(fmt.Sprintf("k:%d", i))
	}

	snapshot := r.AllWithPrefix("k:")
	for _, key := range snapshot {
		r.Remove(key)
	}

	if len(snapshot) != 10 {
		t.Errorf("snapshot changed while ranging: %d", len(snapshot))
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
}

func TestKeyRegistry_ConcurrentAccess(t *testing.T) {
	r := NewKeyRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("w%d:%d", id, j)
				r.Add(key)
				r.AllWithPrefix(fmt.Sprintf("w%d:", id))
				if j%2 == 0 {
					r.Remove(key)
				}
			}
		}(i)
	}
	wg.Wait()

	if r.Len() != 8*100 {
		t.Errorf("expected %d keys, got %d", 8*100, r.Len())
	}
}
