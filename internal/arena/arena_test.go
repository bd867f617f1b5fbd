package arena

import "testing"

func TestInsertGet(t *testing.T) {
	a := New[string](0)
	h := a.Insert("root")
	got := a.Get(h)
	if got == nil || *got != "root" {
		t.Fatalf("Get = %v, want root", got)
	}
	if a.Len() != 1 {
		t.Errorf("Len = %d, want 1", a.Len())
	}
}

func TestZeroHandleNeverResolves(t *testing.T) {
	a := New[int](0)
	a.Insert(42)
	var zero Handle
	if !zero.IsZero() {
		t.Fatal("zero handle should report IsZero")
	}
	if a.Get(zero) != nil {
		t.Error("zero handle resolved to a value")
	}
}

func TestStaleHandleAfterReuse(t *testing.T) {
	a := New[string](0)
	old := a.Insert("first")
	if _, ok := a.Remove(old); !ok {
		t.Fatal("Remove reported missing value")
	}
	fresh := a.Insert("second")
	if fresh.index != old.index {
		t.Fatalf("expected slot reuse, got %v then %v", old, fresh)
	}
	if a.Get(old) != nil {
		t.Error("stale handle resolved after slot reuse")
	}
	if got := a.Get(fresh); got == nil || *got != "second" {
		t.Errorf("fresh handle = %v, want second", got)
	}
	if _, ok := a.Remove(old); ok {
		t.Error("Remove through stale handle should fail")
	}
}

func TestAllSkipsFreedSlots(t *testing.T) {
	a := New[int](4)
	h1 := a.Insert(1)
	a.Insert(2)
	a.Insert(3)
	a.Remove(h1)

	var sum int
	a.All(func(_ Handle, v *int) bool {
		sum += *v
		return true
	})
	if sum != 5 {
		t.Errorf("sum = %d, want 5", sum)
	}
}
