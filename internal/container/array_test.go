package container

import (
	"testing"

	"github.com/emptyland/ymd-sub000/internal/value"
)

func TestDyayAddAndGet(t *testing.T) {
	a := NewDyay(0, value.White0)
	for i := 0; i < 10; i++ {
		a.Add(value.NewInt(int64(i)))
	}
	if a.Count() != 10 {
		t.Fatalf("expected count 10, got %d", a.Count())
	}
	v, err := a.Get(3)
	if err != nil || v.I != 3 {
		t.Fatalf("expected 3, got %v, err=%v", v, err)
	}
}

func TestDyayInsertRemove(t *testing.T) {
	a := NewDyay(0, value.White0)
	a.Add(value.NewInt(1))
	a.Add(value.NewInt(2))
	a.Add(value.NewInt(3))
	if err := a.Insert(1, value.NewInt(99)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	v, _ := a.Get(1)
	if v.I != 99 {
		t.Fatalf("expected 99 at index 1, got %v", v)
	}
	if err := a.Remove(0); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	v, _ = a.Get(0)
	if v.I != 99 {
		t.Fatalf("expected 99 at index 0 after remove, got %v", v)
	}
}

func TestDyayOutOfRange(t *testing.T) {
	a := NewDyay(0, value.White0)
	if _, err := a.Get(0); err == nil {
		t.Fatal("expected out-of-range error")
	}
	if err := a.Set(0, value.NewInt(1)); err == nil {
		t.Fatal("expected out-of-range error on set")
	}
}

func TestDyayEqualsAndCompare(t *testing.T) {
	a := NewDyay(0, value.White0)
	b := NewDyay(0, value.White0)
	a.Add(value.NewInt(1))
	a.Add(value.NewInt(2))
	b.Add(value.NewInt(1))
	b.Add(value.NewInt(2))
	if !a.EqualsRef(b) {
		t.Fatal("expected equal arrays")
	}
	b.Add(value.NewInt(3))
	if a.EqualsRef(b) {
		t.Fatal("expected unequal arrays")
	}
	if a.CompareRef(b) >= 0 {
		t.Fatal("expected shorter array to compare less")
	}
}
