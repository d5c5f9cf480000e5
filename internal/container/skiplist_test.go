package container

import (
	"testing"

	"github.com/emptyland/ymd-sub000/internal/value"
)

func TestSklsAscendingOrder(t *testing.T) {
	s := NewSkls(OrderAsc, nil, 12345, value.White0)
	for _, i := range []int64{5, 3, 8, 1, 9, 2} {
		s.Put(value.NewInt(i), value.NewInt(i*10))
	}
	var got []int64
	s.Each(func(k, v value.Value) bool {
		got = append(got, k.I)
		return true
	})
	want := []int64{1, 2, 3, 5, 8, 9}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected ordering %v, got %v", want, got)
		}
	}
}

func TestSklsDescendingOrder(t *testing.T) {
	s := NewSkls(OrderDesc, nil, 999, value.White0)
	for _, i := range []int64{1, 2, 3} {
		s.Put(value.NewInt(i), value.Nil())
	}
	var got []int64
	s.Each(func(k, v value.Value) bool {
		got = append(got, k.I)
		return true
	})
	want := []int64{3, 2, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected descending %v, got %v", want, got)
		}
	}
}

func TestSklsGetRemove(t *testing.T) {
	s := NewSkls(OrderAsc, nil, 42, value.White0)
	s.Put(value.NewInt(1), value.NewInt(100))
	s.Put(value.NewInt(2), value.NewInt(200))
	if v, ok := s.Get(value.NewInt(1)); !ok || v.I != 100 {
		t.Fatalf("expected 100, got %v ok=%v", v, ok)
	}
	if !s.Remove(value.NewInt(1)) {
		t.Fatal("expected remove success")
	}
	if _, ok := s.Get(value.NewInt(1)); ok {
		t.Fatal("expected key gone after remove")
	}
	if s.Count() != 1 {
		t.Fatalf("expected count 1, got %d", s.Count())
	}
}

func TestSklsCustomComparator(t *testing.T) {
	byAbs := func(a, b value.Value) bool {
		av, bv := a.I, b.I
		if av < 0 {
			av = -av
		}
		if bv < 0 {
			bv = -bv
		}
		return av < bv
	}
	s := NewSkls(OrderCustom, byAbs, 7, value.White0)
	for _, i := range []int64{-5, 3, -1, 4} {
		s.Put(value.NewInt(i), value.Nil())
	}
	var got []int64
	s.Each(func(k, v value.Value) bool {
		got = append(got, k.I)
		return true
	})
	want := []int64{-1, 3, 4, -5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
