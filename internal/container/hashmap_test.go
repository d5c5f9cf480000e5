package container

import (
	"testing"

	"github.com/emptyland/ymd-sub000/internal/strpool"
	"github.com/emptyland/ymd-sub000/internal/value"
)

func TestHmapPutGet(t *testing.T) {
	m := NewHmap(0, value.White0)
	pool := strpool.New()
	for i := 0; i < 64; i++ {
		k := pool.Intern([]byte{byte('a' + i%26), byte(i)}, value.White0)
		if err := m.Put(value.NewRef(k), value.NewInt(int64(i))); err != nil {
			t.Fatalf("put failed: %v", err)
		}
	}
	if m.Count() != 64 {
		t.Fatalf("expected 64 entries, got %d", m.Count())
	}
	for i := 0; i < 64; i++ {
		k := pool.Intern([]byte{byte('a' + i%26), byte(i)}, value.White0)
		v, ok := m.Get(value.NewRef(k))
		if !ok || v.I != int64(i) {
			t.Fatalf("expected %d, got %v ok=%v", i, v, ok)
		}
	}
}

func TestHmapRemoveChainIntegrity(t *testing.T) {
	m := NewHmap(0, value.White0)
	keys := make([]value.Value, 0, 32)
	for i := 0; i < 32; i++ {
		k := value.NewInt(int64(i))
		keys = append(keys, k)
		if err := m.Put(k, value.NewInt(int64(i*2))); err != nil {
			t.Fatalf("put failed: %v", err)
		}
	}
	if !m.Remove(keys[5]) {
		t.Fatal("expected remove to succeed")
	}
	if _, ok := m.Get(keys[5]); ok {
		t.Fatal("expected key to be gone")
	}
	for i, k := range keys {
		if i == 5 {
			continue
		}
		v, ok := m.Get(k)
		if !ok || v.I != int64(i*2) {
			t.Fatalf("key %d corrupted after remove: %v ok=%v", i, v, ok)
		}
	}
}

func TestHmapNilKeyRejected(t *testing.T) {
	m := NewHmap(0, value.White0)
	if err := m.Put(value.Nil(), value.NewInt(1)); err != ErrNilKey {
		t.Fatalf("expected ErrNilKey, got %v", err)
	}
}

func TestHmapOverwrite(t *testing.T) {
	m := NewHmap(0, value.White0)
	k := value.NewInt(7)
	m.Put(k, value.NewInt(1))
	m.Put(k, value.NewInt(2))
	v, ok := m.Get(k)
	if !ok || v.I != 2 {
		t.Fatalf("expected overwritten value 2, got %v", v)
	}
	if m.Count() != 1 {
		t.Fatalf("expected single entry after overwrite, got %d", m.Count())
	}
}
