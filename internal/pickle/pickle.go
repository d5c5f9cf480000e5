// Package pickle implements length-prefixed serialization of Ymd values
// (spec §4.3's dump/load pair), grounded on original_source/src/pickle.c's
// ymd_serialize/ymd_parse recursive walk. Every encoded value is a
// <tag byte><payload> record; containers recurse, strings and counts are
// varint length-prefixed.
//
// A container being dumped is marked busy for the duration of its own
// walk (mirroring pickle.c's fg_enter/fg_leave pair) and refuses to dump
// again while busy, which is how a self-referential array or map is
// caught rather than recursing forever.
package pickle

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/emptyland/ymd-sub000/internal/container"
	"github.com/emptyland/ymd-sub000/internal/strpool"
	"github.com/emptyland/ymd-sub000/internal/value"
)

// ErrSelfReferential reports a container that contains itself, directly
// or transitively (spec §4.3's dump must terminate).
var ErrSelfReferential = errors.New("pickle: self-referential container")

type tag byte

const (
	tagNil tag = iota
	tagInt
	tagFloat
	tagBool
	tagKStr
	tagDyay
	tagHmap
	tagSkls
)

// Dump serializes a value into a self-describing byte record.
func Dump(v value.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := dumpValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func putUvarint(buf *bytes.Buffer, x uint64) {
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scratch[:], x)
	buf.Write(scratch[:n])
}

func putString(buf *bytes.Buffer, b []byte) {
	putUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func dumpValue(buf *bytes.Buffer, v value.Value) error {
	switch v.Tag {
	case value.TagNil:
		buf.WriteByte(byte(tagNil))
		return nil
	case value.TagInt:
		buf.WriteByte(byte(tagInt))
		putUvarint(buf, uint64(v.I))
		return nil
	case value.TagFloat:
		buf.WriteByte(byte(tagFloat))
		putUvarint(buf, math.Float64bits(v.F))
		return nil
	case value.TagBool:
		buf.WriteByte(byte(tagBool))
		if v.B {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		return nil
	case value.TagRef:
		return dumpRef(buf, v.Ref)
	default:
		return fmt.Errorf("pickle: cannot dump a %s value", v.TypeOf())
	}
}

func dumpRef(buf *bytes.Buffer, o value.Obj) error {
	switch r := o.(type) {
	case *strpool.KStr:
		buf.WriteByte(byte(tagKStr))
		putString(buf, r.Bytes)
		return nil
	case *container.Dyay:
		return dumpDyay(buf, r)
	case *container.Hmap:
		return dumpHmap(buf, r)
	case *container.Skls:
		return dumpSkls(buf, r)
	default:
		ro, _ := o.(value.RefObject)
		name := "?"
		if ro != nil {
			name = ro.TypeName()
		}
		return fmt.Errorf("pickle: cannot dump a %s value", name)
	}
}

func enter(o value.Obj) error {
	h := o.Header()
	if h.IsBusy() {
		return ErrSelfReferential
	}
	h.SetBusy(true)
	return nil
}

func leave(o value.Obj) { o.Header().SetBusy(false) }

func dumpDyay(buf *bytes.Buffer, a *container.Dyay) error {
	if err := enter(a); err != nil {
		return err
	}
	defer leave(a)
	buf.WriteByte(byte(tagDyay))
	putUvarint(buf, uint64(a.Count()))
	var err error
	a.Each(func(_ int, v value.Value) bool {
		err = dumpValue(buf, v)
		return err == nil
	})
	return err
}

func dumpHmap(buf *bytes.Buffer, m *container.Hmap) error {
	if err := enter(m); err != nil {
		return err
	}
	defer leave(m)
	buf.WriteByte(byte(tagHmap))
	putUvarint(buf, uint64(m.Count()))
	var err error
	m.Each(func(k, v value.Value) bool {
		if err = dumpValue(buf, k); err != nil {
			return false
		}
		err = dumpValue(buf, v)
		return err == nil
	})
	return err
}

func dumpSkls(buf *bytes.Buffer, s *container.Skls) error {
	if err := enter(s); err != nil {
		return err
	}
	defer leave(s)
	buf.WriteByte(byte(tagSkls))
	putUvarint(buf, uint64(s.Count()))
	var err error
	s.Each(func(k, v value.Value) bool {
		if err = dumpValue(buf, k); err != nil {
			return false
		}
		err = dumpValue(buf, v)
		return err == nil
	})
	return err
}

// reader is a cursor over a Dump()'d byte slice; Load drives it the way
// pickle.c's zistream drives ymd_parse.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, fmt.Errorf("pickle: truncated record")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) uvarint() (uint64, error) {
	x, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("pickle: malformed varint")
	}
	r.pos += n
	return x, nil
}

func (r *reader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("pickle: truncated record")
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Load deserializes a Dump()'d record. pool and white back any new
// interned strings and reference objects the decoded value needs; the
// caller registers the resulting tree with its collector (internal/gc's
// Register), since Load itself has no collector handle.
func Load(b []byte, pool *strpool.Pool, white value.Color) (value.Value, error) {
	r := &reader{buf: b}
	return loadValue(r, pool, white)
}

func loadValue(r *reader, pool *strpool.Pool, white value.Color) (value.Value, error) {
	t, err := r.byte()
	if err != nil {
		return value.Nil(), err
	}
	switch tag(t) {
	case tagNil:
		return value.Nil(), nil
	case tagInt:
		x, err := r.uvarint()
		if err != nil {
			return value.Nil(), err
		}
		return value.NewInt(int64(x)), nil
	case tagFloat:
		x, err := r.uvarint()
		if err != nil {
			return value.Nil(), err
		}
		return value.NewFloat(math.Float64frombits(x)), nil
	case tagBool:
		x, err := r.byte()
		if err != nil {
			return value.Nil(), err
		}
		return value.NewBool(x != 0), nil
	case tagKStr:
		n, err := r.uvarint()
		if err != nil {
			return value.Nil(), err
		}
		raw, err := r.take(int(n))
		if err != nil {
			return value.Nil(), err
		}
		return value.NewRef(pool.Intern(raw, white)), nil
	case tagDyay:
		n, err := r.uvarint()
		if err != nil {
			return value.Nil(), err
		}
		a := container.NewDyay(int(n), white)
		for i := uint64(0); i < n; i++ {
			elem, err := loadValue(r, pool, white)
			if err != nil {
				return value.Nil(), err
			}
			a.Add(elem)
		}
		return value.NewRef(a), nil
	case tagHmap:
		n, err := r.uvarint()
		if err != nil {
			return value.Nil(), err
		}
		m := container.NewHmap(int(n), white)
		for i := uint64(0); i < n; i++ {
			k, err := loadValue(r, pool, white)
			if err != nil {
				return value.Nil(), err
			}
			v, err := loadValue(r, pool, white)
			if err != nil {
				return value.Nil(), err
			}
			if err := m.Put(k, v); err != nil {
				return value.Nil(), err
			}
		}
		return value.NewRef(m), nil
	case tagSkls:
		n, err := r.uvarint()
		if err != nil {
			return value.Nil(), err
		}
		s := container.NewSkls(container.OrderAsc, nil, 0, white)
		for i := uint64(0); i < n; i++ {
			k, err := loadValue(r, pool, white)
			if err != nil {
				return value.Nil(), err
			}
			v, err := loadValue(r, pool, white)
			if err != nil {
				return value.Nil(), err
			}
			s.Put(k, v)
		}
		return value.NewRef(s), nil
	default:
		return value.Nil(), fmt.Errorf("pickle: unknown tag %d", t)
	}
}
