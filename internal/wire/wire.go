package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	version byte = 2

	// hdr is the fixed prefix:
	// magic(4) | ver(1) | shape(1) | sliding(u64) | deadline(u64) | ndeps(u32)
	hdr = 4 + 1 + 1 + 8 + 8 + 4
	// minDep is the smallest possible encoded dependency: klen(u16) | key(>=1) | ver(u64)
	minDep = 2 + 1 + 8
)

var (
	ErrCorrupt = errors.New("datacache: corrupt entry")
	magic4     = [...]byte{'D', 'C', 'A', 'C'}
)

// Dep is one dependency token recorded in a frame together with the
// version it had when the entry was written.
type Dep struct {
	Key     string
	Version uint64
}

// Frame is the on-provider representation of a stored entry.
//
//	magic(4) | ver(1) | shape(1) | sliding(u64 ns be) | deadline(u64 unix ns be) | ndeps(u32 be)
//	[ klen(u16 be) | key(klen) | version(u64 be) ] * ndeps
//	vlen(u32 be) | payload(vlen)
type Frame struct {
	Shape   byte
	Sliding time.Duration
	// Deadline is when the entry lapses unless read again (unix nanos).
	// 0 leaves expiry to the provider.
	Deadline int64
	Deps     []Dep
	Payload  []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Encode serializes f. Dependency keys must be 1..0xFFFF bytes long.
func Encode(f Frame) ([]byte, error) {
	if f.Sliding < 0 {
		return nil, fmt.Errorf("datacache: negative sliding expiration %s", f.Sliding)
	}
	if f.Deadline < 0 {
		return nil, fmt.Errorf("datacache: negative deadline %d", f.Deadline)
	}
	total := hdr + 4 + len(f.Payload)
	for _, d := range f.Deps {
		if l := len(d.Key); l == 0 || l > 0xFFFF {
			return nil, fmt.Errorf("datacache: invalid dependency key length %d", l)
		}
		total += 2 + len(d.Key) + 8
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(f.Shape)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], uint64(f.Sliding))
	buf.Write(u8[:])
	binary.BigEndian.PutUint64(u8[:], uint64(f.Deadline))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(f.Deps)))
	buf.Write(u4[:])

	for _, d := range f.Deps {
		binary.BigEndian.PutUint16(u2[:], uint16(len(d.Key)))
		buf.Write(u2[:])
		buf.WriteString(d.Key)
		binary.BigEndian.PutUint64(u8[:], d.Version)
		buf.Write(u8[:])
	}

	binary.BigEndian.PutUint32(u4[:], uint32(len(f.Payload)))
	buf.Write(u4[:])
	buf.Write(f.Payload)
	return buf.Bytes(), nil
}

// Decode parses a frame produced by Encode. Framing is strict: unknown
// magic/version, truncated fields and trailing bytes are all ErrCorrupt.
// The payload aliases b.
func Decode(b []byte) (Frame, error) {
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return Frame{}, ErrCorrupt
	}
	f := Frame{Shape: b[5]}
	off := 6

	sliding := binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	if sliding > uint64(1<<63-1) {
		return Frame{}, ErrCorrupt
	}
	f.Sliding = time.Duration(sliding)

	deadline := binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	if deadline > uint64(1<<63-1) {
		return Frame{}, ErrCorrupt
	}
	f.Deadline = int64(deadline)

	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// bound the preallocation by what the remaining bytes could hold
	if n < 0 || n > (len(b)-off)/minDep {
		return Frame{}, ErrCorrupt
	}
	if n > 0 {
		f.Deps = make([]Dep, 0, n)
	}
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return Frame{}, ErrCorrupt
		}
		klen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if klen <= 0 || klen > len(b)-off {
			return Frame{}, ErrCorrupt
		}
		key := string(b[off : off+klen])
		off += klen

		if off+8 > len(b) {
			return Frame{}, ErrCorrupt
		}
		ver := binary.BigEndian.Uint64(b[off : off+8])
		off += 8
		f.Deps = append(f.Deps, Dep{Key: key, Version: ver})
	}

	if off+4 > len(b) {
		return Frame{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // exact: no trailing bytes
		return Frame{}, ErrCorrupt
	}
	f.Payload = b[off : off+vlen]
	return f, nil
}
