package codec

import (
	"encoding/binary"
	"math"
)

// Buffer is a growing byte buffer that writes TLV-encoded fields.
//
// Writes are sequential and infallible; the buffer only grows. Callers
// serialize a struct by writing its fields in ascending tag order and then
// taking Bytes() or BytesWithLength().
type Buffer struct {
	buf []byte
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// NewBufferCapacity creates an empty buffer with preallocated capacity.
func NewBufferCapacity(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, 0, capacity)}
}

// Len returns the number of encoded bytes.
func (b *Buffer) Len() int { return len(b.buf) }

// Reset discards all written data, keeping the allocation.
func (b *Buffer) Reset() { b.buf = b.buf[:0] }

// Bytes returns the encoded bytes. The slice aliases the buffer's storage.
func (b *Buffer) Bytes() []byte { return b.buf }

// BytesWithLength returns the encoded bytes prefixed with the 4-byte
// big-endian total length (prefix included), the framing used on the wire.
func (b *Buffer) BytesWithLength() []byte {
	total := len(b.buf) + 4
	out := make([]byte, 4, total)
	binary.BigEndian.PutUint32(out, uint32(total))
	return append(out, b.buf...)
}

// WriteRaw appends raw bytes with no head.
func (b *Buffer) WriteRaw(data []byte) {
	b.buf = append(b.buf, data...)
}

// WriteHead appends a field head, using the extended two-byte form when the
// tag does not fit the high nibble.
func (b *Buffer) WriteHead(ty TarsType, tag uint8) {
	if tag < 15 {
		b.buf = append(b.buf, tag<<4|byte(ty))
	} else {
		b.buf = append(b.buf, 15<<4|byte(ty), tag)
	}
}

// WriteInt8 writes an int8 field. Zero collapses to a ZeroTag head.
func (b *Buffer) WriteInt8(v int8, tag uint8) {
	if v == 0 {
		b.WriteHead(TypeZero, tag)
		return
	}
	b.WriteHead(TypeInt8, tag)
	b.buf = append(b.buf, byte(v))
}

// WriteInt16 writes an int16 field, demoting to int8 when the value fits.
func (b *Buffer) WriteInt16(v int16, tag uint8) {
	if v >= math.MinInt8 && v <= math.MaxInt8 {
		b.WriteInt8(int8(v), tag)
		return
	}
	b.WriteHead(TypeInt16, tag)
	b.buf = binary.BigEndian.AppendUint16(b.buf, uint16(v))
}

// WriteInt32 writes an int32 field, demoting to int16 when the value fits.
func (b *Buffer) WriteInt32(v int32, tag uint8) {
	if v >= math.MinInt16 && v <= math.MaxInt16 {
		b.WriteInt16(int16(v), tag)
		return
	}
	b.WriteHead(TypeInt32, tag)
	b.buf = binary.BigEndian.AppendUint32(b.buf, uint32(v))
}

// WriteInt64 writes an int64 field, demoting to int32 when the value fits.
func (b *Buffer) WriteInt64(v int64, tag uint8) {
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		b.WriteInt32(int32(v), tag)
		return
	}
	b.WriteHead(TypeInt64, tag)
	b.buf = binary.BigEndian.AppendUint64(b.buf, uint64(v))
}

// WriteUint8 writes a uint8 promoted to int16 so the full range survives.
func (b *Buffer) WriteUint8(v uint8, tag uint8) {
	b.WriteInt16(int16(v), tag)
}

// WriteUint16 writes a uint16 promoted to int32.
func (b *Buffer) WriteUint16(v uint16, tag uint8) {
	b.WriteInt32(int32(v), tag)
}

// WriteUint32 writes a uint32 promoted to int64.
func (b *Buffer) WriteUint32(v uint32, tag uint8) {
	b.WriteInt64(int64(v), tag)
}

// WriteFloat writes a float32 field. Exactly 0.0 collapses to ZeroTag.
func (b *Buffer) WriteFloat(v float32, tag uint8) {
	if v == 0 {
		b.WriteHead(TypeZero, tag)
		return
	}
	b.WriteHead(TypeFloat, tag)
	b.buf = binary.BigEndian.AppendUint32(b.buf, math.Float32bits(v))
}

// WriteDouble writes a float64 field. Exactly 0.0 collapses to ZeroTag.
func (b *Buffer) WriteDouble(v float64, tag uint8) {
	if v == 0 {
		b.WriteHead(TypeZero, tag)
		return
	}
	b.WriteHead(TypeDouble, tag)
	b.buf = binary.BigEndian.AppendUint64(b.buf, math.Float64bits(v))
}

// WriteBool writes a bool as an int8 0 or 1.
func (b *Buffer) WriteBool(v bool, tag uint8) {
	if v {
		b.WriteInt8(1, tag)
	} else {
		b.WriteInt8(0, tag)
	}
}

// WriteString writes a string, choosing String1 for lengths under 256 and
// String4 otherwise.
func (b *Buffer) WriteString(s string, tag uint8) {
	if len(s) > 255 {
		b.WriteHead(TypeString4, tag)
		b.buf = binary.BigEndian.AppendUint32(b.buf, uint32(len(s)))
	} else {
		b.WriteHead(TypeString1, tag)
		b.buf = append(b.buf, byte(len(s)))
	}
	b.buf = append(b.buf, s...)
}

// WriteBytes writes a byte slice as a SimpleList: the outer head at tag,
// an inner int8 head at tag 0, the int32 length at tag 0, then raw bytes.
func (b *Buffer) WriteBytes(data []byte, tag uint8) {
	b.WriteHead(TypeSimpleList, tag)
	b.WriteHead(TypeInt8, 0)
	b.WriteInt32(int32(len(data)), 0)
	b.buf = append(b.buf, data...)
}

// WriteMapHead writes a map head and its element count. The caller then
// writes each entry as key at tag 0 and value at tag 1.
func (b *Buffer) WriteMapHead(size int, tag uint8) {
	b.WriteHead(TypeMap, tag)
	b.WriteInt32(int32(size), 0)
}

// WriteListHead writes a list head and its element count. The caller then
// writes each element at tag 0.
func (b *Buffer) WriteListHead(size int, tag uint8) {
	b.WriteHead(TypeList, tag)
	b.WriteInt32(int32(size), 0)
}

// WriteStructBegin opens a nested struct at the given tag.
func (b *Buffer) WriteStructBegin(tag uint8) {
	b.WriteHead(TypeStructBegin, tag)
}

// WriteStructEnd closes the innermost struct.
func (b *Buffer) WriteStructEnd() {
	b.WriteHead(TypeStructEnd, 0)
}

// WriteStringMap writes a map<string,string> field.
func (b *Buffer) WriteStringMap(m map[string]string, tag uint8) {
	b.WriteMapHead(len(m), tag)
	for k, v := range m {
		b.WriteString(k, 0)
		b.WriteString(v, 1)
	}
}

// WriteStringList writes a list<string> field.
func (b *Buffer) WriteStringList(items []string, tag uint8) {
	b.WriteListHead(len(items), tag)
	for _, s := range items {
		b.WriteString(s, 0)
	}
}
