package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteHeadSmallTag(t *testing.T) {
	b := NewBuffer()
	b.WriteHead(TypeInt32, 5)
	require.Equal(t, []byte{5<<4 | byte(TypeInt32)}, b.Bytes())
}

func TestWriteHeadExtendedTag(t *testing.T) {
	b := NewBuffer()
	b.WriteHead(TypeInt32, 20)
	require.Equal(t, []byte{15<<4 | byte(TypeInt32), 20}, b.Bytes())
}

func TestWriteHeadTagBoundary(t *testing.T) {
	// Tag 14 is the last single-byte tag; tag 15 spills into a second byte.
	b := NewBuffer()
	b.WriteHead(TypeZero, 14)
	assert.Equal(t, 1, b.Len())

	b.Reset()
	b.WriteHead(TypeZero, 15)
	assert.Equal(t, 2, b.Len())
}

func TestWriteSmallInt32(t *testing.T) {
	// int32=42 at tag 0 demotes all the way to int8: head 0x00, payload 0x2A.
	b := NewBuffer()
	b.WriteInt32(42, 0)
	require.Equal(t, []byte{0x00, 0x2A}, b.Bytes())
}

func TestWriteZeroInt64(t *testing.T) {
	// int64=0 at tag 3 is a lone ZeroTag head: 0x3C.
	b := NewBuffer()
	b.WriteInt64(0, 3)
	require.Equal(t, []byte{0x3C}, b.Bytes())
}

func TestWriteExtendedTagString(t *testing.T) {
	// "hi" at tag 20: extended head 0xF6, tag byte 20, length 2, bytes.
	b := NewBuffer()
	b.WriteString("hi", 20)
	require.Equal(t, []byte{0xF6, 0x14, 0x02, 'h', 'i'}, b.Bytes())
}

func TestWriteZeroElision(t *testing.T) {
	for tag := uint8(0); tag < 15; tag++ {
		b := NewBuffer()
		b.WriteInt32(0, tag)
		require.Equal(t, []byte{tag<<4 | byte(TypeZero)}, b.Bytes(), "tag %d", tag)

		b.Reset()
		b.WriteDouble(0, tag)
		require.Equal(t, []byte{tag<<4 | byte(TypeZero)}, b.Bytes(), "tag %d", tag)
	}
}

func TestWriteIntCompaction(t *testing.T) {
	tests := []struct {
		value    int64
		wantType TarsType
		wantLen  int
	}{
		{0, TypeZero, 1},
		{42, TypeInt8, 2},
		{-128, TypeInt8, 2},
		{1000, TypeInt16, 3},
		{-32768, TypeInt16, 3},
		{100000, TypeInt32, 5},
		{10000000000, TypeInt64, 9},
	}
	for _, tt := range tests {
		b := NewBuffer()
		b.WriteInt64(tt.value, 0)
		require.Equal(t, tt.wantLen, b.Len(), "value %d", tt.value)
		assert.Equal(t, byte(tt.wantType), b.Bytes()[0]&0x0F, "value %d", tt.value)
	}
}

func TestWriteStringForms(t *testing.T) {
	b := NewBuffer()
	b.WriteString("hello", 0)
	assert.Equal(t, byte(TypeString1), b.Bytes()[0]&0x0F)
	assert.Equal(t, byte(5), b.Bytes()[1])

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	b.Reset()
	b.WriteString(string(long), 0)
	assert.Equal(t, byte(TypeString4), b.Bytes()[0]&0x0F)
}

func TestBytesWithLength(t *testing.T) {
	b := NewBuffer()
	b.WriteInt32(123, 0)
	out := b.BytesWithLength()
	n, status := ParsePackage(out)
	require.Equal(t, PackageFull, status)
	assert.Equal(t, len(out), n)
}

func TestParsePackage(t *testing.T) {
	// Too short for a verdict.
	_, status := ParsePackage([]byte{0, 0, 1})
	assert.Equal(t, PackageLess, status)

	// Complete packet of 8 bytes.
	n, status := ParsePackage([]byte{0, 0, 0, 8, 1, 2, 3, 4})
	assert.Equal(t, PackageFull, status)
	assert.Equal(t, 8, n)

	// Declared length beyond the data.
	_, status = ParsePackage([]byte{0, 0, 0, 10, 1, 2, 3, 4})
	assert.Equal(t, PackageLess, status)

	// Empty body is illegal.
	_, status = ParsePackage([]byte{0, 0, 0, 4})
	assert.Equal(t, PackageError, status)

	// Length below the prefix size is garbage.
	_, status = ParsePackage([]byte{0, 0, 0, 1, 9})
	assert.Equal(t, PackageError, status)
}
