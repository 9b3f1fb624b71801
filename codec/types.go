// Package codec implements the Tars TLV (tag-type-length-value) wire encoding.
//
// Every field on the wire starts with a one- or two-byte head that carries the
// field tag and the data type, followed by a type-dependent payload:
//
//	tag < 15:   ┌─────────┬────────┐
//	            │ tag<<4  │  type  │   1 byte
//	            └─────────┴────────┘
//	tag >= 15:  ┌─────────┬────────┬─────────┐
//	            │ 15<<4   │  type  │   tag   │   2 bytes
//	            └─────────┴────────┴─────────┘
//
// Integers shrink to the smallest representation that holds the value, and a
// zero of any numeric type collapses to a bare ZeroTag head. The result is a
// compact, self-describing stream that a reader can skip through field by
// field without a schema.
package codec

import "fmt"

// TarsType is the 4-bit type code stored in the low nibble of a head byte.
type TarsType byte

const (
	TypeInt8        TarsType = 0  // 1 byte signed
	TypeInt16       TarsType = 1  // 2 bytes big-endian signed
	TypeInt32       TarsType = 2  // 4 bytes big-endian signed
	TypeInt64       TarsType = 3  // 8 bytes big-endian signed
	TypeFloat       TarsType = 4  // 4 bytes big-endian IEEE-754
	TypeDouble      TarsType = 5  // 8 bytes big-endian IEEE-754
	TypeString1     TarsType = 6  // 1-byte length, then bytes
	TypeString4     TarsType = 7  // 4-byte big-endian length, then bytes
	TypeMap         TarsType = 8  // int32 count, then 2N tagged entries
	TypeList        TarsType = 9  // int32 count, then N tagged elements
	TypeStructBegin TarsType = 10 // nested fields until StructEnd
	TypeStructEnd   TarsType = 11 // no payload
	TypeZero        TarsType = 12 // no payload, numeric zero
	TypeSimpleList  TarsType = 13 // inner int8 head, int32 count, raw bytes
)

func (t TarsType) String() string {
	switch t {
	case TypeInt8:
		return "int8"
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeString1:
		return "string1"
	case TypeString4:
		return "string4"
	case TypeMap:
		return "map"
	case TypeList:
		return "list"
	case TypeStructBegin:
		return "struct-begin"
	case TypeStructEnd:
		return "struct-end"
	case TypeZero:
		return "zero"
	case TypeSimpleList:
		return "simple-list"
	}
	return fmt.Sprintf("type(%d)", byte(t))
}

// valid reports whether t is one of the 14 wire type codes.
func (t TarsType) valid() bool {
	return t <= TypeSimpleList
}

// Head is a decoded field head: the data type and the field tag.
type Head struct {
	Type TarsType
	Tag  uint8
}

// IsZero reports whether the head marks an elided numeric zero.
func (h Head) IsZero() bool { return h.Type == TypeZero }

// IsStructEnd reports whether the head closes the enclosing struct.
func (h Head) IsStructEnd() bool { return h.Type == TypeStructEnd }
