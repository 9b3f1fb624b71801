package codec

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

// Reader decodes TLV-encoded fields from a byte slice.
//
// Field reads take a target tag and a required flag. The reader scans
// forward, skipping fields with smaller tags, and stops as soon as it peeks
// a tag greater than the target or a struct-end marker — so reading an
// absent optional field costs nothing beyond the scan and never consumes
// the following field's head.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a reader over data. The reader does not copy the slice.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Pos returns the current cursor position.
func (r *Reader) Pos() int { return r.pos }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

// HasMore reports whether any bytes remain.
func (r *Reader) HasMore() bool { return r.pos < len(r.data) }

// readByte consumes one byte.
func (r *Reader) readByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, io.ErrUnexpectedEOF
	}
	c := r.data[r.pos]
	r.pos++
	return c, nil
}

// take consumes n bytes and returns them without copying.
func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, io.ErrUnexpectedEOF
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

// decodeHead reads a head at pos without moving the cursor, returning the
// head and its encoded size (1 or 2 bytes).
func (r *Reader) decodeHead(pos int) (Head, int, error) {
	if pos >= len(r.data) {
		return Head{}, 0, io.ErrUnexpectedEOF
	}
	c := r.data[pos]
	ty := TarsType(c & 0x0F)
	if !ty.valid() {
		return Head{}, 0, fmt.Errorf("codec: unknown type code %d", c&0x0F)
	}
	tag := c >> 4
	if tag < 15 {
		return Head{Type: ty, Tag: tag}, 1, nil
	}
	if pos+1 >= len(r.data) {
		return Head{}, 0, io.ErrUnexpectedEOF
	}
	return Head{Type: ty, Tag: r.data[pos+1]}, 2, nil
}

// PeekHead returns the next head without consuming it.
func (r *Reader) PeekHead() (Head, error) {
	h, _, err := r.decodeHead(r.pos)
	return h, err
}

// ReadHead consumes and returns the next head.
func (r *Reader) ReadHead() (Head, error) {
	h, n, err := r.decodeHead(r.pos)
	if err != nil {
		return Head{}, err
	}
	r.pos += n
	return h, nil
}

// skipToTag scans forward to the field with the target tag.
//
// Returns (head, true) with the head consumed when the tag is found, and
// (zero, false) when the scan hits a greater tag, a struct end, or the end
// of input. Fields with smaller tags are skipped whole; a conforming
// stream places each tag at most once but the scan does not rely on order
// beyond stopping early at the first greater tag.
func (r *Reader) skipToTag(tag uint8) (Head, bool, error) {
	for r.HasMore() {
		head, err := r.PeekHead()
		if err != nil {
			return Head{}, false, err
		}
		if head.IsStructEnd() || head.Tag > tag {
			return Head{}, false, nil
		}
		if head.Tag == tag {
			if _, err := r.ReadHead(); err != nil {
				return Head{}, false, err
			}
			return head, true, nil
		}
		if _, err := r.ReadHead(); err != nil {
			return Head{}, false, err
		}
		if err := r.skipField(head); err != nil {
			return Head{}, false, err
		}
	}
	return Head{}, false, nil
}

// skipField advances past the payload of a field whose head has already
// been consumed.
func (r *Reader) skipField(head Head) error {
	switch head.Type {
	case TypeInt8:
		_, err := r.take(1)
		return err
	case TypeInt16:
		_, err := r.take(2)
		return err
	case TypeInt32, TypeFloat:
		_, err := r.take(4)
		return err
	case TypeInt64, TypeDouble:
		_, err := r.take(8)
		return err
	case TypeString1:
		n, err := r.readByte()
		if err != nil {
			return err
		}
		_, err = r.take(int(n))
		return err
	case TypeString4:
		raw, err := r.take(4)
		if err != nil {
			return err
		}
		_, err = r.take(int(binary.BigEndian.Uint32(raw)))
		return err
	case TypeMap:
		size, err := r.ReadInt32(0, true)
		if err != nil {
			return err
		}
		for i := int32(0); i < size; i++ {
			for j := 0; j < 2; j++ {
				h, err := r.ReadHead()
				if err != nil {
					return err
				}
				if err := r.skipField(h); err != nil {
					return err
				}
			}
		}
		return nil
	case TypeList:
		size, err := r.ReadInt32(0, true)
		if err != nil {
			return err
		}
		for i := int32(0); i < size; i++ {
			h, err := r.ReadHead()
			if err != nil {
				return err
			}
			if err := r.skipField(h); err != nil {
				return err
			}
		}
		return nil
	case TypeStructBegin:
		return r.SkipToStructEnd()
	case TypeStructEnd, TypeZero:
		return nil
	case TypeSimpleList:
		if _, err := r.ReadHead(); err != nil { // inner element head
			return err
		}
		size, err := r.ReadInt32(0, true)
		if err != nil {
			return err
		}
		_, err = r.take(int(size))
		return err
	}
	return fmt.Errorf("codec: cannot skip type %s", head.Type)
}

// SkipToStructEnd consumes fields until the matching struct-end marker.
func (r *Reader) SkipToStructEnd() error {
	for r.HasMore() {
		head, err := r.ReadHead()
		if err != nil {
			return err
		}
		if head.IsStructEnd() {
			return nil
		}
		if err := r.skipField(head); err != nil {
			return err
		}
	}
	return fmt.Errorf("codec: missing struct end: %w", io.ErrUnexpectedEOF)
}

// notFound builds the result of a failed tag scan.
func notFound(tag uint8, require bool) error {
	if require {
		return fmt.Errorf("codec: required tag %d not found", tag)
	}
	return nil
}

// ReadInt8 reads an int8 field. Absent optional fields read as 0.
func (r *Reader) ReadInt8(tag uint8, require bool) (int8, error) {
	head, ok, err := r.skipToTag(tag)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, notFound(tag, require)
	}
	switch head.Type {
	case TypeZero:
		return 0, nil
	case TypeInt8:
		c, err := r.readByte()
		return int8(c), err
	}
	return 0, fmt.Errorf("codec: tag %d: want int8, got %s", tag, head.Type)
}

// ReadInt16 reads an int16 field, accepting any narrower encoding.
func (r *Reader) ReadInt16(tag uint8, require bool) (int16, error) {
	head, ok, err := r.skipToTag(tag)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, notFound(tag, require)
	}
	switch head.Type {
	case TypeZero:
		return 0, nil
	case TypeInt8:
		c, err := r.readByte()
		return int16(int8(c)), err
	case TypeInt16:
		raw, err := r.take(2)
		if err != nil {
			return 0, err
		}
		return int16(binary.BigEndian.Uint16(raw)), nil
	}
	return 0, fmt.Errorf("codec: tag %d: want int16, got %s", tag, head.Type)
}

// ReadInt32 reads an int32 field, accepting any narrower encoding.
func (r *Reader) ReadInt32(tag uint8, require bool) (int32, error) {
	head, ok, err := r.skipToTag(tag)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, notFound(tag, require)
	}
	switch head.Type {
	case TypeZero:
		return 0, nil
	case TypeInt8:
		c, err := r.readByte()
		return int32(int8(c)), err
	case TypeInt16:
		raw, err := r.take(2)
		if err != nil {
			return 0, err
		}
		return int32(int16(binary.BigEndian.Uint16(raw))), nil
	case TypeInt32:
		raw, err := r.take(4)
		if err != nil {
			return 0, err
		}
		return int32(binary.BigEndian.Uint32(raw)), nil
	}
	return 0, fmt.Errorf("codec: tag %d: want int32, got %s", tag, head.Type)
}

// ReadInt64 reads an int64 field, accepting any narrower encoding.
func (r *Reader) ReadInt64(tag uint8, require bool) (int64, error) {
	head, ok, err := r.skipToTag(tag)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, notFound(tag, require)
	}
	switch head.Type {
	case TypeZero:
		return 0, nil
	case TypeInt8:
		c, err := r.readByte()
		return int64(int8(c)), err
	case TypeInt16:
		raw, err := r.take(2)
		if err != nil {
			return 0, err
		}
		return int64(int16(binary.BigEndian.Uint16(raw))), nil
	case TypeInt32:
		raw, err := r.take(4)
		if err != nil {
			return 0, err
		}
		return int64(int32(binary.BigEndian.Uint32(raw))), nil
	case TypeInt64:
		raw, err := r.take(8)
		if err != nil {
			return 0, err
		}
		return int64(binary.BigEndian.Uint64(raw)), nil
	}
	return 0, fmt.Errorf("codec: tag %d: want int64, got %s", tag, head.Type)
}

// ReadUint8 reads a uint8 stored in its promoted int16 form.
func (r *Reader) ReadUint8(tag uint8, require bool) (uint8, error) {
	v, err := r.ReadInt16(tag, require)
	return uint8(v), err
}

// ReadUint16 reads a uint16 stored in its promoted int32 form.
func (r *Reader) ReadUint16(tag uint8, require bool) (uint16, error) {
	v, err := r.ReadInt32(tag, require)
	return uint16(v), err
}

// ReadUint32 reads a uint32 stored in its promoted int64 form.
func (r *Reader) ReadUint32(tag uint8, require bool) (uint32, error) {
	v, err := r.ReadInt64(tag, require)
	return uint32(v), err
}

// ReadFloat reads a float32 field.
func (r *Reader) ReadFloat(tag uint8, require bool) (float32, error) {
	head, ok, err := r.skipToTag(tag)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, notFound(tag, require)
	}
	switch head.Type {
	case TypeZero:
		return 0, nil
	case TypeFloat:
		raw, err := r.take(4)
		if err != nil {
			return 0, err
		}
		return math.Float32frombits(binary.BigEndian.Uint32(raw)), nil
	}
	return 0, fmt.Errorf("codec: tag %d: want float, got %s", tag, head.Type)
}

// ReadDouble reads a float64 field, accepting a float32 encoding.
func (r *Reader) ReadDouble(tag uint8, require bool) (float64, error) {
	head, ok, err := r.skipToTag(tag)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, notFound(tag, require)
	}
	switch head.Type {
	case TypeZero:
		return 0, nil
	case TypeFloat:
		raw, err := r.take(4)
		if err != nil {
			return 0, err
		}
		return float64(math.Float32frombits(binary.BigEndian.Uint32(raw))), nil
	case TypeDouble:
		raw, err := r.take(8)
		if err != nil {
			return 0, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(raw)), nil
	}
	return 0, fmt.Errorf("codec: tag %d: want double, got %s", tag, head.Type)
}

// ReadBool reads a bool stored as int8.
func (r *Reader) ReadBool(tag uint8, require bool) (bool, error) {
	v, err := r.ReadInt8(tag, require)
	return v != 0, err
}

// ReadString reads a string field and validates it as UTF-8.
func (r *Reader) ReadString(tag uint8, require bool) (string, error) {
	head, ok, err := r.skipToTag(tag)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", notFound(tag, require)
	}
	var n int
	switch head.Type {
	case TypeString1:
		c, err := r.readByte()
		if err != nil {
			return "", err
		}
		n = int(c)
	case TypeString4:
		raw, err := r.take(4)
		if err != nil {
			return "", err
		}
		n = int(binary.BigEndian.Uint32(raw))
	default:
		return "", fmt.Errorf("codec: tag %d: want string, got %s", tag, head.Type)
	}
	raw, err := r.take(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("codec: tag %d: invalid UTF-8 string", tag)
	}
	return string(raw), nil
}

// ReadBytes reads a byte slice field. SimpleList is the writer's form; a
// List of int8 elements is accepted for cross-implementation tolerance.
func (r *Reader) ReadBytes(tag uint8, require bool) ([]byte, error) {
	head, ok, err := r.skipToTag(tag)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound(tag, require)
	}
	switch head.Type {
	case TypeSimpleList:
		if _, err := r.ReadHead(); err != nil { // inner element head
			return nil, err
		}
		size, err := r.ReadInt32(0, true)
		if err != nil {
			return nil, err
		}
		raw, err := r.take(int(size))
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	case TypeList:
		size, err := r.ReadInt32(0, true)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, size)
		for i := int32(0); i < size; i++ {
			h, err := r.ReadHead()
			if err != nil {
				return nil, err
			}
			switch h.Type {
			case TypeZero:
				out = append(out, 0)
			case TypeInt8:
				c, err := r.readByte()
				if err != nil {
					return nil, err
				}
				out = append(out, c)
			default:
				return nil, fmt.Errorf("codec: tag %d: invalid byte element %s", tag, h.Type)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("codec: tag %d: want bytes, got %s", tag, head.Type)
}

// ReadMapBegin positions the reader inside a map field and returns its
// element count. The caller then reads N key/value pairs at tags 0 and 1.
func (r *Reader) ReadMapBegin(tag uint8, require bool) (int32, error) {
	head, ok, err := r.skipToTag(tag)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, notFound(tag, require)
	}
	if head.Type != TypeMap {
		return 0, fmt.Errorf("codec: tag %d: want map, got %s", tag, head.Type)
	}
	return r.ReadInt32(0, true)
}

// ReadListBegin positions the reader inside a list field and returns its
// element count. A missing optional field reads as count 0 with ok=false.
func (r *Reader) ReadListBegin(tag uint8, require bool) (int32, bool, error) {
	head, ok, err := r.skipToTag(tag)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, notFound(tag, require)
	}
	if head.Type != TypeList {
		return 0, false, fmt.Errorf("codec: tag %d: want list, got %s", tag, head.Type)
	}
	n, err := r.ReadInt32(0, true)
	return n, err == nil, err
}

// ReadStructBegin positions the reader inside a struct field. Returns
// false when an optional struct is absent.
func (r *Reader) ReadStructBegin(tag uint8, require bool) (bool, error) {
	head, ok, err := r.skipToTag(tag)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, notFound(tag, require)
	}
	if head.Type != TypeStructBegin {
		return false, fmt.Errorf("codec: tag %d: want struct, got %s", tag, head.Type)
	}
	return true, nil
}

// ReadStringMap reads a map<string,string> field.
func (r *Reader) ReadStringMap(tag uint8, require bool) (map[string]string, error) {
	size, err := r.ReadMapBegin(tag, require)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, size)
	for i := int32(0); i < size; i++ {
		k, err := r.ReadString(0, true)
		if err != nil {
			return nil, err
		}
		v, err := r.ReadString(1, true)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

// ReadStringList reads a list<string> field.
func (r *Reader) ReadStringList(tag uint8, require bool) ([]string, error) {
	size, ok, err := r.ReadListBegin(tag, require)
	if err != nil || !ok {
		return nil, err
	}
	out := make([]string, 0, size)
	for i := int32(0); i < size; i++ {
		s, err := r.ReadString(0, true)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
