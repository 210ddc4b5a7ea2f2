package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// DataType identifies the logical type of a column.
type DataType uint8

const (
	TypeInt DataType = iota + 1
	TypeBigInt
	TypeDouble
	TypeString
	TypeBoolean
)

// String returns the SQL-ish name of the type.
func (t DataType) String() string {
	switch t {
	case TypeInt:
		return "INT"
	case TypeBigInt:
		return "BIGINT"
	case TypeDouble:
		return "DOUBLE"
	case TypeString:
		return "STRING"
	case TypeBoolean:
		return "BOOLEAN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler so schemas persist readable type names.
func (t DataType) MarshalText() ([]byte, error) {
	if t.String() == "UNKNOWN" {
		return nil, fmt.Errorf("cannot marshal unknown data type %d", t)
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *DataType) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "INT":
		*t = TypeInt
	case "BIGINT":
		*t = TypeBigInt
	case "DOUBLE":
		*t = TypeDouble
	case "STRING":
		*t = TypeString
	case "BOOLEAN":
		*t = TypeBoolean
	default:
		return fmt.Errorf("unknown data type %q", string(b))
	}
	return nil
}

// DataField is one column of a RowType. ID is stable across schema evolution.
type DataField struct {
	ID   int      `json:"id"`
	Name string   `json:"name"`
	Type DataType `json:"type"`
}

// RowType is an ordered list of fields.
type RowType []DataField

// FieldCount returns the number of fields.
func (rt RowType) FieldCount() int { return len(rt) }

// FieldNames returns the field names in order.
func (rt RowType) FieldNames() []string {
	names := make([]string, len(rt))
	for i, f := range rt {
		names[i] = f.Name
	}
	return names
}

// IndexOf returns the position of the named field or -1.
func (rt RowType) IndexOf(name string) int {
	for i, f := range rt {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Project returns the sub-type made of the named fields, in the order given.
func (rt RowType) Project(names []string) (RowType, error) {
	out := make(RowType, 0, len(names))
	for _, n := range names {
		idx := rt.IndexOf(n)
		if idx < 0 {
			return nil, fmt.Errorf("field %q not found in row type", n)
		}
		out = append(out, rt[idx])
	}
	return out, nil
}

// Row is a decoded tuple. Values are int32, int64, float64, string, bool or nil.
type Row []any

// Project picks the values at the given positions.
func (r Row) Project(indexes []int) Row {
	out := make(Row, len(indexes))
	for i, idx := range indexes {
		out[i] = r[idx]
	}
	return out
}

// BinaryRow is the canonical binary form of a Row. It is string-backed so that it
// can be compared with == and used as a map key.
type BinaryRow string

// EmptyRow is the zero-arity row used as the partition of unpartitioned tables.
var EmptyRow = EncodeRow(nil)

const (
	tagNull byte = iota
	tagInt
	tagBigInt
	tagDouble
	tagString
	tagBool
)

// ErrMalformedRow is returned when a BinaryRow cannot be decoded.
var ErrMalformedRow = errors.New("malformed binary row")

// EncodeRow serializes a Row. It panics on value types outside the row model,
// which always indicates a programming error in the caller.
func EncodeRow(r Row) BinaryRow {
	buf := make([]byte, 0, 8+len(r)*9)
	buf = binary.AppendUvarint(buf, uint64(len(r)))
	for _, v := range r {
		switch x := v.(type) {
		case nil:
			buf = append(buf, tagNull)
		case int32:
			buf = append(buf, tagInt)
			buf = binary.AppendVarint(buf, int64(x))
		case int:
			buf = append(buf, tagBigInt)
			buf = binary.AppendVarint(buf, int64(x))
		case int64:
			buf = append(buf, tagBigInt)
			buf = binary.AppendVarint(buf, x)
		case float64:
			buf = append(buf, tagDouble)
			buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(x))
		case string:
			buf = append(buf, tagString)
			buf = binary.AppendUvarint(buf, uint64(len(x)))
			buf = append(buf, x...)
		case bool:
			buf = append(buf, tagBool)
			if x {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		default:
			panic(fmt.Sprintf("core: unsupported row value type %T", v))
		}
	}
	return BinaryRow(buf)
}

// Decode deserializes the row.
func (b BinaryRow) Decode() (Row, error) {
	data := []byte(b)
	n, read := binary.Uvarint(data)
	if read <= 0 {
		return nil, ErrMalformedRow
	}
	data = data[read:]
	row := make(Row, 0, n)
	for i := uint64(0); i < n; i++ {
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: truncated at field %d", ErrMalformedRow, i)
		}
		tag := data[0]
		data = data[1:]
		switch tag {
		case tagNull:
			row = append(row, nil)
		case tagInt, tagBigInt:
			v, m := binary.Varint(data)
			if m <= 0 {
				return nil, fmt.Errorf("%w: bad varint at field %d", ErrMalformedRow, i)
			}
			data = data[m:]
			if tag == tagInt {
				row = append(row, int32(v))
			} else {
				row = append(row, v)
			}
		case tagDouble:
			if len(data) < 8 {
				return nil, fmt.Errorf("%w: short double at field %d", ErrMalformedRow, i)
			}
			row = append(row, math.Float64frombits(binary.BigEndian.Uint64(data)))
			data = data[8:]
		case tagString:
			l, m := binary.Uvarint(data)
			if m <= 0 || uint64(len(data)-m) < l {
				return nil, fmt.Errorf("%w: bad string at field %d", ErrMalformedRow, i)
			}
			row = append(row, string(data[m:m+int(l)]))
			data = data[m+int(l):]
		case tagBool:
			if len(data) < 1 {
				return nil, fmt.Errorf("%w: short bool at field %d", ErrMalformedRow, i)
			}
			row = append(row, data[0] == 1)
			data = data[1:]
		default:
			return nil, fmt.Errorf("%w: unknown tag %d", ErrMalformedRow, tag)
		}
	}
	return row, nil
}

// MustDecode decodes the row and panics on malformed input. Only for rows produced
// by EncodeRow in the same process.
func (b BinaryRow) MustDecode() Row {
	r, err := b.Decode()
	if err != nil {
		panic(err)
	}
	return r
}

// Arity returns the number of fields, or 0 for an empty or malformed row.
func (b BinaryRow) Arity() int {
	n, read := binary.Uvarint([]byte(b))
	if read <= 0 {
		return 0
	}
	return int(n)
}

// Hash returns a stable 64-bit hash of the encoded row.
func (b BinaryRow) Hash() uint64 {
	return xxhash.Sum64String(string(b))
}

// String renders the decoded values, e.g. "(2024-01-01, 3)".
func (b BinaryRow) String() string {
	r, err := b.Decode()
	if err != nil {
		return fmt.Sprintf("<malformed %x>", []byte(b))
	}
	parts := make([]string, len(r))
	for i, v := range r {
		parts[i] = fmt.Sprint(v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
