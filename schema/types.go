package schema

import "fmt"

// PhysicalType is one of the closed set of physical field types a Schema
// field may hold.
type PhysicalType int

const (
	Bool PhysicalType = iota
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	FixedChar // fixed-width byte array, width carried on the Field
	VarSized  // 4-byte length prefix + inline bytes or child-buffer index
)

func (t PhysicalType) String() string {
	switch t {
	case Bool:
		return "bool"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case FixedChar:
		return "fixed_char"
	case VarSized:
		return "var_sized"
	default:
		return "unknown"
	}
}

// fixedSize returns the on-wire size in bytes for fixed-width types, or 0
// for FixedChar (callers must consult Field.Width) and VarSized (callers
// must consult the inline tag size, see VarSizedTagSize).
func (t PhysicalType) fixedSize() int {
	switch t {
	case Bool, Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 0
	}
}

// VarSizedTagSize is the inline footprint of a variable-sized field: a
// 4-byte length and a 4-byte pointer-or-child-index.
const VarSizedTagSize = 8

// Field is one named, typed column of a Schema.
type Field struct {
	Name  string
	Type  PhysicalType
	Width int // only meaningful for FixedChar
}

// Size returns this field's fixed on-buffer footprint in bytes.
func (f Field) Size() int {
	switch f.Type {
	case FixedChar:
		return f.Width
	case VarSized:
		return VarSizedTagSize
	default:
		return f.Type.fixedSize()
	}
}

func (f Field) String() string {
	if f.Type == FixedChar {
		return fmt.Sprintf("%s:fixed_char[%d]", f.Name, f.Width)
	}
	return fmt.Sprintf("%s:%s", f.Name, f.Type)
}
