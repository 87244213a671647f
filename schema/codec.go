package schema

import (
	"encoding/binary"
	"math"
)

// ReadValue decodes the scalar value of physical type t at byteOffset
// within data. Variable-sized fields are not handled here — callers use
// ReadVarSized for those (spec §4.B).
func ReadValue(data []byte, offset int, t PhysicalType) any {
	switch t {
	case Bool:
		return data[offset] != 0
	case Int8:
		return int8(data[offset])
	case Uint8:
		return data[offset]
	case Int16:
		return int16(binary.LittleEndian.Uint16(data[offset:]))
	case Uint16:
		return binary.LittleEndian.Uint16(data[offset:])
	case Int32:
		return int32(binary.LittleEndian.Uint32(data[offset:]))
	case Uint32:
		return binary.LittleEndian.Uint32(data[offset:])
	case Int64:
		return int64(binary.LittleEndian.Uint64(data[offset:]))
	case Uint64:
		return binary.LittleEndian.Uint64(data[offset:])
	case Float32:
		return math.Float32frombits(binary.LittleEndian.Uint32(data[offset:]))
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(data[offset:]))
	case FixedChar:
		return append([]byte(nil), data[offset:offset+VarSizedTagSize]...)
	default:
		return nil
	}
}

// WriteValue encodes v as physical type t at byteOffset within data.
func WriteValue(data []byte, offset int, t PhysicalType, v any) {
	switch t {
	case Bool:
		if v.(bool) {
			data[offset] = 1
		} else {
			data[offset] = 0
		}
	case Int8:
		data[offset] = byte(v.(int8))
	case Uint8:
		data[offset] = v.(uint8)
	case Int16:
		binary.LittleEndian.PutUint16(data[offset:], uint16(v.(int16)))
	case Uint16:
		binary.LittleEndian.PutUint16(data[offset:], v.(uint16))
	case Int32:
		binary.LittleEndian.PutUint32(data[offset:], uint32(v.(int32)))
	case Uint32:
		binary.LittleEndian.PutUint32(data[offset:], v.(uint32))
	case Int64:
		binary.LittleEndian.PutUint64(data[offset:], uint64(v.(int64)))
	case Uint64:
		binary.LittleEndian.PutUint64(data[offset:], v.(uint64))
	case Float32:
		binary.LittleEndian.PutUint32(data[offset:], math.Float32bits(v.(float32)))
	case Float64:
		binary.LittleEndian.PutUint64(data[offset:], math.Float64bits(v.(float64)))
	}
}
