package physical

import (
	"github.com/nebulastream/nesengine/buffer"
	"github.com/nebulastream/nesengine/ids"
	"github.com/nebulastream/nesengine/schema"
)

// Record is an in-flight typed tuple inside a pipeline invocation: a
// mapping from field name to its concrete value, scoped to one operator
// chain invocation for a single tuple (spec §3, "Record"). Compiled
// Selection/Map operators read and write through this map; Nautilus
// tracing operates on the scalar values extracted from it, not on the
// map itself.
type Record map[string]any

// Clone returns a shallow copy, used by Map (which may rebind a field)
// so upstream operators keep their own untouched view of the tuple.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ReadRow decodes every field of s for tupleIdx out of buf according to
// s's selected memory layout (spec §4.B).
func ReadRow(buf buffer.TupleBuffer, s schema.Schema, tupleIdx int) Record {
	rec := make(Record, len(s.Fields))
	data := buf.Bytes()
	switch s.Layout {
	case schema.ColumnLayout:
		layout := schema.NewColumnMemoryLayout(s, buf.Capacity(), rowCapacity(s, buf))
		for i, f := range s.Fields {
			off := layout.FieldOffset(tupleIdx, i)
			rec[f.Name] = readField(buf, data, off, f)
		}
	default:
		layout := schema.NewRowMemoryLayout(s, buf.Capacity())
		for i, f := range s.Fields {
			off := layout.FieldOffset(tupleIdx, i)
			rec[f.Name] = readField(buf, data, off, f)
		}
	}
	return rec
}

func readField(buf buffer.TupleBuffer, data []byte, off int, f schema.Field) any {
	if f.Type == schema.VarSized {
		return schema.ReadVarSized(buf, off)
	}
	return schema.ReadValue(data, off, f.Type)
}

// WriteRow encodes rec's fields into buf at tupleIdx according to s's
// memory layout. Variable-sized fields larger than the inline threshold
// are spilled to a child buffer obtained from pool.
func WriteRow(buf buffer.TupleBuffer, s schema.Schema, tupleIdx int, rec Record, pool *buffer.Pool) error {
	data := buf.Bytes()
	switch s.Layout {
	case schema.ColumnLayout:
		layout := schema.NewColumnMemoryLayout(s, buf.Capacity(), rowCapacity(s, buf))
		for i, f := range s.Fields {
			off := layout.FieldOffset(tupleIdx, i)
			if err := writeField(&buf, data, off, f, rec[f.Name], pool); err != nil {
				return err
			}
		}
	default:
		layout := schema.NewRowMemoryLayout(s, buf.Capacity())
		for i, f := range s.Fields {
			off := layout.FieldOffset(tupleIdx, i)
			if err := writeField(&buf, data, off, f, rec[f.Name], pool); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeField(buf *buffer.TupleBuffer, data []byte, off int, f schema.Field, v any, pool *buffer.Pool) error {
	if f.Type == schema.VarSized {
		return schema.WriteVarSized(buf, off, v.([]byte), pool)
	}
	schema.WriteValue(data, off, f.Type, v)
	return nil
}

func rowCapacity(s schema.Schema, buf buffer.TupleBuffer) int {
	rl := schema.NewRowMemoryLayout(s, buf.Capacity())
	if c := rl.Capacity(); c > 0 {
		return c
	}
	return 1
}

// OriginTag pairs an origin id with a watermark timestamp. No operator in
// this package uses it: Scan records the input buffer's origin and
// sequence number on the ExecutionContext, and Emit stamps its own
// OriginID on every output buffer.
type OriginTag struct {
	Origin    ids.OriginID
	Watermark ids.Timestamp
}
