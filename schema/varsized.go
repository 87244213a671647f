package schema

import (
	"encoding/binary"

	"github.com/nebulastream/nesengine/buffer"
	"github.com/nebulastream/nesengine/engerrors"
)

// inlineThreshold is the largest variable-sized value stored directly in
// the tuple's inline tag bytes rather than spilled to a child buffer.
const inlineThreshold = 4

// VariableSizedData references either bytes stored inline in the parent
// buffer's tag or bytes held in one of the parent's child buffers.
type VariableSizedData struct {
	inline     []byte
	childBuf   buffer.TupleBuffer
	hasChild   bool
	length     uint32
	childIndex int
}

// Len reports the logical byte length of the value.
func (v VariableSizedData) Len() int { return int(v.length) }

// Bytes returns the referenced payload, reading from the child buffer
// when the value was spilled.
func (v VariableSizedData) Bytes() []byte {
	if v.hasChild {
		return v.childBuf.Bytes()[:v.length]
	}
	return v.inline
}

// WriteVarSized writes value's inline tag at byteOffset in parent's
// payload. Values no larger than inlineThreshold are stored directly in
// the tag; larger values are copied into a freshly attached child buffer
// referenced by index.
func WriteVarSized(parent *buffer.TupleBuffer, byteOffset int, value []byte, pool *buffer.Pool) error {
	tag := parent.Bytes()[byteOffset : byteOffset+VarSizedTagSize]
	binary.LittleEndian.PutUint32(tag[0:4], uint32(len(value)))

	if len(value) <= inlineThreshold {
		binary.LittleEndian.PutUint32(tag[4:8], 0)
		copy(tag[4:4+len(value)], value)
		return nil
	}

	child, err := pool.GetUnpooledBuffer(len(value))
	if err != nil {
		return engerrors.Wrap(engerrors.AllocationFailure, "variable-sized spill allocation failed", err)
	}
	copy(child.Bytes(), value)
	idx, err := parent.AttachChild(child)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(tag[4:8], uint32(idx)+1) // child index, stored 1-based
	return nil
}

// ReadVarSized decodes the tag at byteOffset in parent's payload. A
// length no larger than inlineThreshold means the bytes are inline.
func ReadVarSized(parent buffer.TupleBuffer, byteOffset int) VariableSizedData {
	tag := parent.Bytes()[byteOffset : byteOffset+VarSizedTagSize]
	length := binary.LittleEndian.Uint32(tag[0:4])
	childRef := binary.LittleEndian.Uint32(tag[4:8])

	if length <= inlineThreshold {
		return VariableSizedData{inline: append([]byte(nil), tag[4:4+length]...), length: length}
	}
	child, ok := parent.Child(int(childRef - 1))
	if !ok {
		return VariableSizedData{length: 0}
	}
	return VariableSizedData{childBuf: child, hasChild: true, length: length, childIndex: int(childRef - 1)}
}
