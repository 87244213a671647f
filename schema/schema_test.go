package schema

import (
	"testing"

	"github.com/nebulastream/nesengine/buffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exampleSchema() Schema {
	return New(RowLayout,
		Field{Name: "id", Type: Uint64},
		Field{Name: "value", Type: Int64},
	)
}

func TestSchemaIndexAndResolve(t *testing.T) {
	s := exampleSchema()
	assert.Equal(t, 0, s.IndexOf("id"))
	assert.Equal(t, 1, s.IndexOf("value"))
	assert.Equal(t, -1, s.IndexOf("missing"))

	assert.NoError(t, s.Resolve("id", "value"))
	assert.Error(t, s.Resolve("nope"))
}

func TestSchemaQualifyAndWithFields(t *testing.T) {
	s := exampleSchema()
	qualified := s.Qualify("left")
	assert.Equal(t, "left.id", qualified.Fields[0].Name)

	extended := s.WithFields(Field{Name: "windowStart", Type: Uint64})
	assert.Len(t, extended.Fields, 3)
	assert.Len(t, s.Fields, 2, "WithFields must not mutate the receiver")
}

func TestRowMemoryLayoutOffsetsAndCapacity(t *testing.T) {
	s := exampleSchema() // 8 + 8 = 16 bytes/tuple
	layout := NewRowMemoryLayout(s, 64)
	assert.Equal(t, 16, layout.TupleSize())
	assert.Equal(t, 4, layout.Capacity())
	assert.Equal(t, 0, layout.FieldOffset(0, 0))
	assert.Equal(t, 8, layout.FieldOffset(0, 1))
	assert.Equal(t, 16, layout.FieldOffset(1, 0))
	assert.Equal(t, 32, layout.TupleOffset(2))
}

func TestColumnMemoryLayoutOffsets(t *testing.T) {
	s := exampleSchema()
	layout := NewColumnMemoryLayout(s, 64, 4)
	assert.Equal(t, 0, layout.ColumnBase(0))
	assert.Equal(t, 32, layout.ColumnBase(1)) // 8 bytes * 4 tuples
	assert.Equal(t, 8, layout.FieldOffset(1, 0))
	assert.Equal(t, 40, layout.FieldOffset(1, 1))
}

func TestVarSizedInlineRoundTrip(t *testing.T) {
	pool := buffer.NewPool(-1, 64, 1)
	parent, err := pool.GetBufferBlocking()
	require.NoError(t, err)
	defer parent.Release()

	require.NoError(t, WriteVarSized(&parent, 0, []byte("ab"), pool))
	got := ReadVarSized(parent, 0)
	assert.Equal(t, 2, got.Len())
	assert.Equal(t, []byte("ab"), got.Bytes())
}

func TestVarSizedSpillToChildBuffer(t *testing.T) {
	pool := buffer.NewPool(-1, 64, 2)
	parent, err := pool.GetBufferBlocking()
	require.NoError(t, err)
	defer parent.Release()

	long := []byte("this value is longer than the inline threshold")
	require.NoError(t, WriteVarSized(&parent, 0, long, pool))

	got := ReadVarSized(parent, 0)
	assert.Equal(t, len(long), got.Len())
	assert.Equal(t, long, got.Bytes())
}
