package schema

// ColumnMemoryLayout precomputes per-field column base offsets; tuple i
// of field k sits at columnBase[k] + i*fieldSize[k] (spec §4.B).
type ColumnMemoryLayout struct {
	schema      Schema
	columnBases []int
	fieldSizes  []int
	bufferSize  int
	capacity    int
}

// NewColumnMemoryLayout precomputes column bases assuming the caller will
// size each column to hold `capacity` tuples.
func NewColumnMemoryLayout(s Schema, bufferSize, capacity int) *ColumnMemoryLayout {
	sizes := make([]int, len(s.Fields))
	bases := make([]int, len(s.Fields))
	running := 0
	for i, f := range s.Fields {
		bases[i] = running
		sizes[i] = f.Size()
		running += sizes[i] * capacity
	}
	return &ColumnMemoryLayout{schema: s, columnBases: bases, fieldSizes: sizes, bufferSize: bufferSize, capacity: capacity}
}

// Capacity returns the number of tuples this layout was sized for.
func (l *ColumnMemoryLayout) Capacity() int { return l.capacity }

// FieldOffset returns the byte offset of fieldIdx's value for tupleIdx.
func (l *ColumnMemoryLayout) FieldOffset(tupleIdx, fieldIdx int) int {
	return l.columnBases[fieldIdx] + tupleIdx*l.fieldSizes[fieldIdx]
}

// ColumnBase returns the starting byte offset of a field's column.
func (l *ColumnMemoryLayout) ColumnBase(fieldIdx int) int { return l.columnBases[fieldIdx] }
