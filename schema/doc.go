// Package schema implements field-typed stream schemas and the row and
// column memory layouts that map (field, tupleIndex) to a byte offset
// inside a buffer.TupleBuffer payload.
//
// Grounded on the teacher's plain-struct, no-inheritance style (see
// concurrency.cell, buffer.BufferControlBlock) generalized to a value
// type carrying an ordered field list, and on the field-offset and
// variable-sized-data tagging behavior of NebulaStream's memory layouts
// (original_source/nes-common).
package schema
