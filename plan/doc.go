// Package plan implements the logical query plan: value-typed operator
// nodes addressed by id, a side-table Topology owning parent/child edges
// (the source's operator graph was cyclic parent<->child pointers; this
// is re-architected per spec §9 as value nodes plus a separate edge
// table so the plan has no reference cycles), a monadic builder, and the
// bottom-up schema- and origin-id-inference passes.
//
// Grounded on the teacher's plain-struct, registry-free style; the
// schema/origin inference passes are ported from the bottom-up algorithm
// described for NebulaStream's logical operators (original_source/
// nes-logical-operators).
package plan
