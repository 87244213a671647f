// Package buffer implements the tuple buffer layer (spec §3, §4.A):
// reference-counted, pooled, fixed-size memory segments carrying an
// embedded control block, plus the NUMA-segmented pool manager that
// hands them out.
//
// Adapted from the teacher's pool.BufferPoolManager / pool.slabPool
// (NUMA-segmented size-class pools backed by a lock-free free-list) and
// core/buffer's arena-allocation idiom, generalized from raw []byte
// buffers to TupleBuffer handles carrying stream metadata.
package buffer
