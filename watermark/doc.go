// Package watermark implements the MultiOriginWatermarkProcessor (spec
// §4.H): per-origin gap-free sequence reassembly via a container/heap
// min-heap of pending sequence numbers, and a global watermark that is
// the minimum of every origin's gap-free watermark.
//
// container/heap is used deliberately rather than a pack library: the
// spec names a per-origin "min-heap of pending sequence numbers"
// directly, and no example repo in the pack wires a third-party heap —
// the standard heap.Interface is the idiomatic fit (see DESIGN.md).
package watermark
