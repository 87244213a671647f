// Package runtime implements the pipeline execution layer (spec §4.F):
// PipelineExecutionContext (the state shared across every task
// invocation on one pipeline) and ExecutionContext (the per-invocation
// wrapper adding a bump-pointer arena and per-operator scratch state).
//
// Grounded on the teacher's core/buffer zero-copy batching idiom,
// generalized from raw byte slabs to an arena carved out of pooled
// TupleBuffers, and on the teacher's reactor event-loop convention of
// passing one long-lived context object through a chain of handlers.
package runtime
