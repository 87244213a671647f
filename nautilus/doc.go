// Package nautilus implements the symbolic-tracing code-generation core
// (spec §4.E): operator code is written against a traced Value type;
// running it once with symbolic parameters records an ExecutionTrace,
// conditional branches fork the trace and are rejoined with a phi value,
// and loops are recognized by repeat-site hashing rather than unrolled.
// SSACreationPhase normalizes the recorded trace into basic blocks with
// explicit block arguments; TraceToIRConversionPhase lowers that into a
// typed register IR (Program); LoopInferencePhase marks loop headers for
// backends that emit structured loops. Two backends are provided: a
// required tree-walking interpreter and a closure-compiling backend that
// pre-composes each instruction into a Go closure chain, standing in for
// a native JIT (see DESIGN.md for why this substitutes for an
// LLVM/wasmer-go backend).
package nautilus
