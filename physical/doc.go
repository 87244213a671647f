// Package physical lowers a logical plan.Plan into a pipeline graph: a
// single topological pass that fuses stateless producer/consumer chains
// into one compiled pipeline and inserts a pipeline boundary (Emit
// upstream, Scan downstream) wherever fusion does not apply (spec §4.D).
package physical
