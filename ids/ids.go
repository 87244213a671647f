// Package ids defines the small set of scalar identifiers that flow with
// every TupleBuffer: origin, sequence/chunk ordering, and event time.
// Kept dependency-free so buffer, watermark, window and join can all use
// them without creating import cycles.
package ids

// OriginID identifies a logical stream of ordered buffers. Assigned fresh
// by a Source, or created anew by windowing operators that re-sequence
// their output (spec §4.C).
type OriginID uint64

// InvalidOrigin is the zero value, never assigned to a real stream.
const InvalidOrigin OriginID = 0

// SequenceNumber totally orders buffers within an OriginID.
type SequenceNumber uint64

// ChunkNumber orders chunks within a single (OriginID, SequenceNumber).
type ChunkNumber uint32

// Timestamp is an event-time value in milliseconds since the epoch.
type Timestamp int64

// MaxTimestamp is used as +infinity when flushing staged state on soft stop.
const MaxTimestamp Timestamp = 1<<63 - 1
