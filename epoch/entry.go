// Package epoch implements the leader epoch cache: a per-partition, durable
// record of which leader epoch first wrote each range of offsets in a
// replicated log. It is consulted by replication to detect and truncate
// divergent log suffixes, and to answer "what was the last offset written
// under epoch E?".
package epoch

// UndefinedEpoch is returned wherever no epoch applies, e.g. LatestEpoch on
// an empty cache.
const UndefinedEpoch int32 = -1

// UndefinedOffset is returned wherever no offset applies, e.g. EndOffsetFor
// an epoch with no recorded history.
const UndefinedOffset int64 = -1

// checkpointVersion is the version written to and expected in line 1 of the
// checkpoint file format.
const checkpointVersion = 0

// Entry is an immutable (epoch, startOffset) pair: the offset of the first
// record written while the given leader epoch was current.
type Entry struct {
	Epoch       int32
	StartOffset int64
}
