package epoch

// LogEndOffsetSource is a capability, supplied by the enclosing log at
// construction time, that returns the current log-end offset (the offset
// that would be assigned to the next appended record) on demand.
//
// Implementations must be non-blocking and side-effect-free: EpochCache
// invokes this while holding its own lock, and may invoke it arbitrarily
// often.
type LogEndOffsetSource func() int64
