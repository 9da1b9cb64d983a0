package epoch

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/liftbridge-io/leaderepoch/logger"
)

// Options configures a new EpochCache. CheckpointPath and LogEndOffsetSource
// are required; TopicPartition may be empty; Logger defaults to a silenced
// logger when omitted, mirroring how the enclosing commit log configures its
// own components.
type Options struct {
	// TopicPartition identifies the partition this cache serves. It is used
	// only for diagnostics (log messages); the cache itself does not
	// coordinate across partitions.
	TopicPartition string

	// CheckpointPath is the file the cache's history is persisted to.
	CheckpointPath string

	// LogEndOffsetSource returns the enclosing log's current log-end offset.
	// It is invoked while the cache holds its lock and must not block.
	LogEndOffsetSource LogEndOffsetSource

	// Logger receives diagnostic output. Defaults to a silenced logger.
	Logger logger.Logger
}

// EpochCache is a per-partition, durable cache mapping leader epochs to the
// log offsets at which they first produced data. All exported methods are
// safe for concurrent use; every method that observes or invokes
// LogEndOffsetSource, and every method that mutates history, is serialized
// under a single lock per §5 of the design (queries take the lock too,
// since the latest-epoch query must invoke LogEndOffsetSource under it).
type EpochCache struct {
	mu sync.Mutex

	topicPartition string
	entries        []Entry
	checkpoint     *CheckpointStore
	leo            LogEndOffsetSource
	log            logger.Logger
	stats          *flushHistogram

	proposalPending bool
	proposedEpoch   int32
}

// New constructs an EpochCache for a partition, loading any history already
// persisted at opts.CheckpointPath. A missing checkpoint file is not an
// error; it is treated as an empty history. A present but malformed file
// fails construction with a *CorruptCheckpointError.
//
// New performs no reconciliation against the enclosing log's actual oldest
// or newest offset. Per the leader-epoch-checkpoint convention this cache
// follows, callers that track their own log-start-offset and log-end-offset
// should call ClearEarliest and ClearLatest immediately after construction
// to reconcile a checkpoint that raced ahead of, or fell behind, the log
// during an unclean shutdown.
func New(opts Options) (*EpochCache, error) {
	if opts.CheckpointPath == "" {
		return nil, &InvalidArgumentError{Reason: "checkpoint path is empty"}
	}
	if opts.LogEndOffsetSource == nil {
		return nil, &InvalidArgumentError{Reason: "log end offset source is required"}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewLogger(0)
		opts.Logger.Silent(true)
	}

	store := NewCheckpointStore(opts.CheckpointPath)
	entries, err := store.Load()
	if err != nil {
		return nil, err
	}
	if err := validateHistory(entries); err != nil {
		return nil, &CorruptCheckpointError{
			Path:   opts.CheckpointPath,
			Reason: "persisted history violates ordering invariants: " + err.Error(),
		}
	}

	return &EpochCache{
		topicPartition: opts.TopicPartition,
		entries:        entries,
		checkpoint:     store,
		leo:            opts.LogEndOffsetSource,
		log:            opts.Logger,
		stats:          newFlushHistogram(),
		proposedEpoch:  UndefinedEpoch,
	}, nil
}

// validateHistory checks the §3 ordering invariants hold across entries.
// It is used to reject a checkpoint file that parses cleanly but encodes an
// impossible history (e.g. written by a corrupted or incompatible process).
func validateHistory(entries []Entry) error {
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		if cur.Epoch <= prev.Epoch {
			return errors.Errorf("epoch %d at index %d does not exceed preceding epoch %d", cur.Epoch, i, prev.Epoch)
		}
		if cur.StartOffset < prev.StartOffset {
			return errors.Errorf("start offset %d at index %d precedes preceding start offset %d", cur.StartOffset, i, prev.StartOffset)
		}
	}
	return nil
}

// Assign appends (epoch, startOffset) to the history, subject to the
// monotonicity rules in §4.3: an epoch that regresses, repeats, or an
// offset that regresses relative to the last entry is silently ignored
// rather than rejected, since a follower may legitimately replay a message
// it has already recorded.
func (c *EpochCache) Assign(epoch int32, startOffset int64) error {
	if epoch < 0 {
		return &InvalidArgumentError{Reason: "epoch must be non-negative"}
	}
	if startOffset < 0 {
		return &InvalidArgumentError{Reason: "start offset must be non-negative"}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.assignLocked(epoch, startOffset)
}

func (c *EpochCache) assignLocked(epoch int32, startOffset int64) error {
	if n := len(c.entries); n > 0 {
		last := c.entries[n-1]
		if epoch < last.Epoch {
			return nil
		}
		if epoch == last.Epoch {
			return nil
		}
		if startOffset < last.StartOffset {
			return nil
		}
	}
	c.entries = append(c.entries, Entry{Epoch: epoch, StartOffset: startOffset})
	if err := c.persistLocked(); err != nil {
		return err
	}
	c.log.Debugf("leader epoch cache [%s]: assigned epoch %d at offset %d", c.topicPartition, epoch, startOffset)
	return nil
}

// LatestEpoch returns the epoch of the last entry, or UndefinedEpoch if the
// history is empty.
func (c *EpochCache) LatestEpoch() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latestEpochLocked()
}

func (c *EpochCache) latestEpochLocked() int32 {
	if len(c.entries) == 0 {
		return UndefinedEpoch
	}
	return c.entries[len(c.entries)-1].Epoch
}

// EndOffsetFor answers "what offset marks the end of data for
// requestedEpoch?" per the rules in §4.3. It returns UndefinedOffset when no
// applicable entry exists, the live log-end offset for the latest epoch,
// and otherwise the start offset of the next recorded epoch.
func (c *EpochCache) EndOffsetFor(requestedEpoch int32) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endOffsetForLocked(requestedEpoch)
}

func (c *EpochCache) endOffsetForLocked(requestedEpoch int32) int64 {
	if requestedEpoch == UndefinedEpoch {
		return UndefinedOffset
	}
	if len(c.entries) == 0 {
		return UndefinedOffset
	}
	if requestedEpoch < c.entries[0].Epoch {
		return UndefinedOffset
	}
	latest := c.entries[len(c.entries)-1].Epoch
	if requestedEpoch == latest {
		return c.leo()
	}
	if requestedEpoch > latest {
		return UndefinedOffset
	}
	// Smallest epoch strictly greater than requestedEpoch. Entries are
	// sorted by epoch, so a binary search suffices even as history grows to
	// the thousands of entries a long-lived partition can accumulate.
	idx := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].Epoch > requestedEpoch
	})
	if idx == len(c.entries) {
		// Unreachable given the checks above (requestedEpoch < latest), but
		// guarded rather than indexed blindly.
		return UndefinedOffset
	}
	return c.entries[idx].StartOffset
}

// ClearEarliest truncates history from the head, used when the log's
// log-start-offset advances past historical data. See §4.3 for the exact
// retention rule.
func (c *EpochCache) ClearEarliest(offset int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if offset == UndefinedOffset || len(c.entries) == 0 {
		return nil
	}
	if offset <= c.entries[0].StartOffset {
		return nil
	}

	// k is the largest index with entries[k].StartOffset <= offset; find it
	// as one less than the first index whose StartOffset exceeds offset.
	idx := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].StartOffset > offset
	})
	k := idx - 1

	kept := make([]Entry, len(c.entries)-k)
	copy(kept, c.entries[k:])
	if kept[0].StartOffset < offset {
		kept[0] = Entry{Epoch: kept[0].Epoch, StartOffset: offset}
	}
	c.entries = kept
	if err := c.persistLocked(); err != nil {
		return err
	}
	c.log.Debugf("leader epoch cache [%s]: cleared earliest entries up to offset %d", c.topicPartition, offset)
	return nil
}

// ClearLatest truncates history from the tail, used on unclean-leader
// truncation or follower divergence. Removal is inclusive of any entry
// starting exactly at offset.
func (c *EpochCache) ClearLatest(offset int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if offset == UndefinedOffset || len(c.entries) == 0 {
		return nil
	}

	idx := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].StartOffset >= offset
	})
	if idx == len(c.entries) {
		return nil
	}

	c.entries = append([]Entry(nil), c.entries[:idx]...)
	if err := c.persistLocked(); err != nil {
		return err
	}
	c.log.Debugf("leader epoch cache [%s]: cleared latest entries from offset %d", c.topicPartition, offset)
	return nil
}

// Clear removes all entries and persists the resulting empty history.
func (c *EpochCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return nil
	}
	c.entries = nil
	if err := c.persistLocked(); err != nil {
		return err
	}
	c.log.Debugf("leader epoch cache [%s]: cleared all entries", c.topicPartition)
	return nil
}

// Entries returns a stable snapshot of the current history. Mutating the
// returned slice does not affect the cache.
func (c *EpochCache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make([]Entry, len(c.entries))
	copy(snapshot, c.entries)
	return snapshot
}

// Replace atomically swaps this cache's entire committed history for a
// snapshot of another cache's history, validating the replacement's
// invariants before the swap. It is used after an out-of-line process (log
// compaction) recomputes a partition's epoch history wholesale rather than
// incrementally.
func (c *EpochCache) Replace(other *EpochCache) error {
	replacement := other.Entries()
	if err := validateHistory(replacement); err != nil {
		return &InvalidArgumentError{Reason: "replacement history violates ordering invariants: " + err.Error()}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = replacement
	if err := c.persistLocked(); err != nil {
		return err
	}
	c.log.Debugf("leader epoch cache [%s]: replaced history with %d entries", c.topicPartition, len(replacement))
	return nil
}

// Rebase copies entries whose start offset is at or after cutoff into dst's
// history, applying the standard Assign rules entry-by-entry so dst's
// invariants are never bypassed. It is used to carry forward epoch entries
// recorded against segments appended during a compaction run onto the
// newly compacted history.
func (c *EpochCache) Rebase(dst *EpochCache, cutoff int64) error {
	for _, e := range c.Entries() {
		if e.StartOffset < cutoff {
			continue
		}
		if err := dst.Assign(e.Epoch, e.StartOffset); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns a snapshot of checkpoint-flush diagnostics. It carries no
// correctness signal; it exists for operators to observe checkpoint write
// behavior.
func (c *EpochCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.snapshot()
}

// persistLocked rewrites the full checkpoint file from the current
// in-memory history. Callers must hold c.mu. Per §4.5, a persist failure
// does not roll back the in-memory mutation that triggered it — the error
// is surfaced to the caller, and the next successful mutation heals the
// on-disk state.
func (c *EpochCache) persistLocked() error {
	start := time.Now()
	err := c.checkpoint.Save(c.entries)
	elapsed := time.Since(start)
	c.stats.record(elapsed)
	if err != nil {
		c.log.Errorf("leader epoch cache [%s]: failed to persist checkpoint after %s: %v",
			c.topicPartition, logger.FormatDuration(elapsed), err)
		return err
	}
	c.log.Debugf("leader epoch cache [%s]: persisted %s entries in %s",
		c.topicPartition, logger.FormatCount(len(c.entries)), logger.FormatDuration(elapsed))
	return nil
}
