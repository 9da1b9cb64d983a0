package epoch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeLog is a minimal stand-in for the enclosing commit log, providing a
// mutable log-end offset the way server/commitlog's activeSegment does.
type fakeLog struct {
	leo int64
}

func (f *fakeLog) LogEndOffsetSource() LogEndOffsetSource {
	return func() int64 { return f.leo }
}

func newTestCache(t *testing.T, leo *fakeLog) *EpochCache {
	t.Helper()
	c, err := New(Options{
		TopicPartition:     "orders-0",
		CheckpointPath:     filepath.Join(t.TempDir(), "leader-epoch-checkpoint"),
		LogEndOffsetSource: leo.LogEndOffsetSource(),
	})
	require.NoError(t, err)
	return c
}

func TestEpochCache_EmptyCacheBoundaries(t *testing.T) {
	c := newTestCache(t, &fakeLog{leo: 0})
	require.Equal(t, UndefinedEpoch, c.LatestEpoch())
	require.Equal(t, UndefinedOffset, c.EndOffsetFor(0))
	require.Equal(t, UndefinedOffset, c.EndOffsetFor(UndefinedEpoch))
	require.NoError(t, c.ClearEarliest(5))
	require.NoError(t, c.ClearLatest(5))
	require.Empty(t, c.Entries())
}

func TestEpochCache_FollowerAscendingEpochs(t *testing.T) {
	log := &fakeLog{leo: 7}
	c := newTestCache(t, log)

	require.NoError(t, c.Assign(0, 0))
	require.NoError(t, c.Assign(0, 1))
	require.NoError(t, c.Assign(0, 2))
	require.NoError(t, c.Assign(1, 3))
	require.NoError(t, c.Assign(1, 4))
	require.NoError(t, c.Assign(2, 6))

	require.EqualValues(t, 3, c.EndOffsetFor(0))
	require.EqualValues(t, 6, c.EndOffsetFor(1))
	require.EqualValues(t, 7, c.EndOffsetFor(2))
	require.EqualValues(t, 2, c.LatestEpoch())
}

func TestEpochCache_EpochRegressionIgnored(t *testing.T) {
	c := newTestCache(t, &fakeLog{leo: 10})
	require.NoError(t, c.Assign(1, 5))
	require.NoError(t, c.Assign(2, 6))

	require.NoError(t, c.Assign(1, 7))

	require.Equal(t, []Entry{{1, 5}, {2, 6}}, c.Entries())
	require.EqualValues(t, 2, c.LatestEpoch())
}

func TestEpochCache_OffsetRegressionIgnored(t *testing.T) {
	c := newTestCache(t, &fakeLog{leo: 10})
	require.NoError(t, c.Assign(2, 6))

	require.NoError(t, c.Assign(3, 5))

	require.Equal(t, []Entry{{2, 6}}, c.Entries())
}

func TestEpochCache_AssignIdempotent(t *testing.T) {
	c := newTestCache(t, &fakeLog{leo: 10})
	require.NoError(t, c.Assign(2, 6))
	before := c.Entries()

	require.NoError(t, c.Assign(2, 9))

	require.Equal(t, before, c.Entries())
}

func seedHistory(t *testing.T, leo int64) *EpochCache {
	t.Helper()
	c := newTestCache(t, &fakeLog{leo: leo})
	require.NoError(t, c.Assign(2, 6))
	require.NoError(t, c.Assign(3, 8))
	require.NoError(t, c.Assign(4, 11))
	return c
}

func TestEpochCache_ClearLatestIsInclusiveOfBoundary(t *testing.T) {
	c := seedHistory(t, 20)

	require.NoError(t, c.ClearLatest(8))

	require.Equal(t, []Entry{{2, 6}}, c.Entries())
}

func TestEpochCache_ClearEarliestBetweenBoundariesRewritesHead(t *testing.T) {
	c := seedHistory(t, 20)

	require.NoError(t, c.ClearEarliest(9))

	require.Equal(t, []Entry{{3, 9}, {4, 11}}, c.Entries())
}

func TestEpochCache_ClearEarliestBeyondLastAdvancesLast(t *testing.T) {
	c := seedHistory(t, 20)

	require.NoError(t, c.ClearEarliest(15))

	require.Equal(t, []Entry{{4, 15}}, c.Entries())
}

func TestEpochCache_ClearEarliestExactBoundaryLeavesUnchanged(t *testing.T) {
	c := seedHistory(t, 20)

	require.NoError(t, c.ClearEarliest(8))

	require.Equal(t, []Entry{{3, 8}, {4, 11}}, c.Entries())
}

func TestEpochCache_ClearEarliestAndLatestUndefinedOffsetAreNoops(t *testing.T) {
	c := seedHistory(t, 20)
	before := c.Entries()

	require.NoError(t, c.ClearEarliest(UndefinedOffset))
	require.NoError(t, c.ClearLatest(UndefinedOffset))

	require.Equal(t, before, c.Entries())
}

func TestEpochCache_Clear(t *testing.T) {
	c := seedHistory(t, 20)

	require.NoError(t, c.Clear())

	require.Equal(t, UndefinedEpoch, c.LatestEpoch())
	for _, epoch := range []int32{0, 2, 3, 4, 100} {
		require.Equal(t, UndefinedOffset, c.EndOffsetFor(epoch))
	}
	require.Empty(t, c.Entries())
}

func TestEpochCache_EndOffsetForBelowEarliestRecorded(t *testing.T) {
	c := seedHistory(t, 20)

	require.Equal(t, UndefinedOffset, c.EndOffsetFor(1))
}

func TestEpochCache_EndOffsetForAboveLatest(t *testing.T) {
	c := seedHistory(t, 20)

	require.Equal(t, UndefinedOffset, c.EndOffsetFor(9))
}

func TestEpochCache_EndOffsetForGapEpoch(t *testing.T) {
	// Epoch 5 was never assigned directly (e.g. a leader changed twice
	// without ever appending), but landed between two recorded epochs.
	c := newTestCache(t, &fakeLog{leo: 20})
	require.NoError(t, c.Assign(2, 6))
	require.NoError(t, c.Assign(7, 11))

	require.EqualValues(t, 11, c.EndOffsetFor(5))
}

func TestEpochCache_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leader-epoch-checkpoint")
	a, err := New(Options{
		TopicPartition:     "orders-0",
		CheckpointPath:     path,
		LogEndOffsetSource: func() int64 { return 10 },
	})
	require.NoError(t, err)
	require.NoError(t, a.Assign(2, 6))

	b, err := New(Options{
		TopicPartition:     "orders-0",
		CheckpointPath:     path,
		LogEndOffsetSource: func() int64 { return 10 },
	})
	require.NoError(t, err)

	require.Equal(t, []Entry{{2, 6}}, b.Entries())
}

func TestEpochCache_NewRejectsCorruptCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leader-epoch-checkpoint")
	store := NewCheckpointStore(path)
	require.NoError(t, store.Save([]Entry{{2, 6}}))
	// Hand-corrupt a structurally valid-looking file.
	require.NoError(t, os.WriteFile(path, []byte("7\n1\n2 6\n"), 0644))

	_, err := New(Options{
		TopicPartition:     "orders-0",
		CheckpointPath:     path,
		LogEndOffsetSource: func() int64 { return 0 },
	})

	var corrupt *CorruptCheckpointError
	require.ErrorAs(t, err, &corrupt)
}

func TestEpochCache_AssignRejectsNegativeArguments(t *testing.T) {
	c := newTestCache(t, &fakeLog{leo: 0})

	err := c.Assign(-1, 0)
	var invalid *InvalidArgumentError
	require.ErrorAs(t, err, &invalid)

	err = c.Assign(0, -1)
	require.ErrorAs(t, err, &invalid)
}

func TestEpochCache_ReplaceValidatesInvariants(t *testing.T) {
	src := newTestCache(t, &fakeLog{leo: 20})
	require.NoError(t, src.Assign(0, 0))
	require.NoError(t, src.Assign(1, 5))

	dst := seedHistory(t, 20)
	require.NoError(t, dst.Replace(src))

	require.Equal(t, src.Entries(), dst.Entries())

	// A replacement whose epochs go backwards is rejected and leaves dst as
	// it was.
	bad := &EpochCache{entries: []Entry{{2, 0}, {1, 5}}}
	var invalid *InvalidArgumentError
	require.ErrorAs(t, dst.Replace(bad), &invalid)
	require.Equal(t, src.Entries(), dst.Entries())
}

func TestEpochCache_Rebase(t *testing.T) {
	// Simulates compaction: src accumulated epoch entries against segments
	// appended during the compaction run; entries from offset 10 onward
	// should carry forward onto dst's freshly compacted history.
	src := newTestCache(t, &fakeLog{leo: 30})
	require.NoError(t, src.Assign(0, 0))
	require.NoError(t, src.Assign(1, 10))
	require.NoError(t, src.Assign(2, 20))

	dst := newTestCache(t, &fakeLog{leo: 30})

	require.NoError(t, src.Rebase(dst, 10))

	require.Equal(t, []Entry{{1, 10}, {2, 20}}, dst.Entries())
}

func TestEpochCache_Stats(t *testing.T) {
	c := newTestCache(t, &fakeLog{leo: 10})
	require.NoError(t, c.Assign(0, 0))
	require.NoError(t, c.Assign(1, 5))

	stats := c.Stats()
	require.EqualValues(t, 2, stats.FlushCount)
}
