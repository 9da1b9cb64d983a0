package epoch

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	atomicfile "github.com/natefinch/atomic"
)

// CheckpointStore persists an ordered epoch history to a single named file
// using the text format:
//
//	<version>
//	<count>
//	<epoch_0> <startOffset_0>
//	...
//
// Writes are atomic: the new content is written to a temporary sibling file
// and renamed over the target, so readers never observe a torn file. The
// store itself holds no state beyond the path; callers (EpochCache) are
// responsible for serializing concurrent access.
type CheckpointStore struct {
	path string
}

// NewCheckpointStore creates a CheckpointStore for the given file path. The
// file need not exist yet; Load treats an absent file as an empty history.
func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{path: path}
}

// Path returns the checkpoint file path this store reads and writes.
func (s *CheckpointStore) Path() string {
	return s.path
}

// Load reads the persisted epoch history. A missing file is treated as an
// empty history, not an error. A malformed non-empty file returns a
// *CorruptCheckpointError. Any other filesystem error is wrapped in an
// *IoFailureError.
func (s *CheckpointStore) Load() ([]Entry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, newIoFailure("read", s.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)

	version, err := s.readIntLine(scanner, "version")
	if err != nil {
		return nil, err
	}
	if version != checkpointVersion {
		return nil, &CorruptCheckpointError{
			Path:   s.path,
			Reason: fmt.Sprintf("unsupported checkpoint version %d", version),
		}
	}

	count, err := s.readIntLine(scanner, "count")
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, &CorruptCheckpointError{Path: s.path, Reason: "negative entry count"}
	}

	entries := make([]Entry, 0, count)
	for i := 0; i < count; i++ {
		if !scanner.Scan() {
			return nil, &CorruptCheckpointError{
				Path:   s.path,
				Reason: fmt.Sprintf("expected %d entries, found %d", count, len(entries)),
			}
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			return nil, &CorruptCheckpointError{
				Path:   s.path,
				Reason: fmt.Sprintf("entry %d: expected 2 fields, found %d", i, len(fields)),
			}
		}
		epoch, err := strconv.ParseInt(fields[0], 10, 32)
		if err != nil || epoch < 0 {
			return nil, &CorruptCheckpointError{
				Path:   s.path,
				Reason: fmt.Sprintf("entry %d: invalid epoch %q", i, fields[0]),
			}
		}
		startOffset, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || startOffset < 0 {
			return nil, &CorruptCheckpointError{
				Path:   s.path,
				Reason: fmt.Sprintf("entry %d: invalid start offset %q", i, fields[1]),
			}
		}
		entries = append(entries, Entry{Epoch: int32(epoch), StartOffset: startOffset})
	}

	if scanner.Scan() {
		return nil, &CorruptCheckpointError{
			Path:   s.path,
			Reason: fmt.Sprintf("expected %d entries, found trailing data", count),
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, newIoFailure("read", s.path, err)
	}

	return entries, nil
}

func (s *CheckpointStore) readIntLine(scanner *bufio.Scanner, field string) (int, error) {
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, newIoFailure("read", s.path, err)
		}
		return 0, &CorruptCheckpointError{Path: s.path, Reason: "missing " + field + " line"}
	}
	line := strings.TrimSpace(scanner.Text())
	n, err := strconv.Atoi(line)
	if err != nil {
		return 0, &CorruptCheckpointError{
			Path:   s.path,
			Reason: fmt.Sprintf("malformed %s line %q", field, line),
		}
	}
	return n, nil
}

// Save atomically replaces the checkpoint file with the serialized form of
// entries. Entries are written in the order given; callers are expected to
// pass them already sorted per the epoch-history invariants.
func (s *CheckpointStore) Save(entries []Entry) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%d\n", checkpointVersion)
	fmt.Fprintf(&b, "%d\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "%d %d\n", e.Epoch, e.StartOffset)
	}
	if err := atomicfile.WriteFile(s.path, strings.NewReader(b.String())); err != nil {
		return newIoFailure("write", s.path, err)
	}
	return nil
}
