// Package core provides the core HashDB implementation: a log-structured
// key-value store made of append-only segment files with per-segment hash
// indexes. Keys are 32-bit integers, values are arbitrary byte strings.
//
// A DB is a plain value and is not safe for concurrent use; callers that
// need concurrency must serialize access externally.
package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/multierr"
)

// Reserved file names used by the compaction and merge swap protocols. They
// never name a live segment and are skipped when a directory is opened.
const (
	compactTempName = "tmp.dat"
	compactOldName  = "old.dat"
	mergeTempName   = "mtemp.dat"
)

// DefaultMaxSegmentSize is the segment size ceiling used when Open is not
// given WithMaxSegmentSize.
const DefaultMaxSegmentSize = 1024

// DB is a handle to an open database.
type DB struct {
	dir            string     // data directory
	segments       []*segment // newest first
	nextID         int        // id the next created segment will take
	maxSegmentSize int64      // rollover ceiling for segment files
	leftovers      []string   // reserved swap files found at open
}

// Option tunes a database while it is being opened.
type Option func(*DB)

// WithMaxSegmentSize sets the segment size ceiling. A record that would push
// the head segment to this size or beyond triggers a rollover.
func WithMaxSegmentSize(n int64) Option {
	return func(db *DB) { db.maxSegmentSize = n }
}

// Open opens the database stored in dir, creating the directory and its
// first segment when dir does not exist. An existing directory is walked and
// every segment file is replayed into its in-memory index, oldest segment
// first, leaving the segment list newest first. A directory without segment
// files yields an empty database.
func Open(dir string, opts ...Option) (*DB, error) {
	db := &DB{
		dir:            dir,
		nextID:         1,
		maxSegmentSize: DefaultMaxSegmentSize,
	}

	for _, opt := range opts {
		opt(db)
	}

	// DO NOT SHADOW err so the deferred cleanup does not miss it
	var err error

	defer func() {
		if err != nil {
			db.abortOpen()
		}
	}()

	_, err = os.Stat(dir)
	switch {
	case err == nil:
		if err = db.loadSegments(); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
		if err = db.createEmpty(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("stat data dir %q: %w", dir, err)
	}

	return db, nil
}

// createEmpty creates the data directory and its first empty segment.
func (db *DB) createEmpty() error {
	if err := os.Mkdir(db.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %q: %w", db.dir, err)
	}

	seg, err := createSegment(1, db.segmentPath(1))
	if err != nil {
		_ = os.Remove(db.dir)
		return err
	}

	db.segments = []*segment{seg}
	db.nextID = 2
	return syncDir(db.dir)
}

// loadSegments walks the data directory and rebuilds one segment per
// <id>.dat file. Segments are opened in ascending id order and prepended, so
// the slice ends up newest first. Reserved swap files and unrelated names
// are skipped; leftover swap files are remembered for tooling to report.
func (db *DB) loadSegments() error {
	entries, err := os.ReadDir(db.dir)
	if err != nil {
		return fmt.Errorf("read data dir %q: %w", db.dir, err)
	}

	reserved := mapset.NewSet(compactTempName, compactOldName, mergeTempName)
	present := mapset.NewSet[string]()

	type segFile struct {
		id   int
		name string
	}
	var found []segFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		present.Add(name)

		if reserved.Contains(name) {
			continue
		}
		id, ok := parseSegmentName(name)
		if !ok {
			continue
		}
		found = append(found, segFile{id: id, name: name})
	}

	// leftover swap files mean a previous compaction or merge never
	// finished; they are never parsed as segments
	db.leftovers = present.Intersect(reserved).ToSlice()
	slices.Sort(db.leftovers)

	slices.SortFunc(found, func(a, b segFile) int { return a.id - b.id })

	maxID := 0
	for _, f := range found {
		seg, err := openSegment(f.id, filepath.Join(db.dir, f.name))
		if err != nil {
			return err
		}
		db.segments = append([]*segment{seg}, db.segments...)
		maxID = f.id
	}

	db.nextID = maxID + 1
	return nil
}

// parseSegmentName extracts the id from a "<id>.dat" file name.
func parseSegmentName(name string) (int, bool) {
	base, ok := strings.CutSuffix(name, ".dat")
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(base)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

func (db *DB) segmentPath(id int) string {
	return filepath.Join(db.dir, fmt.Sprintf("%d.dat", id))
}

// abortOpen releases whatever a failed Open got around to opening.
func (db *DB) abortOpen() {
	for _, s := range db.segments {
		_ = s.file.Close()
	}
	db.segments = nil
}

// newHeadSegment creates segment nextID and links it at the head. The id
// counter is advanced by the caller once the segment is known to stay.
func (db *DB) newHeadSegment() (*segment, error) {
	seg, err := createSegment(db.nextID, db.segmentPath(db.nextID))
	if err != nil {
		return nil, err
	}
	db.segments = append([]*segment{seg}, db.segments...)
	return seg, nil
}

// Put inserts or overwrites key with val. When the encoded record does not
// fit in the head segment, the head is compacted, a fresh segment becomes
// the new head and the record lands there.
func (db *DB) Put(key int32, val []byte) error {
	if len(val) == 0 {
		return fmt.Errorf("%w: empty value", ErrInvalidArgument)
	}

	if len(db.segments) == 0 {
		// an opened directory with no segment files starts empty
		if _, err := db.newHeadSegment(); err != nil {
			return err
		}
		db.nextID++
	}

	head := db.segments[0]
	if recordSize(len(val))+head.size < db.maxSegmentSize {
		return head.append(key, val, tombstoneIns)
	}

	if err := db.compactSegment(0); err != nil {
		return err
	}

	// the compaction and its merge pass preserve live state, so they are
	// not rolled back when the rollover itself fails below
	seg, err := db.newHeadSegment()
	if err != nil {
		return err
	}

	if err := seg.append(key, val, tombstoneIns); err != nil {
		_ = seg.deleteFile()
		db.segments = db.segments[1:]
		return err
	}

	db.nextID++
	return nil
}

// Get returns the value last written for key. Segments are consulted newest
// first; the first index hit owns the key.
func (db *DB) Get(key int32) ([]byte, error) {
	for _, seg := range db.segments {
		val, err := seg.read(key)
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return val, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrKeyNotFound, key)
}

// Delete removes key from the database. The tombstone record is appended to
// the segment that owns the key, which is not necessarily the head.
func (db *DB) Delete(key int32) error {
	for _, seg := range db.segments {
		err := seg.removePair(key)
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: %d", ErrKeyNotFound, key)
}

// Close releases every segment, newest first. Segment files and the data
// directory stay on disk.
func (db *DB) Close() error {
	var errs error
	for _, s := range db.segments {
		if err := s.file.Close(); err != nil {
			errs = multierr.Append(errs,
				fmt.Errorf("close segment %d: %w", s.id, err))
		}
	}
	db.segments = nil
	return errs
}

// SegmentStat describes one live segment file.
type SegmentStat struct {
	ID          int
	Path        string
	Size        int64
	Keys        int
	Fingerprint uint64
}

// Stats reports the live segments, newest first.
func (db *DB) Stats() ([]SegmentStat, error) {
	stats := make([]SegmentStat, 0, len(db.segments))
	for _, s := range db.segments {
		fp, err := s.fingerprint()
		if err != nil {
			return nil, err
		}
		stats = append(stats, SegmentStat{
			ID:          s.id,
			Path:        s.name,
			Size:        s.size,
			Keys:        s.table.entries,
			Fingerprint: fp,
		})
	}
	return stats, nil
}

// Leftovers lists reserved swap files that were present when the directory
// was opened, evidence of an interrupted compaction or merge.
func (db *DB) Leftovers() []string {
	return slices.Clone(db.leftovers)
}
