package core

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/xxh3"
)

// segment is one append-only data file plus the in-memory index over its
// live records. Larger ids are newer.
type segment struct {
	id    int
	name  string // file path
	file  *os.File
	size  int64 // logical end of file
	table *memtable
	it    memtableIterator
}

// createSegment creates the file at path, truncating any previous contents,
// and returns an empty segment over it.
func createSegment(id int, path string) (*segment, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o664)
	if err != nil {
		return nil, fmt.Errorf("create segment file %q: %w", path, err)
	}

	s := &segment{id: id, name: path, file: f, table: newMemtable()}
	s.it = s.table.iterator()
	return s, nil
}

// openSegment opens an existing segment file and replays it into a fresh
// index. On return the handle is positioned at the end, ready for appends.
func openSegment(id int, path string) (*segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open segment file %q: %w", path, err)
	}

	s := &segment{id: id, name: path, file: f, table: newMemtable()}
	s.it = s.table.iterator()

	if err := s.repopulate(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// repopulate rebuilds the index by replaying the file from offset zero.
// Records are visited oldest-first, so the last write to a key wins; a
// deletion tombstone drops the key no matter what the record carries. A
// partial record at the tail is truncated away and size is set to the last
// complete record boundary.
func (s *segment) repopulate() error {
	rs := newRecordScanner(s.file)
	for rs.scan() {
		rec := rs.record
		if rec.tombstone == tombstoneDel {
			s.table.remove(rec.key)
			continue
		}
		s.table.write(rec.key, rec.valOff)
	}
	if rs.err != nil {
		return fmt.Errorf("replay segment %d: %w", s.id, rs.err)
	}

	s.size = rs.end
	if err := s.file.Truncate(s.size); err != nil {
		return fmt.Errorf("truncate segment %d: %w", s.id, err)
	}

	// leave the handle at the (possibly truncated) end for appends
	if _, err := s.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek segment %d: %w", s.id, err)
	}
	return nil
}

// append encodes one record and writes it with a single write call. For an
// insertion the index entry is computed before the write, since the offset
// is already known; a failed write rolls the entry back to its previous
// binding. Deletions never touch the index here, removePair owns that.
func (s *segment) append(key int32, val []byte, tombstone byte) error {
	buf := encodeRecord(key, val, tombstone)

	prevOff, hadPrev := s.table.read(key)
	if tombstone == tombstoneIns {
		s.table.write(key, uint32(s.size)+1)
	}

	if _, err := s.file.Write(buf); err != nil {
		if tombstone == tombstoneIns {
			if hadPrev {
				s.table.write(key, prevOff)
			} else {
				s.table.remove(key)
			}
		}
		return fmt.Errorf("append to segment %d: %w", s.id, err)
	}

	s.size += int64(len(buf))
	return nil
}

// read returns the value of key's live record, or ErrKeyNotFound when the
// index does not bind the key.
func (s *segment) read(key int32) ([]byte, error) {
	off, ok := s.table.read(key)
	if !ok {
		return nil, ErrKeyNotFound
	}

	var field [4]byte
	if _, err := s.file.ReadAt(field[:], int64(off)); err != nil {
		return nil, fmt.Errorf("read value length in segment %d: %w", s.id, err)
	}
	valLen := binary.NativeEndian.Uint32(field[:])

	val := make([]byte, valLen)
	if _, err := s.file.ReadAt(val, int64(off)+4); err != nil {
		return nil, fmt.Errorf("read value in segment %d: %w", s.id, err)
	}
	return val, nil
}

// removePair deletes key from the segment: the key leaves the index and a
// deletion record is appended so the removal survives replay. Deletion
// records carry no value bytes. A failed append restores the old binding,
// leaving index and file consistent.
func (s *segment) removePair(key int32) error {
	off, ok := s.table.read(key)
	if !ok {
		return ErrKeyNotFound
	}

	s.table.remove(key)
	if err := s.append(key, nil, tombstoneDel); err != nil {
		s.table.write(key, off)
		return err
	}
	return nil
}

// rename moves the segment file to newPath. The move is atomic when both
// paths live in the same directory.
func (s *segment) rename(newPath string) error {
	if err := os.Rename(s.name, newPath); err != nil {
		return fmt.Errorf("rename segment %d: %w", s.id, err)
	}
	s.name = newPath
	return nil
}

// deleteFile closes the descriptor and unlinks the file.
func (s *segment) deleteFile() error {
	_ = s.file.Close()
	if err := os.Remove(s.name); err != nil {
		return fmt.Errorf("remove segment file %q: %w", s.name, err)
	}
	s.size = 0
	return nil
}

// nextKey yields the next live key of the segment's current iterator pass.
func (s *segment) nextKey() (int32, bool) { return s.it.next() }

// resetIterator rewinds nextKey to the first live key.
func (s *segment) resetIterator() { s.it.reset() }

// liveKeys materializes one full iterator pass. Compaction and merge write
// into another segment while walking this one, so they snapshot the key
// order up front instead of holding the cursor across writes.
func (s *segment) liveKeys() []int32 {
	s.resetIterator()
	keys := make([]int32, 0, s.table.entries)
	for {
		k, ok := s.nextKey()
		if !ok {
			return keys
		}
		keys = append(keys, k)
	}
}

// fingerprint hashes the segment's on-disk contents. Tooling uses it to spot
// files that changed between runs; the engine itself never consults it.
func (s *segment) fingerprint() (uint64, error) {
	buf := make([]byte, s.size)
	if _, err := s.file.ReadAt(buf, 0); err != nil && err != io.EOF {
		return 0, fmt.Errorf("read segment %d: %w", s.id, err)
	}
	return xxh3.Hash(buf), nil
}
