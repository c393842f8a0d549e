package core

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	tombstoneIns byte = 0 // record is an insertion
	tombstoneDel byte = 1 // record is a deletion

	// keyLen is the width of every key on disk. The key-length field is
	// written anyway so records stay self-delimiting when read backwards.
	keyLen = 4

	// recordOverhead is every record byte that is not the value:
	// tombstone + value length + key length + key.
	recordOverhead = 1 + 4 + 4 + keyLen
)

// recordSize returns the encoded size of a record carrying valLen value
// bytes.
func recordSize(valLen int) int64 { return int64(recordOverhead + valLen) }

// encodeRecord lays out a record in a single buffer:
//
//	[1-byte tombstone][4-byte valLen][val bytes][4-byte keyLen][4-byte key]
//
// Multi-byte fields use the host byte order; segment files are not portable
// across endians.
func encodeRecord(key int32, val []byte, tombstone byte) []byte {
	buf := make([]byte, recordSize(len(val)))

	sb := buf // shrinking buffer

	sb[0] = tombstone
	sb = sb[1:]

	binary.NativeEndian.PutUint32(sb, uint32(len(val)))
	sb = sb[4:]

	copy(sb, val)
	sb = sb[len(val):]

	binary.NativeEndian.PutUint32(sb, keyLen)
	sb = sb[4:]

	binary.NativeEndian.PutUint32(sb, uint32(key))

	return buf
}

// scannedRecord keeps the fields of the record the scanner is positioned on.
// Values are not materialized; replay only needs the key, the tombstone and
// the offset of the value-length field.
type scannedRecord struct {
	key       int32
	valLen    int
	valOff    uint32 // offset of the value-length field, as indexed
	tombstone byte
}

// recordScanner is a buffered reader over a segment file that does not move
// the file handle, so the handle can keep its append position.
type recordScanner struct {
	reader *bufio.Reader
	record *scannedRecord // current record
	end    int64          // end offset of the last complete record
	err    error
}

func newRecordScanner(r io.ReaderAt) *recordScanner {
	const maxint64 = 1<<63 - 1

	sr := io.NewSectionReader(r, 0, maxint64)
	return &recordScanner{reader: bufio.NewReader(sr)}
}

// scan advances to the next record and reports whether one was read. A
// partial record at the tail is treated like EOF: it only means the last
// write never completed, and repopulation truncates it away. Corruption
// before the tail surfaces as an error.
func (rs *recordScanner) scan() bool {
	if rs.err != nil {
		return false
	}

	rs.record = nil

	isEOF := func(err error) bool {
		return err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF)
	}

	tombstone, err := rs.reader.ReadByte()
	if err != nil {
		if !isEOF(err) {
			rs.err = fmt.Errorf("read tombstone: %w", err)
		}
		return false
	}

	if tombstone != tombstoneIns && tombstone != tombstoneDel {
		rs.err = fmt.Errorf("%w: tombstone byte %#x at offset %d",
			ErrMalformedSegment, tombstone, rs.end)
		return false
	}

	var field [4]byte
	if _, err := io.ReadFull(rs.reader, field[:]); err != nil {
		if !isEOF(err) {
			rs.err = fmt.Errorf("read value length: %w", err)
		}
		return false
	}
	valLen := int(binary.NativeEndian.Uint32(field[:]))

	// skip the value bytes, replay only needs their offset
	if _, err := rs.reader.Discard(valLen); err != nil {
		if !isEOF(err) {
			rs.err = fmt.Errorf("skip value: %w", err)
		}
		return false
	}

	if _, err := io.ReadFull(rs.reader, field[:]); err != nil {
		if !isEOF(err) {
			rs.err = fmt.Errorf("read key length: %w", err)
		}
		return false
	}
	if kl := binary.NativeEndian.Uint32(field[:]); kl != keyLen {
		rs.err = fmt.Errorf("%w: key length %d at offset %d",
			ErrInvalidArgument, kl, rs.end)
		return false
	}

	if _, err := io.ReadFull(rs.reader, field[:]); err != nil {
		if !isEOF(err) {
			rs.err = fmt.Errorf("read key: %w", err)
		}
		return false
	}
	key := int32(binary.NativeEndian.Uint32(field[:]))

	rs.record = &scannedRecord{
		key:       key,
		valLen:    valLen,
		valOff:    uint32(rs.end + 1),
		tombstone: tombstone,
	}

	// advance to the next record boundary
	rs.end += recordSize(valLen)

	return true
}
