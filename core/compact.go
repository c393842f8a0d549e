package core

import (
	"path/filepath"

	mapset "github.com/deckarep/golang-set/v2"
)

// compactSegment rewrites the segment at position pos so it holds exactly
// its live records, then attempts a single merge pass. The swap is a
// three-step rename: the live file moves aside to old.dat, the rebuilt
// tmp.dat takes its name, old.dat is unlinked. The segment's canonical name
// never points at a half-written file: it holds the old data, then briefly
// no file while the old data sits in old.dat, then the new data.
func (db *DB) compactSegment(pos int) error {
	src := db.segments[pos]

	tmp, err := createSegment(src.id, filepath.Join(db.dir, compactTempName))
	if err != nil {
		return err
	}

	if err := copyLivePairs(src, tmp); err != nil {
		_ = tmp.deleteFile()
		return err
	}

	origName := src.name
	oldPath := filepath.Join(db.dir, compactOldName)
	if err := src.rename(oldPath); err != nil {
		_ = tmp.deleteFile()
		return err
	}

	if err := tmp.rename(origName); err != nil {
		// move the live data back under its canonical name
		_ = src.rename(origName)
		_ = tmp.deleteFile()
		return err
	}

	db.segments[pos] = tmp

	if err := src.deleteFile(); err != nil {
		return err
	}
	if err := syncDir(db.dir); err != nil {
		return err
	}

	return db.mergePass()
}

// copyLivePairs appends every live pair of src to dst as a fresh insertion.
// Dead keys are skipped by construction and earlier versions of live keys
// are never visited, so dst ends up holding exactly src's live state.
func copyLivePairs(src, dst *segment) error {
	for _, key := range src.liveKeys() {
		val, err := src.read(key)
		if err != nil {
			return err
		}
		if err := dst.append(key, val, tombstoneIns); err != nil {
			return err
		}
	}
	return nil
}

// mergePass runs at most one merge: the first ordered pair of distinct
// segments whose combined file sizes fit strictly under the ceiling is
// unioned into a single segment named after the newer of the two. Finding no
// such pair is the common case and not an error.
func (db *DB) mergePass() error {
	for i := range db.segments {
		for j := range db.segments {
			if i == j {
				continue
			}
			if db.segments[i].size+db.segments[j].size < db.maxSegmentSize {
				return db.mergeSegments(db.segments[i], db.segments[j])
			}
		}
	}
	return nil
}

// mergeSegments unions the live pairs of two segments into a replacement
// built at mtemp.dat. The newer segment's pairs are copied first and their
// keys remembered, so on collision the newer value wins and the older
// segment only contributes keys the newer one does not bind. Both inputs
// stay untouched until the output is complete.
func (db *DB) mergeSegments(a, b *segment) error {
	newer, older := a, b
	if older.id > newer.id {
		newer, older = older, newer
	}

	out, err := createSegment(newer.id, filepath.Join(db.dir, mergeTempName))
	if err != nil {
		return err
	}

	taken := mapset.NewSet[int32]()
	for _, key := range newer.liveKeys() {
		val, err := newer.read(key)
		if err != nil {
			_ = out.deleteFile()
			return err
		}
		if err := out.append(key, val, tombstoneIns); err != nil {
			_ = out.deleteFile()
			return err
		}
		taken.Add(key)
	}

	for _, key := range older.liveKeys() {
		if taken.Contains(key) {
			continue
		}
		val, err := older.read(key)
		if err != nil {
			_ = out.deleteFile()
			return err
		}
		if err := out.append(key, val, tombstoneIns); err != nil {
			_ = out.deleteFile()
			return err
		}
	}

	// both inputs are fully represented in the output; retire them
	newerPath := newer.name
	db.unlinkSegment(newer)
	db.unlinkSegment(older)
	if err := newer.deleteFile(); err != nil {
		return err
	}
	if err := older.deleteFile(); err != nil {
		return err
	}

	if err := out.rename(newerPath); err != nil {
		return err
	}
	db.insertSegment(out)

	return syncDir(db.dir)
}

// unlinkSegment removes seg from the segment list.
func (db *DB) unlinkSegment(seg *segment) {
	for i, s := range db.segments {
		if s == seg {
			db.segments = append(db.segments[:i], db.segments[i+1:]...)
			return
		}
	}
}

// insertSegment places seg at its descending-id position in the list.
func (db *DB) insertSegment(seg *segment) {
	pos := len(db.segments)
	for i, s := range db.segments {
		if seg.id > s.id {
			pos = i
			break
		}
	}
	db.segments = append(db.segments[:pos],
		append([]*segment{seg}, db.segments[pos:]...)...)
}
