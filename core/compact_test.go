package core

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestCompactionKeepsOnlyLiveRecords(t *testing.T) {
	db, dir := SetupTempDB(t)

	for i := 1; i <= 5; i++ {
		if err := db.Put(int32(i), []byte(fmt.Sprintf("val-%d", i))); err != nil {
			t.Fatalf("Put(%d) failed: %v", i, err)
		}
	}
	for _, k := range []int32{2, 4} {
		if err := db.Put(k, []byte(fmt.Sprintf("new-%d", k))); err != nil {
			t.Fatalf("Put(%d) failed: %v", k, err)
		}
	}
	for _, k := range []int32{1, 3} {
		if err := db.Delete(k); err != nil {
			t.Fatalf("Delete(%d) failed: %v", k, err)
		}
	}

	if err := db.compactSegment(0); err != nil {
		t.Fatalf("compactSegment failed: %v", err)
	}

	// exactly the three live records survive, all 5-byte values
	if want := 3 * recordSize(5); db.segments[0].size != want {
		t.Fatalf("size = %d, want %d", db.segments[0].size, want)
	}

	for _, k := range []int32{2, 4} {
		want := fmt.Sprintf("new-%d", k)
		if val, err := db.Get(k); err != nil || !bytes.Equal(val, []byte(want)) {
			t.Fatalf("Get(%d) = (%q, %v), want (%q, nil)", k, val, err, want)
		}
	}
	if val, err := db.Get(5); err != nil || !bytes.Equal(val, []byte("val-5")) {
		t.Fatalf("Get(5) = (%q, %v), want (val-5, nil)", val, err)
	}
	for _, k := range []int32{1, 3} {
		if _, err := db.Get(k); !errors.Is(err, ErrKeyNotFound) {
			t.Fatalf("Get(%d) = %v, want ErrKeyNotFound", k, err)
		}
	}

	// the compacted file kept the canonical name; the swap files are gone
	if _, err := os.Stat(filepath.Join(dir, "1.dat")); err != nil {
		t.Fatalf("stat 1.dat: %v", err)
	}
	for _, name := range []string{compactTempName, compactOldName} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Fatalf("%s left behind after compaction", name)
		}
	}
}

func TestCompactionSurvivesReopen(t *testing.T) {
	db, dir := SetupTempDB(t)

	for i := 1; i <= 3; i++ {
		if err := db.Put(int32(i), []byte("v")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	if err := db.Delete(2); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := db.compactSegment(0); err != nil {
		t.Fatalf("compactSegment failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	db2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db2.Close()

	for _, k := range []int32{1, 3} {
		if _, err := db2.Get(k); err != nil {
			t.Fatalf("Get(%d) failed: %v", k, err)
		}
	}
	if _, err := db2.Get(2); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Get(2) = %v, want ErrKeyNotFound", err)
	}
}

func TestCompactionOfFullyDeadSegment(t *testing.T) {
	db, _ := SetupTempDB(t)

	if err := db.Put(1, []byte("one")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := db.Delete(1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if err := db.compactSegment(0); err != nil {
		t.Fatalf("compactSegment failed: %v", err)
	}

	if db.segments[0].size != 0 {
		t.Fatalf("size = %d, want 0", db.segments[0].size)
	}
	if _, err := db.Get(1); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Get(1) = %v, want ErrKeyNotFound", err)
	}

	// the emptied head accepts inserts again
	if err := db.Put(2, []byte("two")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if val, err := db.Get(2); err != nil || !bytes.Equal(val, []byte("two")) {
		t.Fatalf("Get(2) = (%q, %v), want (two, nil)", val, err)
	}
}

func TestCompactionTriggersMerge(t *testing.T) {
	db, dir := SetupTempDB(t, WithMaxSegmentSize(100))

	// segment 1 takes three 25-byte records (75 bytes); the fourth insert
	// would reach the ceiling and rolls over into segment 2
	val := bytes.Repeat([]byte("x"), 12)
	for i := 1; i <= 4; i++ {
		if err := db.Put(int32(i), val); err != nil {
			t.Fatalf("Put(%d) failed: %v", i, err)
		}
	}
	if got := len(db.segments); got != 2 {
		t.Fatalf("segments = %d, want 2", got)
	}

	// shrink segment 1's live set so the pair fits under the ceiling
	for _, k := range []int32{1, 2} {
		if err := db.Delete(k); err != nil {
			t.Fatalf("Delete(%d) failed: %v", k, err)
		}
	}

	if err := db.compactSegment(1); err != nil {
		t.Fatalf("compactSegment failed: %v", err)
	}

	// after compaction both segments hold 25 live bytes, so the merge pass
	// coalesced them into one segment named after the newer id
	if got := len(db.segments); got != 1 {
		t.Fatalf("segments = %d, want 1 after merge", got)
	}
	merged := db.segments[0]
	if merged.id != 2 {
		t.Fatalf("merged id = %d, want 2", merged.id)
	}
	if want := 2 * recordSize(12); merged.size != want {
		t.Fatalf("merged size = %d, want %d", merged.size, want)
	}

	for _, k := range []int32{3, 4} {
		if got, err := db.Get(k); err != nil || !bytes.Equal(got, val) {
			t.Fatalf("Get(%d) = (%q, %v), want value", k, got, err)
		}
	}
	for _, k := range []int32{1, 2} {
		if _, err := db.Get(k); !errors.Is(err, ErrKeyNotFound) {
			t.Fatalf("Get(%d) = %v, want ErrKeyNotFound", k, err)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, "2.dat")); err != nil {
		t.Fatalf("stat 2.dat: %v", err)
	}
	for _, name := range []string{"1.dat", mergeTempName} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Fatalf("%s left behind after merge", name)
		}
	}
}

func TestMergeNewerValueWins(t *testing.T) {
	db, _ := SetupTempDB(t, WithMaxSegmentSize(100))

	if err := db.Put(1, []byte("old")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	// an 84-byte record rolls segment 1 over and fills segment 2
	if err := db.Put(2, bytes.Repeat([]byte("f"), 71)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	// rolls over again; key 1's new value lands in segment 3
	if err := db.Put(1, []byte("new")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if got := len(db.segments); got != 3 {
		t.Fatalf("segments = %d, want 3", got)
	}

	// delete key 2 from segment 2; at 97 bytes segment 2 pairs with
	// neither neighbor, so the only mergeable pair is (3, 1), which binds
	// key 1 on both sides
	if err := db.Delete(2); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if err := db.compactSegment(0); err != nil {
		t.Fatalf("compactSegment failed: %v", err)
	}

	if got := len(db.segments); got != 2 {
		t.Fatalf("segments = %d, want 2 after merge", got)
	}
	if db.segments[0].id != 3 {
		t.Fatalf("head id = %d, want 3", db.segments[0].id)
	}

	// recency: the merged segment kept segment 3's value for key 1
	if val, err := db.Get(1); err != nil || !bytes.Equal(val, []byte("new")) {
		t.Fatalf("Get(1) = (%q, %v), want (new, nil)", val, err)
	}
	if want := recordSize(3); db.segments[0].size != want {
		t.Fatalf("merged size = %d, want %d", db.segments[0].size, want)
	}
	if _, err := db.Get(2); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Get(2) = %v, want ErrKeyNotFound", err)
	}
}

func TestMergeSkippedWhenNothingFits(t *testing.T) {
	db, _ := SetupTempDB(t, WithMaxSegmentSize(100))

	// two segments of 84 and 85 bytes: no pair fits under the ceiling
	if err := db.Put(1, bytes.Repeat([]byte("a"), 71)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := db.Put(2, bytes.Repeat([]byte("b"), 72)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if got := len(db.segments); got != 2 {
		t.Fatalf("segments = %d, want 2", got)
	}

	if err := db.compactSegment(0); err != nil {
		t.Fatalf("compactSegment failed: %v", err)
	}

	if got := len(db.segments); got != 2 {
		t.Fatalf("segments = %d, want 2 (merge must not run)", got)
	}
}
