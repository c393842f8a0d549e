package core

// numBuckets is the fixed size of a memtable's bucket array. Prime, so
// sequential keys spread across chains.
const numBuckets = 97

// memtableEntry is one node in a bucket chain.
type memtableEntry struct {
	key    int32
	offset uint32
	next   *memtableEntry
}

// memtable maps a key to its value's offset within one segment file.
// Collisions chain off the bucket head; new keys are inserted at the head.
type memtable struct {
	entries int
	buckets [numBuckets]*memtableEntry
}

func newMemtable() *memtable { return &memtable{} }

// hashKey mixes the key bits (Wang's 32-bit shift-multiply hash) and maps
// the result onto a bucket.
func hashKey(key int32) int {
	h := uint32(key)
	h = (h ^ 61) ^ (h >> 16)
	h += h << 3
	h ^= h >> 4
	h *= 0x27d4eb2d
	h ^= h >> 15
	return int(h % numBuckets)
}

// write binds key to offset, updating in place when the key is already
// chained.
func (t *memtable) write(key int32, offset uint32) {
	b := hashKey(key)
	for e := t.buckets[b]; e != nil; e = e.next {
		if e.key == key {
			e.offset = offset
			return
		}
	}
	t.buckets[b] = &memtableEntry{key: key, offset: offset, next: t.buckets[b]}
	t.entries++
}

// read returns the offset bound to key.
func (t *memtable) read(key int32) (uint32, bool) {
	for e := t.buckets[hashKey(key)]; e != nil; e = e.next {
		if e.key == key {
			return e.offset, true
		}
	}
	return 0, false
}

// remove unlinks key's entry from its chain. It reports whether the key was
// present.
func (t *memtable) remove(key int32) bool {
	b := hashKey(key)
	var prev *memtableEntry
	for e := t.buckets[b]; e != nil; e = e.next {
		if e.key == key {
			if prev == nil {
				t.buckets[b] = e.next
			} else {
				prev.next = e.next
			}
			t.entries--
			return true
		}
		prev = e
	}
	return false
}

// memtableIterator walks buckets in ascending order and each chain from its
// head. The order is arbitrary but stable across a single pass.
type memtableIterator struct {
	table      *memtable
	nextBucket int
	nextEntry  *memtableEntry
}

func (t *memtable) iterator() memtableIterator {
	return memtableIterator{table: t}
}

// next yields the next key in the traversal. Exhaustion is signaled
// through ok.
func (it *memtableIterator) next() (key int32, ok bool) {
	for it.nextEntry == nil {
		if it.nextBucket >= numBuckets {
			return 0, false
		}
		it.nextEntry = it.table.buckets[it.nextBucket]
		it.nextBucket++
	}
	key = it.nextEntry.key
	it.nextEntry = it.nextEntry.next
	return key, true
}

// reset rewinds the iterator for another pass.
func (it *memtableIterator) reset() {
	it.nextBucket = 0
	it.nextEntry = nil
}
