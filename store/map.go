package store

// Tuning constants governing rehash cadence. The table never shrinks,
// and a rehash cannot start until the previous one has fully drained
// legacy.
const (
	startBuckets  = minBuckets
	maxLoadFactor = 8
	migrationWork = 128
	maxBuckets    = 1 << 31
)

// Map is a string-keyed, string-valued table backed by two hashTables
// (current and legacy) so that growing the table never stalls a single
// operation: each Put/Get/Remove advances an in-progress rehash by at
// most migrationWork entries.
//
// Map owns all key and value storage. Slices returned by Get or All are
// borrowed views valid until the next mutating call that targets the
// same key, or until the Map itself is discarded.
type Map struct {
	current *hashTable
	legacy  *hashTable // nil when no rehash is in progress
	cursor  int        // next legacy bucket index to drain
}

// KV is one (key, value) pair as returned by All.
type KV struct {
	Key   []byte
	Value []byte
}

// New creates an empty Map with the minimum bucket count.
func New() *Map {
	return &Map{current: newHashTable(startBuckets)}
}

// Put inserts key with value, or overwrites the existing value for key.
// The Map clones both key and value so it is the sole owner of the
// returned storage.
func (m *Map) Put(key, value []byte) {
	hash := fnv1a32(key)

	if m.legacy != nil {
		if e := m.legacy.find(key, hash); e != nil {
			e.value = cloneBytes(value)
			m.migrateStep(migrationWork)
			return
		}
	}

	if e := m.current.find(key, hash); e != nil {
		e.value = cloneBytes(value)
	} else {
		m.current.insertNew(cloneBytes(key), cloneBytes(value), hash)
		if m.legacy == nil && m.current.size >= len(m.current.buckets)*maxLoadFactor {
			m.triggerRehash()
		}
	}

	m.migrateStep(migrationWork)
}

// Get returns the value stored for key, or (nil, false) if absent. The
// returned slice is borrowed from the Map.
func (m *Map) Get(key []byte) ([]byte, bool) {
	hash := fnv1a32(key)

	if m.legacy != nil {
		if e := m.legacy.find(key, hash); e != nil {
			return e.value, true
		}
	}

	m.migrateStep(migrationWork)

	if e := m.current.find(key, hash); e != nil {
		return e.value, true
	}
	return nil, false
}

// Remove deletes key if present and reports whether it was found.
//
// Consults current first, then falls back to legacy on miss. The
// fallback matters while a rehash is in progress: a key that was put
// and then immediately removed, before any migration step has moved it
// out of legacy, would otherwise be missed entirely.
func (m *Map) Remove(key []byte) bool {
	hash := fnv1a32(key)

	found := m.current.remove(key, hash) != nil
	if !found && m.legacy != nil {
		found = m.legacy.remove(key, hash) != nil
	}

	m.migrateStep(migrationWork)
	return found
}

// Len returns the number of live entries across both tables.
func (m *Map) Len() int {
	n := m.current.size
	if m.legacy != nil {
		n += m.legacy.size
	}
	return n
}

// All returns every (key, value) pair currently stored, legacy-first
// then current, matching the Map's internal migration order. Snapshot
// semantics are not promised if the Map is mutated during iteration.
func (m *Map) All() []KV {
	pairs := make([]KV, 0, m.Len())
	if m.legacy != nil {
		for _, head := range m.legacy.buckets {
			for e := head; e != nil; e = e.next {
				pairs = append(pairs, KV{Key: e.key, Value: e.value})
			}
		}
	}
	for _, head := range m.current.buckets {
		for e := head; e != nil; e = e.next {
			pairs = append(pairs, KV{Key: e.key, Value: e.value})
		}
	}
	return pairs
}

// Buckets reports (current, legacy) bucket counts, legacy is 0 when no
// rehash is in progress. Exposed for tests exercising rehash behavior.
func (m *Map) Buckets() (current, legacy int) {
	current = len(m.current.buckets)
	if m.legacy != nil {
		legacy = len(m.legacy.buckets)
	}
	return current, legacy
}

// Rehashing reports whether a progressive rehash is currently underway.
func (m *Map) Rehashing() bool {
	return m.legacy != nil
}

// triggerRehash retires current into legacy and allocates a fresh,
// doubled current table. The table never shrinks; if doubling would
// exceed maxBuckets the rehash is skipped and operations continue on
// the existing table.
func (m *Map) triggerRehash() {
	newCount := len(m.current.buckets) * 2
	if newCount > maxBuckets {
		return
	}
	m.legacy = m.current
	m.current = newHashTable(newCount)
	m.cursor = 0
}

// migrateStep moves up to work entries from legacy into current. Moved
// entries are relinked, not recloned: their key/value storage keeps the
// same address, so borrowed references handed out before migration
// remain valid.
func (m *Map) migrateStep(work int) {
	if m.legacy == nil {
		return
	}

	moved := 0
	for moved < work {
		for m.cursor < len(m.legacy.buckets) && m.legacy.buckets[m.cursor] == nil {
			m.cursor++
		}
		if m.cursor >= len(m.legacy.buckets) {
			break
		}

		e := m.legacy.buckets[m.cursor]
		m.legacy.buckets[m.cursor] = e.next
		m.legacy.size--
		m.current.relink(e)
		moved++
	}

	if m.legacy.size == 0 {
		m.legacy = nil
		m.cursor = 0
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
