package store

import (
	"fmt"
	"testing"
)

func TestPutGetRoundTrip(t *testing.T) {
	m := New()
	m.Put([]byte("a"), []byte("1"))
	v, ok := m.Get([]byte("a"))
	if !ok || string(v) != "1" {
		t.Fatalf("Get(a) = %q, %v", v, ok)
	}
	if _, ok := m.Get([]byte("missing")); ok {
		t.Fatal("Get(missing) should miss")
	}
}

func TestPutOverwrites(t *testing.T) {
	m := New()
	m.Put([]byte("a"), []byte("1"))
	m.Put([]byte("a"), []byte("2"))
	v, ok := m.Get([]byte("a"))
	if !ok || string(v) != "2" {
		t.Fatalf("Get(a) after overwrite = %q, %v", v, ok)
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
}

func TestRemove(t *testing.T) {
	m := New()
	m.Put([]byte("a"), []byte("1"))
	if !m.Remove([]byte("a")) {
		t.Fatal("Remove(a) should report found")
	}
	if _, ok := m.Get([]byte("a")); ok {
		t.Fatal("Get(a) should miss after Remove")
	}
	if m.Remove([]byte("a")) {
		t.Fatal("second Remove(a) should report not found")
	}
}

// fillUntilRehashing puts distinct keys "k0", "k1", ... until a rehash is
// left in progress and returns how many keys it put. The first rehashes
// finish inside the Put that triggers them, because migrationWork covers
// the whole legacy table; only a larger table is still migrating after
// its triggering Put returns.
func fillUntilRehashing(m *Map) int {
	n := 0
	for ; !m.Rehashing() && n < 10000; n++ {
		m.Put([]byte(fmt.Sprintf("k%d", n)), []byte("v"))
	}
	return n
}

// legacyKey returns a key that still sits in legacy, or "" if none does.
func legacyKey(m *Map) string {
	if m.legacy == nil {
		return ""
	}
	for _, head := range m.legacy.buckets {
		if head != nil {
			return string(head.key)
		}
	}
	return ""
}

func TestPutDoesNotDuplicateAcrossTables(t *testing.T) {
	// Force a rehash in progress, then overwrite a key that has not yet
	// migrated out of legacy. Len must not grow: the key lives in exactly
	// one table at a time.
	m := New()
	fillUntilRehashing(m)
	if !m.Rehashing() {
		t.Fatal("expected rehash to have started")
	}
	key := legacyKey(m)
	if key == "" {
		t.Fatal("expected a key still in legacy")
	}

	before := m.Len()
	m.Put([]byte(key), []byte("updated"))
	if m.Len() != before {
		t.Fatalf("Len() changed on overwrite during rehash: got %d, want %d", m.Len(), before)
	}
	v, ok := m.Get([]byte(key))
	if !ok || string(v) != "updated" {
		t.Fatalf("Get(%s) = %q, %v, want updated", key, v, ok)
	}
}

func TestRemoveDuringRehashChecksBothTables(t *testing.T) {
	// Remove must not miss a key sitting in legacy that has not yet been
	// migrated into current.
	m := New()
	n := fillUntilRehashing(m)
	if !m.Rehashing() {
		t.Fatal("expected rehash to have started")
	}
	key := legacyKey(m)
	if key == "" {
		t.Fatal("expected a key still in legacy")
	}
	if !m.Remove([]byte(key)) {
		t.Fatalf("Remove(%s) missed a key still in legacy", key)
	}

	removed := 1
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("k%d", i)
		if k == key {
			continue
		}
		if m.Remove([]byte(k)) {
			removed++
		}
	}
	if removed != n {
		t.Fatalf("removed %d of %d keys", removed, n)
	}
	if m.Len() != 0 {
		t.Fatalf("Len() = %d after removing every key, want 0", m.Len())
	}
}

// TestScenarioS8RehashCompletes inserts 10,000 distinct keys and checks
// that a rehash starts, progresses incrementally, and completes with the
// bucket count grown to accommodate the load factor.
func TestScenarioS8RehashCompletes(t *testing.T) {
	m := New()
	const n = 10000
	sawRehashing := false
	for i := 0; i < n; i++ {
		m.Put([]byte(fmt.Sprintf("key-%d", i)), []byte(fmt.Sprintf("val-%d", i)))
		if m.Rehashing() {
			sawRehashing = true
		}
	}
	if !sawRehashing {
		t.Fatal("expected rehashing to be observed at least once during insertion")
	}

	// Drain any remaining migration work with reads; each Get advances
	// the cursor by up to migrationWork entries on a legacy miss.
	for i := 0; i < n && m.Rehashing(); i++ {
		m.Get([]byte(fmt.Sprintf("key-%d", i)))
	}
	if m.Rehashing() {
		t.Fatal("expected rehash to have completed by now")
	}

	cur, legacy := m.Buckets()
	if legacy != 0 {
		t.Fatalf("legacy buckets = %d, want 0 after rehash completes", legacy)
	}
	if cur < 16 {
		t.Fatalf("current buckets = %d, want at least 16 for %d entries", cur, n)
	}
	if m.Len() != n {
		t.Fatalf("Len() = %d, want %d", m.Len(), n)
	}

	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%d", i)
		v, ok := m.Get([]byte(key))
		if !ok || string(v) != fmt.Sprintf("val-%d", i) {
			t.Fatalf("Get(%s) = %q, %v", key, v, ok)
		}
	}
}

func TestMigrationStepBounded(t *testing.T) {
	m := New()
	fillUntilRehashing(m)
	if !m.Rehashing() {
		t.Fatal("expected rehash to have started")
	}

	before := m.legacy.size
	if before < 2 {
		t.Fatalf("legacy holds %d entries, want at least 2", before)
	}
	m.migrateStep(1)
	// A single unit of work moves exactly one entry and so cannot drain
	// a table with more than one entry outstanding.
	if m.legacy == nil || m.legacy.size != before-1 {
		t.Fatalf("legacy after migrateStep(1) = %+v, want size %d", m.legacy, before-1)
	}
}

func TestAllReturnsEveryPair(t *testing.T) {
	m := New()
	want := map[string]string{"a": "1", "b": "2", "c": "3"}
	for k, v := range want {
		m.Put([]byte(k), []byte(v))
	}
	got := map[string]string{}
	for _, kv := range m.All() {
		got[string(kv.Key)] = string(kv.Value)
	}
	if len(got) != len(want) {
		t.Fatalf("All() returned %d pairs, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("All()[%s] = %q, want %q", k, got[k], v)
		}
	}
}

func TestBorrowedValueStaysValidAcrossMigration(t *testing.T) {
	m := New()
	m.Put([]byte("stable"), []byte("value"))
	v, ok := m.Get([]byte("stable"))
	if !ok {
		t.Fatal("Get(stable) should hit")
	}

	for i := 0; i < startBuckets*maxLoadFactor*2; i++ {
		m.Put([]byte(fmt.Sprintf("filler-%d", i)), []byte("x"))
	}

	if string(v) != "value" {
		t.Fatalf("borrowed value mutated: %q", v)
	}
	v2, ok := m.Get([]byte("stable"))
	if !ok || string(v2) != "value" {
		t.Fatalf("Get(stable) after churn = %q, %v", v2, ok)
	}
}
