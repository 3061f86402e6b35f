package memory

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// PayloadSize is the length of the filler payload stored per evicted page.
// Page contents carry no meaning in the simulator; only presence matters.
const PayloadSize = 32

var fillerPayload = strings.Repeat("0", PayloadSize)

// RecordKey returns the backing-store key for a process page.
func RecordKey(processName string, page int) string {
	return fmt.Sprintf("%s:page%d", processName, page)
}

// BackingStore is the simulated secondary storage.
// Records are keyed by RecordKey; absence of a key means the page has
// never been evicted. Safe for concurrent use.
type BackingStore struct {
	mu       sync.Mutex
	records  map[string]string
	pagedIn  int64
	pagedOut int64
}

// NewBackingStore creates an empty backing store.
func NewBackingStore() *BackingStore {
	return &BackingStore{records: make(map[string]string)}
}

// Evict writes a page out to the store and bumps the paged-out counter.
func (bs *BackingStore) Evict(processName string, page int) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.records[RecordKey(processName, page)] = fillerPayload
	bs.pagedOut++
}

// Load reads a page in from the store. Returns true if the page had a record
// (it was evicted before); only those loads count as paged in. The record is
// retained as the secondary copy.
func (bs *BackingStore) Load(processName string, page int) bool {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	_, ok := bs.records[RecordKey(processName, page)]
	if ok {
		bs.pagedIn++
	}
	return ok
}

// Has reports whether a record exists for the page.
func (bs *BackingStore) Has(processName string, page int) bool {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	_, ok := bs.records[RecordKey(processName, page)]
	return ok
}

// Purge removes every record owned by the process and returns how many were dropped.
func (bs *BackingStore) Purge(processName string) int {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	prefix := processName + ":page"
	n := 0
	for key := range bs.records {
		if strings.HasPrefix(key, prefix) {
			delete(bs.records, key)
			n++
		}
	}
	return n
}

// Len returns the number of records.
func (bs *BackingStore) Len() int {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return len(bs.records)
}

// Counters returns the running paged-in and paged-out totals.
func (bs *BackingStore) Counters() (pagedIn, pagedOut int64) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.pagedIn, bs.pagedOut
}

// WriteTo dumps one line per record, sorted by key: "<name>:page<N> <payload>".
func (bs *BackingStore) WriteTo(w io.Writer) (int64, error) {
	bs.mu.Lock()
	keys := make([]string, 0, len(bs.records))
	for key := range bs.records {
		keys = append(keys, key)
	}
	lines := make([]string, 0, len(keys))
	sort.Strings(keys)
	for _, key := range keys {
		lines = append(lines, key+" "+bs.records[key]+"\n")
	}
	bs.mu.Unlock()

	var total int64
	for _, line := range lines {
		n, err := io.WriteString(w, line)
		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("writing backing store: %w", err)
		}
	}
	return total, nil
}
