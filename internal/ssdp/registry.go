package ssdp

import (
	"sort"
	"sync"
)

// Registry is the in-memory table of advertised services, keyed by USN.
// It is safe for concurrent use: the hosting application registers from its
// own goroutine while the receive loop reads.
type Registry struct {
	mu      sync.RWMutex
	records map[string]ServiceRecord
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]ServiceRecord)}
}

// Register inserts or replaces the record for rec.USN and returns the stored
// copy with defaults applied.
func (r *Registry) Register(rec ServiceRecord) (ServiceRecord, error) {
	if err := rec.validate(); err != nil {
		return ServiceRecord{}, err
	}
	rec = rec.withDefaults()

	r.mu.Lock()
	r.records[rec.USN] = rec
	r.mu.Unlock()
	return rec, nil
}

// Unregister removes a record. It reports whether the record existed.
func (r *Registry) Unregister(usn string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[usn]; !ok {
		return false
	}
	delete(r.records, usn)
	return true
}

// Lookup returns the record for usn.
func (r *Registry) Lookup(usn string) (ServiceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[usn]
	return rec, ok
}

// IsKnown reports whether usn is registered.
func (r *Registry) IsKnown(usn string) bool {
	_, ok := r.Lookup(usn)
	return ok
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// All returns a snapshot of every record, sorted by USN.
func (r *Registry) All() []ServiceRecord {
	return r.snapshot(func(ServiceRecord) bool { return true })
}

// Local returns a snapshot of the records this process owns, sorted by USN.
func (r *Registry) Local() []ServiceRecord {
	return r.snapshot(ServiceRecord.IsLocal)
}

func (r *Registry) snapshot(keep func(ServiceRecord) bool) []ServiceRecord {
	r.mu.RLock()
	out := make([]ServiceRecord, 0, len(r.records))
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].USN < out[j].USN })
	return out
}
