package runtime

import "sync"

// versionIndex tracks the snapshot version and type spec of every key this
// process has stored, plus newer versions announced by other writers.
type versionIndex struct {
	mu      sync.RWMutex
	entries map[string]*versionEntry
}

type versionEntry struct {
	typeName string
	version  int64
}

func newVersionIndex() *versionIndex {
	return &versionIndex{
		entries: make(map[string]*versionEntry),
	}
}

// prepareStore reserves the next version for key. floor is the highest version
// known to exist elsewhere; the reserved version is always above it. The
// returned rollback undoes the reservation unless another store has already
// moved past it.
func (r *versionIndex) prepareStore(key, typeName string, floor int64) (int64, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.entries[key]
	var saved versionEntry
	if existed {
		saved = *prev
	}

	entry := prev
	if entry == nil {
		entry = &versionEntry{}
		r.entries[key] = entry
	}
	entry.version = max(entry.version, floor) + 1
	entry.typeName = typeName
	version := entry.version

	rollback := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		current := r.entries[key]
		if current == nil || current.version != version {
			return
		}
		if !existed {
			delete(r.entries, key)
			return
		}
		*current = saved
	}

	return version, rollback
}

// observe raises the version of a tracked key. It reports whether the entry moved.
func (r *versionIndex) observe(key string, version int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.entries[key]
	if entry == nil || version <= entry.version {
		return false
	}
	entry.version = version
	return true
}

func (r *versionIndex) remove(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; !ok {
		return false
	}
	delete(r.entries, key)
	return true
}

func (r *versionIndex) hasEntry(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

func (r *versionIndex) lookup(key string) (versionEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry := r.entries[key]
	if entry == nil {
		return versionEntry{}, false
	}
	return *entry, true
}

func (r *versionIndex) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
