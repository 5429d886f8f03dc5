package state

// Snapshot is the captured data of every entry under a set of prefixes. It
// is taken before an optimistic write and handed back to Restore to undo it.
type Snapshot struct {
	prefixes []Key
	entries  map[string]Entry
}

// Keys returns the keys captured by the snapshot.
func (s Snapshot) Keys() []Key {
	keys := make([]Key, 0, len(s.entries))
	for _, e := range s.entries {
		keys = append(keys, e.Key)
	}
	sortKeys(keys)
	return keys
}

// Covers reports whether key falls under one of the snapshot's prefixes.
func (s Snapshot) Covers(key Key) bool {
	for _, p := range s.prefixes {
		if key.HasPrefix(p) {
			return true
		}
	}
	return false
}

// Snapshot captures the entries under the given prefixes.
func (s *Store) Snapshot(prefixes ...Key) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	snap := Snapshot{entries: make(map[string]Entry)}
	for _, p := range prefixes {
		snap.prefixes = append(snap.prefixes, NewKey(p...))
	}
	for id, e := range s.entries {
		if snap.Covers(e.Key) {
			snap.entries[id] = e
		}
	}
	return snap
}

// Restore puts the data of every covered entry back to its captured value.
// Observer counts and fetch status stay live, since those belong to the
// synchronizer rather than to the write being undone. Entries created after
// the snapshot are removed unless something is observing them, in which case
// only their data is cleared.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, cur := range s.entries {
		if !snap.Covers(cur.Key) {
			continue
		}
		if _, captured := snap.entries[id]; captured {
			continue
		}
		if cur.Observers == 0 && cur.FetchStatus == Idle {
			delete(s.entries, id)
			continue
		}
		s.entries[id] = withData(cur, Entry{})
	}
	for id, saved := range snap.entries {
		cur, ok := s.entries[id]
		if !ok {
			s.entries[id] = saved
			continue
		}
		s.entries[id] = withData(cur, saved)
	}
}

// withData copies the data-bearing fields of src onto dst.
func withData(dst, src Entry) Entry {
	dst.Data = src.Data
	dst.HasData = src.HasData
	dst.Err = src.Err
	dst.Stale = src.Stale
	dst.UpdatedAt = src.UpdatedAt
	dst.ErrorAt = src.ErrorAt
	dst.FailureCount = src.FailureCount
	return dst
}
