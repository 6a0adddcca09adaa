package uploader

// Derived read-only projections. All are pure functions of current state,
// recomputed on every read; nothing here is cached.

// Files returns a snapshot of all records in insertion order.
func (m *Manager) Files() []FileRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]FileRecord, 0, len(m.order))
	for _, hash := range m.order {
		if e, ok := m.entries[hash]; ok {
			out = append(out, *e.record)
		}
	}
	return out
}

// Get returns a snapshot of the record for the given content hash.
func (m *Manager) Get(hash string) (FileRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[hash]; ok {
		return *e.record, true
	}
	return FileRecord{}, false
}

// Len returns the number of tracked records.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// RemainingCapacity returns how many more files can be added, counting
// candidates reserved by in-flight negotiations.
func (m *Manager) RemainingCapacity() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	remaining := m.cfg.MaxFiles - len(m.entries) - len(m.staged)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HasPending reports whether any record is waiting for a transfer slot.
func (m *Manager) HasPending() bool { return m.anyStatus(StatusPending) }

// HasTransferring reports whether any transfer is in flight.
func (m *Manager) HasTransferring() bool { return m.anyStatus(StatusTransferring) }

// HasFailed reports whether any record terminated with an error.
func (m *Manager) HasFailed() bool { return m.anyStatus(StatusFailed) }

// HasComplete reports whether any record finished successfully.
func (m *Manager) HasComplete() bool { return m.anyStatus(StatusComplete) }

func (m *Manager) anyStatus(s Status) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.record.Status == s {
			return true
		}
	}
	return false
}

// Errors returns a snapshot of the collection-level error log, oldest
// first.
func (m *Manager) Errors() []ErrorEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ErrorEntry, len(m.errs))
	copy(out, m.errs)
	return out
}
