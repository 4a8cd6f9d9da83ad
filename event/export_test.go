package event

// ResolvedNames reports how many event names the manager has cached.
func (m *Manager) ResolvedNames() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sorted)
}

// MaxResolved exposes the resolution cache bound.
const MaxResolved = maxResolved
