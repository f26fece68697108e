package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/Connerlevi/capnet/pkg/contracts"
)

func (s *Store) capabilitiesPath() string {
	return s.path(capabilitiesFile)
}

func (s *Store) loadCapabilities() error {
	data, err := os.ReadFile(s.capabilitiesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("store: read capabilities: %w", err)
	}
	var index map[string]*contracts.Capability
	if err := json.Unmarshal(data, &index); err != nil {
		s.log.Error("store: capabilities.json is corrupt, starting from an empty index", "path", s.capabilitiesPath(), "error", err)
		return nil
	}
	s.capabilities = index
	return nil
}

// persistCapabilitiesLocked writes the full in-memory index to disk.
// Callers must hold s.mu.
func (s *Store) persistCapabilitiesLocked() error {
	data, err := json.Marshal(s.capabilities)
	if err != nil {
		return fmt.Errorf("store: marshal capabilities: %w", err)
	}
	return writeAtomic(s.capabilitiesPath(), data)
}

// PutCapability inserts or overwrites a capability record and persists
// the whole index atomically.
func (s *Store) PutCapability(cap *contracts.Capability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capabilities[cap.CapID] = cap
	return s.persistCapabilitiesLocked()
}

// GetCapability looks up a capability by ID.
func (s *Store) GetCapability(capID string) (*contracts.Capability, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cap, ok := s.capabilities[capID]
	return cap, ok
}

// ListCapabilities returns every stored capability, in no particular
// order. Callers that need a deterministic order sort it themselves.
func (s *Store) ListCapabilities() []*contracts.Capability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*contracts.Capability, 0, len(s.capabilities))
	for _, cap := range s.capabilities {
		out = append(out, cap)
	}
	return out
}

// FindCapsForAgent returns every capability issued to agentID bound to
// agentPubKey, ordered unrevoked-first, then newest-issued-first, then
// earliest-expiry-first. The enforcement engine takes the first element
// as the capability to evaluate; callers that want to see every
// candidate (e.g. diagnostics) can use the whole slice.
func (s *Store) FindCapsForAgent(agentID, agentPubKey string) []*contracts.Capability {
	s.mu.RLock()
	matches := make([]*contracts.Capability, 0)
	for _, cap := range s.capabilities {
		if cap.Executor.AgentID == agentID && cap.Executor.AgentPubKey == agentPubKey {
			matches = append(matches, cap)
		}
	}
	revoked := make(map[string]bool, len(matches))
	for _, cap := range matches {
		revoked[cap.CapID] = s.revoked[cap.CapID]
	}
	s.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		ar, br := revoked[a.CapID], revoked[b.CapID]
		if ar != br {
			return !ar // unrevoked (false) sorts before revoked (true)
		}
		if !a.IssuedAt.Equal(b.IssuedAt) {
			return a.IssuedAt.After(b.IssuedAt) // newest issued_at first
		}
		return a.ExpiresAt.Before(b.ExpiresAt) // earliest expiry first
	})

	return matches
}
