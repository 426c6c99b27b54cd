// snapshot.go read-only view of the three indices
package modelstore

import (
	"encoding/hex"

	"github.com/shroudml/shroud-go/internal/model"
)

// ModelInfo is a read-only description of one stored model.
type ModelInfo struct {
	ID          string             `json:"id"`
	Name        string             `json:"name,omitempty"`
	ContentHash string             `json:"content_hash"`
	OwnerID     *int               `json:"owner_id,omitempty"`
	Provenance  string             `json:"provenance"`
	InputFacts  []model.TensorFact `json:"input_facts,omitempty"`
	OutputFacts []model.TensorFact `json:"output_facts,omitempty"`
}

// Snapshot is a consistent point-in-time view of the store, taken under
// shared access. Models appear in insertion order.
type Snapshot struct {
	Models   []ModelInfo    `json:"models"`
	Owners   map[int]string `json:"owners"`   // owner id -> model id
	Refcount map[string]int `json:"refcount"` // hex content hash -> live references
}

// InfoOf builds the read-only description of a record.
func InfoOf(record *model.InferModel) ModelInfo {
	hash := record.ContentHash()
	return ModelInfo{
		ID:          record.ID(),
		Name:        record.Name(),
		ContentHash: hex.EncodeToString(hash[:]),
		OwnerID:     record.OwnerID(),
		Provenance:  record.Context().String(),
		InputFacts:  record.InputFacts(),
		OutputFacts: record.OutputFacts(),
	}
}

// Snapshot returns a consistent copy of all three indices.
func (s *ModelStore) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Models:   make([]ModelInfo, 0, len(s.inner.byID)),
		Owners:   make(map[int]string, len(s.inner.byOwner)),
		Refcount: make(map[string]int, len(s.inner.byHash)),
	}

	seen := make(map[string]bool, len(s.inner.byID))
	for _, id := range s.inner.order {
		record, ok := s.inner.byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		snap.Models = append(snap.Models, InfoOf(record))
	}

	for owner, record := range s.inner.byOwner {
		snap.Owners[owner] = record.ID()
	}
	for hash, entry := range s.inner.byHash {
		snap.Refcount[hex.EncodeToString(hash[:])] = entry.refs
	}
	return snap
}
