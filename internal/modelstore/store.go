// Package modelstore implements the model-lifecycle store: three
// cross-referential indices over loaded models (by id, by owner, by content
// hash) kept mutually consistent behind a single reader/writer lock, with
// content deduplication, bounded capacity, and sealed persistence.
package modelstore

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shroudml/shroud-go/internal/conf"
	"github.com/shroudml/shroud-go/internal/errors"
	"github.com/shroudml/shroud-go/internal/model"
	"github.com/shroudml/shroud-go/internal/observability/metrics"
	"github.com/shroudml/shroud-go/internal/sealing"
)

// hashEntry is the dedup index cell: an explicit reference count plus the
// shared parsed artifact. The count equals the number of records in byID
// whose content hash maps to this entry.
type hashEntry struct {
	refs     int
	artifact model.Artifact
}

// innerStore holds the three indices. All access goes through ModelStore
// methods holding the lock; the raw maps never escape the package.
type innerStore struct {
	byID    map[string]*model.InferModel
	byOwner map[int]*model.InferModel
	byHash  map[[sha256.Size]byte]*hashEntry

	// order tracks byID insertion order for deterministic FIFO eviction.
	// Entries whose id is no longer live are skipped lazily.
	order []string
}

// ModelStore is where models are stored. It is constructed once at service
// startup and shared with every handler that needs it.
type ModelStore struct {
	mu      sync.RWMutex
	inner   innerStore
	config  *conf.Settings
	sealer  sealing.Sealer
	loader  model.Loader
	metrics *metrics.ModelStoreMetrics
}

// New creates an empty store. The metrics collector may be nil.
func New(config *conf.Settings, sealer sealing.Sealer, loader model.Loader, m *metrics.ModelStoreMetrics) *ModelStore {
	return &ModelStore{
		inner: innerStore{
			byID:    make(map[string]*model.InferModel),
			byOwner: make(map[int]*model.InferModel),
			byHash:  make(map[[sha256.Size]byte]*hashEntry),
		},
		config:  config,
		sealer:  sealer,
		loader:  loader,
		metrics: m,
	}
}

// sealedStagingSuffix marks a sealed file written but not yet committed to
// the index. StartupUnseal removes leftovers from interrupted insertions.
const sealedStagingSuffix = ".staging"

// validateModelID rejects ids that cannot serve as a sealed file name
// directly under the storage root. The id becomes the on-disk name, so
// separators, traversal components, and absolute paths must never pass.
func validateModelID(id string) error {
	if id == "." || filepath.Base(id) != id || !filepath.IsLocal(id) {
		return errors.Newf("invalid model id %q: must be a plain file name", id).
			Component("modelstore").
			Category(errors.CategoryValidation).
			Context("model_id", id).
			Build()
	}
	return nil
}

// AddRequest carries the inputs of an insertion.
type AddRequest struct {
	Bytes       []byte
	Name        string
	ID          string // generated when empty
	InputFacts  []model.TensorFact
	OutputFacts []model.TensorFact
	Persist     bool
	Optimize    bool
	Context     model.LoadContext
	OwnerID     *int
}

// AddModel inserts a model into the store and returns its final id and
// content hash. When persistence is requested the model is sealed before
// any index mutation, so a sealing failure leaves the store untouched.
// Steps after taking the write lock are observed atomically by readers.
func (s *ModelStore) AddModel(req *AddRequest) (string, [sha256.Size]byte, error) {
	id, hash, err := s.addModel(req)
	if s.metrics != nil {
		s.metrics.RecordAdd(req.Context.String(), err)
		if err != nil {
			var ee *errors.EnhancedError
			if errors.As(err, &ee) {
				s.metrics.RecordAddError(ee.GetCategory())
			}
		}
		s.metrics.SetStoredModels(s.Len())
	}
	return id, hash, err
}

func (s *ModelStore) addModel(req *AddRequest) (string, [sha256.Size]byte, error) {
	modelID := req.ID
	if modelID == "" {
		modelID = uuid.New().String()
	} else if err := validateModelID(modelID); err != nil {
		return "", [sha256.Size]byte{}, err
	}

	modelHash := sha256.Sum256(req.Bytes)

	// Sealing happens outside the lock, to a staged file that is renamed
	// into place only after the index insertion commits. A failure here
	// aborts the whole operation with no index mutation, no partial
	// record, and no existing sealed file disturbed.
	var sealedPath, stagedPath string
	if req.Persist {
		sealStart := time.Now()
		sealedPath = filepath.Join(s.config.Store.ModelsPath, modelID)
		stagedPath = sealedPath + sealedStagingSuffix
		err := s.sealer.Seal(stagedPath, &sealing.Envelope{
			ID:          modelID,
			Name:        req.Name,
			Bytes:       req.Bytes,
			InputFacts:  req.InputFacts,
			OutputFacts: req.OutputFacts,
			Optimize:    req.Optimize,
			OwnerID:     req.OwnerID,
		})
		if s.metrics != nil {
			s.metrics.RecordSeal("seal", time.Since(sealStart).Seconds())
		}
		if err != nil {
			_ = os.Remove(stagedPath)
			return "", modelHash, err
		}
		getLogger().Debug("model sealed", "model_id", modelID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Release space if the store is full (FIFO on insertion order).
	if limit := s.config.Store.MaxModelStore; limit != 0 && len(s.inner.byID) >= limit {
		s.evictOldestLocked()
	}

	meta := &model.Meta{
		ID:          modelID,
		Name:        req.Name,
		Hash:        modelHash,
		InputFacts:  req.InputFacts,
		OutputFacts: req.OutputFacts,
		Optimize:    req.Optimize,
		Context:     req.Context,
		OwnerID:     req.OwnerID,
	}

	// Deduplication: identical content shares one parsed artifact.
	var record *model.InferModel
	if entry, ok := s.inner.byHash[modelHash]; ok {
		entry.refs++
		record = model.Reuse(entry.artifact, meta)
		if s.metrics != nil {
			s.metrics.RecordDedupHit()
		}
		getLogger().Debug("reusing existing artifact", "model_id", modelID, "refs", entry.refs)
	} else {
		// The parse may take a while and runs under the write lock; see
		// the concurrency contract in the package documentation. An
		// eviction already performed above is not rolled back on failure.
		loadStart := time.Now()
		loaded, err := s.loader.Load(req.Bytes, meta)
		if s.metrics != nil {
			s.metrics.RecordLoad(time.Since(loadStart).Seconds())
		}
		if err != nil {
			if req.Persist {
				_ = os.Remove(stagedPath)
			}
			return "", modelHash, err
		}
		record = loaded
		s.inner.byHash[modelHash] = &hashEntry{refs: 1, artifact: record.Artifact()}
	}

	// Identity index insertion. A collision discards the new record, its
	// staged sealed file, and the refcount increment made above; the
	// existing id's sealed file is never touched.
	if _, exists := s.inner.byID[modelID]; exists {
		s.releaseHashLocked(modelHash)
		if req.Persist {
			_ = os.Remove(stagedPath)
		}
		if s.metrics != nil {
			s.metrics.RecordCollision()
		}
		getLogger().Error("id collision: model already exists", "model_id", modelID)
		return "", modelHash, errors.Newf("model id %q already exists", modelID).
			Component("modelstore").
			Category(errors.CategoryConflict).
			ModelContext(modelID, req.OwnerID).
			Build()
	}

	// Commit the sealed file under its final name before the record
	// becomes visible; a rename failure reverts the hash bookkeeping and
	// leaves all three indices unchanged.
	if req.Persist {
		if err := os.Rename(stagedPath, sealedPath); err != nil {
			s.releaseHashLocked(modelHash)
			_ = os.Remove(stagedPath)
			return "", modelHash, errors.Newf("committing sealed file: %w", err).
				Component("modelstore").
				Category(errors.CategorySealing).
				ModelContext(modelID, req.OwnerID).
				Build()
		}
	}
	s.inner.byID[modelID] = record
	s.inner.order = append(s.inner.order, modelID)

	// Owner index: at most one live model per owner, last write wins.
	// A superseded model is fully retired from all three indices.
	if req.OwnerID != nil {
		if previous, ok := s.inner.byOwner[*req.OwnerID]; ok {
			s.inner.byOwner[*req.OwnerID] = record
			delete(s.inner.byID, previous.ID())
			s.releaseHashLocked(previous.ContentHash())
			getLogger().Info("superseded previous model for owner",
				"owner_id", *req.OwnerID,
				"previous_model_id", previous.ID(),
				"model_id", modelID)
		} else {
			s.inner.byOwner[*req.OwnerID] = record
		}
	}

	return modelID, modelHash, nil
}

// UseModel looks up a model by id under shared access and, when found,
// invokes fn against the record and returns its result. The callback must
// not retain the record or mutate shared state.
func UseModel[U any](s *ModelStore, modelID string, fn func(*model.InferModel) U) (U, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.inner.byID[modelID]
	if !ok {
		var zero U
		return zero, false
	}
	return fn(record), true
}

// DeleteModel removes a model from all three indices. It returns the
// removed record, or nil when the id is unknown.
func (s *ModelStore) DeleteModel(modelID string) *model.InferModel {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.inner.byID[modelID]
	if !ok {
		return nil
	}
	delete(s.inner.byID, modelID)

	if owner := record.OwnerID(); owner != nil {
		delete(s.inner.byOwner, *owner)
	}

	s.releaseHashLocked(record.ContentHash())

	if s.metrics != nil {
		s.metrics.RecordDelete()
		s.metrics.SetStoredModels(len(s.inner.byID))
	}
	return record
}

// Len returns the number of live models in the id index.
func (s *ModelStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.inner.byID)
}

// evictOldestLocked removes the oldest-inserted surviving record from all
// indices. Order entries for records already deleted or superseded are
// discarded as they surface. Caller must hold the write lock.
func (s *ModelStore) evictOldestLocked() {
	for len(s.inner.order) > 0 {
		oldestID := s.inner.order[0]
		s.inner.order = s.inner.order[1:]

		record, ok := s.inner.byID[oldestID]
		if !ok {
			continue // already deleted or superseded
		}
		delete(s.inner.byID, oldestID)
		if owner := record.OwnerID(); owner != nil {
			if current, ok := s.inner.byOwner[*owner]; ok && current == record {
				delete(s.inner.byOwner, *owner)
			}
		}
		s.releaseHashLocked(record.ContentHash())

		if s.metrics != nil {
			s.metrics.RecordEviction()
		}
		getLogger().Info("evicted oldest model to stay within capacity",
			"model_id", oldestID,
			"limit", s.config.Store.MaxModelStore)
		return
	}
}

// releaseHashLocked decrements the refcount for a content hash, dropping
// the dedup entry when the last reference disappears. A missing entry is a
// no-op: configuration-preloaded models never enter the hash index.
func (s *ModelStore) releaseHashLocked(hash [sha256.Size]byte) {
	entry, ok := s.inner.byHash[hash]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(s.inner.byHash, hash)
	}
}
