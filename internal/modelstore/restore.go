// restore.go startup restoration from sealed storage and configuration preload
package modelstore

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shroudml/shroud-go/internal/conf"
	"github.com/shroudml/shroud-go/internal/errors"
	"github.com/shroudml/shroud-go/internal/model"
)

// StartupUnseal scans the storage root and re-inserts every model that
// unseals successfully. A corrupt or unreadable entry is logged and
// skipped; it never prevents the rest of the store from loading. When the
// storage root does not exist it is created and the store starts empty.
func (s *ModelStore) StartupUnseal() error {
	root := s.config.Store.ModelsPath

	dirEntries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if mkErr := os.MkdirAll(root, 0o700); mkErr != nil {
				return errors.New(fmt.Errorf("creating storage root: %w", mkErr)).
					Component("modelstore").
					Category(errors.CategoryFileIO).
					Context("path", root).
					Build()
			}
			return nil
		}
		return errors.New(fmt.Errorf("scanning storage root: %w", err)).
			Component("modelstore").
			Category(errors.CategoryFileIO).
			Context("path", root).
			Build()
	}

	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() {
			continue
		}
		sealedPath := filepath.Join(root, dirEntry.Name())

		// A staged file means an insertion was interrupted before its
		// index commit; the model was never visible, so drop it.
		if strings.HasSuffix(dirEntry.Name(), sealedStagingSuffix) {
			getLogger().Warn("removing uncommitted staged sealed file", "path", sealedPath)
			if err := os.Remove(sealedPath); err != nil {
				getLogger().Error("removing staged sealed file failed", "path", sealedPath, "error", err)
			}
			continue
		}

		unsealStart := time.Now()
		env, err := s.sealer.Unseal(sealedPath)
		if s.metrics != nil {
			s.metrics.RecordSeal("unseal", time.Since(unsealStart).Seconds())
		}
		if err != nil {
			if s.metrics != nil {
				s.metrics.RecordUnsealSkipped()
			}
			getLogger().Warn("unsealing failed, skipping entry",
				"path", sealedPath, "error", err)
			continue
		}

		// The envelope id becomes the record's identity and must satisfy
		// the same file-name constraint enforced on insertion.
		if err := validateModelID(env.ID); err != nil {
			if s.metrics != nil {
				s.metrics.RecordUnsealSkipped()
			}
			getLogger().Warn("sealed entry carries invalid model id, skipping entry",
				"path", sealedPath, "error", err)
			continue
		}

		// Already persisted, so insert without re-sealing.
		if _, _, err := s.AddModel(&AddRequest{
			Bytes:       env.Bytes,
			Name:        env.Name,
			ID:          env.ID,
			InputFacts:  env.InputFacts,
			OutputFacts: env.OutputFacts,
			Persist:     false,
			Optimize:    env.Optimize,
			Context:     model.LoadFromSealed,
			OwnerID:     env.OwnerID,
		}); err != nil {
			if s.metrics != nil {
				s.metrics.RecordUnsealSkipped()
			}
			getLogger().Warn("restoring unsealed model failed, skipping entry",
				"model_id", env.ID, "error", err)
			continue
		}
		getLogger().Info("model restored from sealed storage", "model_id", env.ID)
	}

	return nil
}

// LoadConfigModels loads the statically configured models under one
// exclusive lock. Preloaded models are inserted directly into the id index
// and never enter the hash-dedup index; they are not deduplicated against
// uploads and eviction bookkeeping treats them differently. This mirrors
// the historical behavior and is deliberate until the two insertion paths
// are unified.
func (s *ModelStore) LoadConfigModels() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.config.Store.LoadModels {
		entry := &s.config.Store.LoadModels[i]
		if err := s.loadConfigModelLocked(entry); err != nil {
			getLogger().Error("loading startup model failed",
				"model_id", entry.ModelID, "path", entry.Path, "error", err)
			continue
		}
		getLogger().Info("loaded startup model", "model_id", entry.ModelID)
	}

	if s.metrics != nil {
		s.metrics.SetStoredModels(len(s.inner.byID))
	}
	return nil
}

func (s *ModelStore) loadConfigModelLocked(entry *conf.LoadModelConfig) error {
	inputFacts, err := model.TranslateFacts(entry.InputFacts)
	if err != nil {
		return err
	}
	outputFacts, err := model.TranslateFacts(entry.OutputFacts)
	if err != nil {
		return err
	}

	record, err := s.loader.LoadFromPath(entry.Path, &model.Meta{
		ID:          entry.ModelID,
		Hash:        [sha256.Size]byte{}, // loader computes the real hash from file contents
		InputFacts:  inputFacts,
		OutputFacts: outputFacts,
		Optimize:    !entry.NoOptim,
		Context:     model.LoadFromStartupConfig,
	})
	if err != nil {
		return err
	}

	s.inner.byID[entry.ModelID] = record
	s.inner.order = append(s.inner.order, entry.ModelID)
	return nil
}
