package modelstore

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shroudml/shroud-go/internal/conf"
	"github.com/shroudml/shroud-go/internal/errors"
	"github.com/shroudml/shroud-go/internal/model"
	"github.com/shroudml/shroud-go/internal/sealing"
)

// newSealedStore builds a store backed by the real file sealer so restart
// behavior can be exercised end to end.
func newSealedStore(t *testing.T, settings *conf.Settings) (*ModelStore, *stubLoader) {
	t.Helper()
	sealer, err := sealing.NewFileSealer(filepath.Join(t.TempDir(), "sealing.key"))
	require.NoError(t, err)
	loader := &stubLoader{pathData: make(map[string][]byte)}
	return New(settings, sealer, loader, nil), loader
}

func TestStartupUnsealRestoresState(t *testing.T) {
	t.Parallel()

	settings := testSettings(t, 0)
	keyPath := filepath.Join(t.TempDir(), "sealing.key")
	sealer, err := sealing.NewFileSealer(keyPath)
	require.NoError(t, err)

	loader := &stubLoader{}
	store := New(settings, sealer, loader, nil)

	dt := model.DatumF32
	owner := 9
	inputFacts := []model.TensorFact{{DatumType: &dt, Dims: []int{1, 224}}}

	_, hash1 := mustAdd(t, store, &AddRequest{
		Bytes:      []byte("weights-1"),
		Name:       "first",
		ID:         "m1",
		InputFacts: inputFacts,
		Persist:    true,
		Optimize:   true,
		OwnerID:    &owner,
	})
	_, hash2 := mustAdd(t, store, &AddRequest{
		Bytes:   []byte("weights-2"),
		ID:      "m2",
		Persist: true,
	})

	// Simulated restart: fresh store over the same storage root and key.
	restartSealer, err := sealing.NewFileSealer(keyPath)
	require.NoError(t, err)
	restarted := New(settings, restartSealer, &stubLoader{}, nil)
	require.NoError(t, restarted.StartupUnseal())

	assert.Equal(t, 2, restarted.Len())

	info, ok := UseModel(restarted, "m1", InfoOf)
	require.True(t, ok)
	assert.Equal(t, "first", info.Name)
	assert.Equal(t, hex.EncodeToString(hash1[:]), info.ContentHash)
	require.NotNil(t, info.OwnerID)
	assert.Equal(t, owner, *info.OwnerID)
	assert.Equal(t, model.LoadFromSealed.String(), info.Provenance)
	assert.Equal(t, inputFacts, info.InputFacts)

	info, ok = UseModel(restarted, "m2", InfoOf)
	require.True(t, ok)
	assert.Equal(t, hex.EncodeToString(hash2[:]), info.ContentHash)

	snap := restarted.Snapshot()
	assert.Equal(t, "m1", snap.Owners[owner])
	assert.Equal(t, 1, snap.Refcount[hex.EncodeToString(hash1[:])])
}

func TestStartupUnsealSkipsCorruptedEntries(t *testing.T) {
	t.Parallel()

	settings := testSettings(t, 0)
	keyPath := filepath.Join(t.TempDir(), "sealing.key")
	sealer, err := sealing.NewFileSealer(keyPath)
	require.NoError(t, err)

	store := New(settings, sealer, &stubLoader{}, nil)
	mustAdd(t, store, &AddRequest{Bytes: []byte("good-1"), ID: "g1", Persist: true})
	mustAdd(t, store, &AddRequest{Bytes: []byte("good-2"), ID: "g2", Persist: true})

	// Corrupt one sealed file in place.
	corruptPath := filepath.Join(settings.Store.ModelsPath, "g1")
	raw, err := os.ReadFile(corruptPath)
	require.NoError(t, err)
	raw[len(raw)/2] ^= 0xff
	require.NoError(t, os.WriteFile(corruptPath, raw, 0o600))

	restartSealer, err := sealing.NewFileSealer(keyPath)
	require.NoError(t, err)
	restarted := New(settings, restartSealer, &stubLoader{}, nil)

	require.NoError(t, restarted.StartupUnseal(), "a corrupt entry must not abort restoration")
	assert.Equal(t, 1, restarted.Len())
	_, ok := UseModel(restarted, "g2", InfoOf)
	assert.True(t, ok)
}

func TestStartupUnsealCreatesMissingRoot(t *testing.T) {
	t.Parallel()

	settings := testSettings(t, 0)
	settings.Store.ModelsPath = filepath.Join(settings.Store.ModelsPath, "not-yet-created")

	store, _ := newSealedStore(t, settings)
	require.NoError(t, store.StartupUnseal())

	assert.Equal(t, 0, store.Len())
	info, err := os.Stat(settings.Store.ModelsPath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoadConfigModelsBypassesDedupIndex(t *testing.T) {
	t.Parallel()

	settings := testSettings(t, 0)
	dt := "f32"
	settings.Store.LoadModels = []conf.LoadModelConfig{
		{
			Path:       "/opt/models/a.tflite",
			ModelID:    "preload-a",
			InputFacts: []conf.ModelFactConfig{{DatumType: &dt, Dims: []int{1, 10}}},
		},
		{
			Path:    "/opt/models/b.tflite",
			ModelID: "preload-b",
		},
	}

	loader := &stubLoader{pathData: map[string][]byte{
		"/opt/models/a.tflite": []byte("same-bytes"),
		"/opt/models/b.tflite": []byte("same-bytes"),
	}}
	store := New(settings, newStubSealer(), loader, nil)

	require.NoError(t, store.LoadConfigModels())
	assert.Equal(t, 2, store.Len())

	// Identical content is parsed twice and never enters the hash index.
	assert.Equal(t, 2, loader.loadCount())
	snap := store.Snapshot()
	assert.Empty(t, snap.Refcount)

	info, ok := UseModel(store, "preload-a", InfoOf)
	require.True(t, ok)
	assert.Equal(t, model.LoadFromStartupConfig.String(), info.Provenance)
	wantHash := sha256.Sum256([]byte("same-bytes"))
	assert.Equal(t, hex.EncodeToString(wantHash[:]), info.ContentHash)
}

func TestLoadConfigModelsSkipsFailingEntries(t *testing.T) {
	t.Parallel()

	settings := testSettings(t, 0)
	badDT := "quaternion"
	settings.Store.LoadModels = []conf.LoadModelConfig{
		{Path: "/missing.tflite", ModelID: "missing"},
		{Path: "/opt/models/bad-facts.tflite", ModelID: "bad-facts",
			InputFacts: []conf.ModelFactConfig{{DatumType: &badDT}}},
		{Path: "/opt/models/ok.tflite", ModelID: "ok"},
	}

	loader := &stubLoader{pathData: map[string][]byte{
		"/opt/models/bad-facts.tflite": []byte("x"),
		"/opt/models/ok.tflite":        []byte("y"),
	}}
	store := New(settings, newStubSealer(), loader, nil)

	require.NoError(t, store.LoadConfigModels(), "per-entry failures must not abort the batch")
	assert.Equal(t, 1, store.Len())
	_, ok := UseModel(store, "ok", InfoOf)
	assert.True(t, ok)
}

func TestAddModelRejectsUnsafeIDs(t *testing.T) {
	t.Parallel()

	// Key file lives next to the storage root, the layout a traversal id
	// would reach first.
	base := t.TempDir()
	modelsPath := filepath.Join(base, "models")
	require.NoError(t, os.MkdirAll(modelsPath, 0o700))
	keyPath := filepath.Join(base, "sealing.key")

	sealer, err := sealing.NewFileSealer(keyPath)
	require.NoError(t, err)
	keyBefore, err := os.ReadFile(keyPath)
	require.NoError(t, err)

	settings := testSettings(t, 0)
	settings.Store.ModelsPath = modelsPath
	store := New(settings, sealer, &stubLoader{}, nil)

	for _, id := range []string{
		"../sealing.key",
		"..",
		".",
		"a/b",
		"/etc/passwd",
	} {
		_, _, err := store.AddModel(&AddRequest{Bytes: []byte("x"), ID: id, Persist: true})
		require.Error(t, err, "id %q must be rejected", id)
		assert.True(t, errors.HasCategory(err, errors.CategoryValidation), "id %q", id)
	}

	assert.Equal(t, 0, store.Len())
	keyAfter, err := os.ReadFile(keyPath)
	require.NoError(t, err)
	assert.Equal(t, keyBefore, keyAfter, "sealing key must not be touched")
	entries, err := os.ReadDir(modelsPath)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing may be written under the storage root")
}

func TestRejectedCollisionPreservesSealedFile(t *testing.T) {
	t.Parallel()

	settings := testSettings(t, 0)
	keyPath := filepath.Join(t.TempDir(), "sealing.key")
	sealer, err := sealing.NewFileSealer(keyPath)
	require.NoError(t, err)
	store := New(settings, sealer, &stubLoader{}, nil)

	_, acceptedHash := mustAdd(t, store, &AddRequest{
		Bytes: []byte("accepted"), ID: "m1", Persist: true,
	})

	_, _, err = store.AddModel(&AddRequest{
		Bytes: []byte("rejected"), ID: "m1", Persist: true,
	})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConflict))

	// The rejected upload leaves neither a staged file nor a rewritten
	// sealed file behind.
	entries, err := os.ReadDir(settings.Store.ModelsPath)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].Name())

	// A restart restores the accepted bytes, not the rejected ones.
	restartSealer, err := sealing.NewFileSealer(keyPath)
	require.NoError(t, err)
	restarted := New(settings, restartSealer, &stubLoader{}, nil)
	require.NoError(t, restarted.StartupUnseal())

	info, ok := UseModel(restarted, "m1", InfoOf)
	require.True(t, ok)
	assert.Equal(t, hex.EncodeToString(acceptedHash[:]), info.ContentHash)
}

func TestStartupUnsealRemovesStagedLeftovers(t *testing.T) {
	t.Parallel()

	settings := testSettings(t, 0)
	keyPath := filepath.Join(t.TempDir(), "sealing.key")
	sealer, err := sealing.NewFileSealer(keyPath)
	require.NoError(t, err)

	store := New(settings, sealer, &stubLoader{}, nil)
	mustAdd(t, store, &AddRequest{Bytes: []byte("good"), ID: "g1", Persist: true})

	// Simulate an insertion interrupted between sealing and index commit.
	stagedPath := filepath.Join(settings.Store.ModelsPath, "g2"+sealedStagingSuffix)
	require.NoError(t, os.WriteFile(stagedPath, []byte("partial"), 0o600))

	restartSealer, err := sealing.NewFileSealer(keyPath)
	require.NoError(t, err)
	restarted := New(settings, restartSealer, &stubLoader{}, nil)
	require.NoError(t, restarted.StartupUnseal())

	assert.Equal(t, 1, restarted.Len())
	_, ok := UseModel(restarted, "g1", InfoOf)
	assert.True(t, ok)
	_, err = os.Stat(stagedPath)
	assert.True(t, os.IsNotExist(err), "staged leftover must be removed")
}

func TestStartupUnsealSkipsFailingReinsertions(t *testing.T) {
	t.Parallel()

	settings := testSettings(t, 0)
	keyPath := filepath.Join(t.TempDir(), "sealing.key")
	sealer, err := sealing.NewFileSealer(keyPath)
	require.NoError(t, err)

	store := New(settings, sealer, &stubLoader{}, nil)
	_, hash1 := mustAdd(t, store, &AddRequest{Bytes: []byte("first"), ID: "g1", Persist: true})
	mustAdd(t, store, &AddRequest{Bytes: []byte("second"), ID: "g2", Persist: true})

	// Duplicate sealed file: its envelope still names id "g1", so the
	// re-insertion collides during the scan.
	src := filepath.Join(settings.Store.ModelsPath, "g1")
	raw, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(settings.Store.ModelsPath, "g1-copy"), raw, 0o600))

	restartSealer, err := sealing.NewFileSealer(keyPath)
	require.NoError(t, err)
	restarted := New(settings, restartSealer, &stubLoader{}, nil)

	require.NoError(t, restarted.StartupUnseal(), "a failing re-insertion must not abort restoration")
	assert.Equal(t, 2, restarted.Len())

	info, ok := UseModel(restarted, "g1", InfoOf)
	require.True(t, ok)
	assert.Equal(t, hex.EncodeToString(hash1[:]), info.ContentHash)
	_, ok = UseModel(restarted, "g2", InfoOf)
	assert.True(t, ok)
}

func TestConfigPreloadedModelsAreEvictable(t *testing.T) {
	t.Parallel()

	settings := testSettings(t, 2)
	settings.Store.LoadModels = []conf.LoadModelConfig{
		{Path: "/opt/models/a.tflite", ModelID: "preload-a"},
	}
	loader := &stubLoader{pathData: map[string][]byte{
		"/opt/models/a.tflite": []byte("a"),
	}}
	store := New(settings, newStubSealer(), loader, nil)
	require.NoError(t, store.LoadConfigModels())

	mustAdd(t, store, &AddRequest{Bytes: []byte("b"), ID: "m1"})
	mustAdd(t, store, &AddRequest{Bytes: []byte("c"), ID: "m2"})

	// The preloaded model was the oldest insertion; eviction removes it
	// without touching the hash index it never joined.
	assert.Equal(t, 2, store.Len())
	_, ok := UseModel(store, "preload-a", InfoOf)
	assert.False(t, ok)
}
