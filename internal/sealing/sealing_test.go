package sealing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shroudml/shroud-go/internal/errors"
	"github.com/shroudml/shroud-go/internal/model"
)

func newTestSealer(t *testing.T) *FileSealer {
	t.Helper()
	sealer, err := NewFileSealer(filepath.Join(t.TempDir(), "sealing.key"))
	require.NoError(t, err)
	return sealer
}

func TestSealUnsealRoundTrip(t *testing.T) {
	t.Parallel()

	sealer := newTestSealer(t)
	dir := t.TempDir()

	dt := model.DatumF32
	owner := 7
	env := &Envelope{
		ID:          "model-1",
		Name:        "resnet",
		Bytes:       []byte("raw model bytes"),
		InputFacts:  []model.TensorFact{{DatumType: &dt, Dims: []int{1, 3, 224, 224}}},
		OutputFacts: []model.TensorFact{{Dims: []int{1, 1000}}},
		Optimize:    true,
		OwnerID:     &owner,
	}

	path := filepath.Join(dir, env.ID)
	require.NoError(t, sealer.Seal(path, env))

	restored, err := sealer.Unseal(path)
	require.NoError(t, err)

	assert.Equal(t, env.ID, restored.ID)
	assert.Equal(t, env.Name, restored.Name)
	assert.Equal(t, env.Bytes, restored.Bytes)
	assert.Equal(t, env.InputFacts, restored.InputFacts)
	assert.Equal(t, env.OutputFacts, restored.OutputFacts)
	assert.Equal(t, env.Optimize, restored.Optimize)
	require.NotNil(t, restored.OwnerID)
	assert.Equal(t, owner, *restored.OwnerID)
}

func TestSealedFileIsOpaque(t *testing.T) {
	t.Parallel()

	sealer := newTestSealer(t)
	path := filepath.Join(t.TempDir(), "model-1")

	require.NoError(t, sealer.Seal(path, &Envelope{ID: "model-1", Bytes: []byte("secret weights")}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret weights")
	assert.NotContains(t, string(raw), "model-1")
}

func TestUnsealCorruptedFile(t *testing.T) {
	t.Parallel()

	sealer := newTestSealer(t)
	path := filepath.Join(t.TempDir(), "model-1")

	require.NoError(t, sealer.Seal(path, &Envelope{ID: "model-1", Bytes: []byte("weights")}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	_, err = sealer.Unseal(path)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategorySealing))
}

func TestUnsealWrongKey(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "model-1")

	sealer := newTestSealer(t)
	require.NoError(t, sealer.Seal(path, &Envelope{ID: "model-1", Bytes: []byte("weights")}))

	other := newTestSealer(t)
	_, err := other.Unseal(path)
	require.Error(t, err)
}

func TestUnsealMissingFile(t *testing.T) {
	t.Parallel()

	sealer := newTestSealer(t)
	_, err := sealer.Unseal(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategorySealing))
}

func TestKeyGeneration(t *testing.T) {
	t.Parallel()

	keyPath := filepath.Join(t.TempDir(), "keys", "sealing.key")

	key, err := GenerateKey(keyPath)
	require.NoError(t, err)
	assert.Len(t, key, keySize)

	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// A sealer constructed from the same path must reuse the key.
	loaded, err := loadOrCreateKey(keyPath)
	require.NoError(t, err)
	assert.Equal(t, key, loaded)
}

func TestLoadKeyRejectsBadContent(t *testing.T) {
	t.Parallel()

	keyPath := filepath.Join(t.TempDir(), "sealing.key")
	require.NoError(t, os.WriteFile(keyPath, []byte("not hex"), 0o600))

	_, err := loadOrCreateKey(keyPath)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(keyPath, []byte("abcd"), 0o600)) // valid hex, wrong length
	_, err = loadOrCreateKey(keyPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "length")
}
