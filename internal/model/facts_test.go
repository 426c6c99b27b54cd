package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shroudml/shroud-go/internal/conf"
	"github.com/shroudml/shroud-go/internal/errors"
)

func TestParseDatumType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    DatumType
		wantErr bool
	}{
		{input: "f32", want: DatumF32},
		{input: "F32", want: DatumF32},
		{input: " f64 ", want: DatumF64},
		{input: "i8", want: DatumI8},
		{input: "I64", want: DatumI64},
		{input: "u8", want: DatumU8},
		{input: "u64", want: DatumU64},
		{input: "bool", want: DatumBool},
		{input: "float32", wantErr: true},
		{input: "", wantErr: true},
		{input: "f16", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := ParseDatumType(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.HasCategory(err, errors.CategoryModelLoad))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTranslateFacts(t *testing.T) {
	t.Parallel()

	dt := "f32"
	idx := 0
	name := "input_1"

	facts, err := TranslateFacts([]conf.ModelFactConfig{
		{DatumType: &dt, Dims: []int{1, 3, 224, 224}, Index: &idx, IndexName: &name},
		{Dims: []int{1, 1000}},
	})
	require.NoError(t, err)
	require.Len(t, facts, 2)

	require.NotNil(t, facts[0].DatumType)
	assert.Equal(t, DatumF32, *facts[0].DatumType)
	assert.Equal(t, []int{1, 3, 224, 224}, facts[0].Dims)
	assert.Equal(t, &idx, facts[0].Index)
	assert.Equal(t, &name, facts[0].IndexName)

	assert.Nil(t, facts[1].DatumType, "datum type is optional")
	assert.Equal(t, []int{1, 1000}, facts[1].Dims)
}

func TestTranslateFactsBadDatumType(t *testing.T) {
	t.Parallel()

	dt := "quaternion"
	_, err := TranslateFacts([]conf.ModelFactConfig{{DatumType: &dt}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quaternion")
}

func TestReuseSharesArtifact(t *testing.T) {
	t.Parallel()

	artifact := &stubArtifact{inputs: 2, outputs: 1}
	meta := &Meta{ID: "original", Name: "resnet", Context: LoadFromUpload}
	original := NewInferModel(meta, artifact)

	owner := 42
	rewrapped := Reuse(artifact, &Meta{
		ID:      "copy",
		Name:    "resnet-copy",
		Hash:    meta.Hash,
		Context: LoadFromUpload,
		OwnerID: &owner,
	})

	assert.Same(t, original.Artifact(), rewrapped.Artifact(), "artifact must be shared, not copied")
	assert.Equal(t, "copy", rewrapped.ID())
	assert.Equal(t, "resnet-copy", rewrapped.Name())
	assert.Equal(t, LoadFromUpload, rewrapped.Context())
	require.NotNil(t, rewrapped.OwnerID())
	assert.Equal(t, 42, *rewrapped.OwnerID())
}

func TestLoadContextString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "upload", LoadFromUpload.String())
	assert.Equal(t, "sealed-restore", LoadFromSealed.String())
	assert.Equal(t, "startup-config", LoadFromStartupConfig.String())
	assert.Equal(t, "unknown", LoadContext(99).String())
}

// stubArtifact stands in for a parsed graph in tests.
type stubArtifact struct {
	inputs  int
	outputs int
}

func (s *stubArtifact) InputCount() int  { return s.inputs }
func (s *stubArtifact) OutputCount() int { return s.outputs }
