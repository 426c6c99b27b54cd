// Package model defines the loaded model record, the tensor fact
// descriptors, and the model-load collaborator consumed by the store.
package model

import "crypto/sha256"

// LoadContext records why a model is being inserted into the store.
type LoadContext int

const (
	// LoadFromUpload marks a model freshly uploaded by a caller.
	LoadFromUpload LoadContext = iota
	// LoadFromSealed marks a model restored from sealed storage at startup.
	LoadFromSealed
	// LoadFromStartupConfig marks a model preloaded from static configuration.
	LoadFromStartupConfig
)

func (c LoadContext) String() string {
	switch c {
	case LoadFromUpload:
		return "upload"
	case LoadFromSealed:
		return "sealed-restore"
	case LoadFromStartupConfig:
		return "startup-config"
	default:
		return "unknown"
	}
}

// Artifact is the parsed, executable representation of a model. Producing
// one is expensive; sharing one between records is cheap. Implementations
// must be safe for concurrent readers.
type Artifact interface {
	// InputCount returns the number of input tensors of the parsed graph.
	InputCount() int
	// OutputCount returns the number of output tensors of the parsed graph.
	OutputCount() int
}

// Meta carries the identity and load parameters for a model being parsed.
type Meta struct {
	ID          string
	Name        string
	Hash        [sha256.Size]byte
	InputFacts  []TensorFact
	OutputFacts []TensorFact
	Optimize    bool
	Context     LoadContext
	OwnerID     *int
}

// InferModel is a loaded, addressable inference artifact. Records are
// immutable after construction; any change of ownership or content is a
// replacement, never an edit.
type InferModel struct {
	id          string
	name        string
	hash        [sha256.Size]byte
	ownerID     *int
	inputFacts  []TensorFact
	outputFacts []TensorFact
	context     LoadContext
	artifact    Artifact
}

// NewInferModel builds a record around a freshly parsed artifact.
func NewInferModel(meta *Meta, artifact Artifact) *InferModel {
	return &InferModel{
		id:          meta.ID,
		name:        meta.Name,
		hash:        meta.Hash,
		ownerID:     meta.OwnerID,
		inputFacts:  meta.InputFacts,
		outputFacts: meta.OutputFacts,
		context:     meta.Context,
		artifact:    artifact,
	}
}

// Reuse wraps an already-parsed artifact under a new identity. It is cheap
// and cannot fail; the artifact is shared, not copied.
func Reuse(artifact Artifact, meta *Meta) *InferModel {
	return NewInferModel(meta, artifact)
}

func (m *InferModel) ID() string                     { return m.id }
func (m *InferModel) Name() string                   { return m.name }
func (m *InferModel) ContentHash() [sha256.Size]byte { return m.hash }
func (m *InferModel) OwnerID() *int                  { return m.ownerID }
func (m *InferModel) InputFacts() []TensorFact       { return m.inputFacts }
func (m *InferModel) OutputFacts() []TensorFact      { return m.outputFacts }
func (m *InferModel) Context() LoadContext           { return m.context }
func (m *InferModel) Artifact() Artifact             { return m.artifact }

// Loader is the model-load collaborator: it turns raw bytes or a filesystem
// path into a parsed inference artifact wrapped in a record, and re-wraps
// existing artifacts under new identities.
type Loader interface {
	// Load parses raw model bytes. This may be computationally expensive.
	Load(modelBytes []byte, meta *Meta) (*InferModel, error)
	// LoadFromPath parses a model file. The content hash in meta is
	// ignored; the loader computes it from the file contents.
	LoadFromPath(path string, meta *Meta) (*InferModel, error)
}
