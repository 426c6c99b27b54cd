// tflite.go TensorFlow Lite implementation of the model-load collaborator
package model

import (
	"crypto/sha256"
	"fmt"
	"os"
	"runtime"
	"time"

	tflite "github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/shroudml/shroud-go/internal/errors"
)

// TFLiteArtifact is a parsed TensorFlow Lite graph with an allocated
// interpreter. The interpreter is shared between all records that
// deduplicate to the same content hash.
type TFLiteArtifact struct {
	model       *tflite.Model
	interpreter *tflite.Interpreter
}

func (a *TFLiteArtifact) InputCount() int {
	return a.interpreter.GetInputTensorCount()
}

func (a *TFLiteArtifact) OutputCount() int {
	return a.interpreter.GetOutputTensorCount()
}

// Interpreter exposes the underlying interpreter to the inference engine.
func (a *TFLiteArtifact) Interpreter() *tflite.Interpreter {
	return a.interpreter
}

// TFLiteLoader parses model bytes with the TensorFlow Lite C library.
type TFLiteLoader struct {
	// Threads is the interpreter thread count, 0 to use all CPUs.
	Threads int
}

// NewTFLiteLoader returns a loader with the given interpreter thread count.
func NewTFLiteLoader(threads int) *TFLiteLoader {
	return &TFLiteLoader{Threads: threads}
}

// Load parses raw model bytes into an executable artifact.
func (l *TFLiteLoader) Load(modelBytes []byte, meta *Meta) (*InferModel, error) {
	start := time.Now()

	tfliteModel := tflite.NewModel(modelBytes)
	if tfliteModel == nil {
		return nil, errors.Newf("cannot parse TensorFlow Lite model").
			Component("model").
			Category(errors.CategoryModelLoad).
			ModelContext(meta.ID, meta.OwnerID).
			Context("model_size_bytes", len(modelBytes)).
			Build()
	}

	threads := l.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	options := tflite.NewInterpreterOptions()
	if meta.Optimize {
		// XNNPACK gives optimized CPU kernels; fall back to the default
		// kernels when the delegate is unavailable on this platform.
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))}) //nolint:gosec // G115: thread count bounded by CPU count, safe conversion
		if delegate == nil {
			getLogger().Warn("failed to create XNNPACK delegate, using default CPU kernels",
				"model_id", meta.ID)
			options.SetNumThread(threads)
		} else {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(threads)
	}

	options.SetErrorReporter(func(msg string, userData any) {
		getLogger().Error("TFLite error", "message", msg)
	}, nil)

	interpreter := tflite.NewInterpreter(tfliteModel, options)
	if interpreter == nil {
		return nil, errors.Newf("cannot create TensorFlow Lite interpreter").
			Component("model").
			Category(errors.CategoryModelLoad).
			ModelContext(meta.ID, meta.OwnerID).
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		return nil, errors.Newf("tensor allocation failed").
			Component("model").
			Category(errors.CategoryModelLoad).
			ModelContext(meta.ID, meta.OwnerID).
			Build()
	}

	artifact := &TFLiteArtifact{model: tfliteModel, interpreter: interpreter}

	if err := validateFacts(artifact, meta); err != nil {
		return nil, err
	}

	getLogger().Info("model parsed",
		"model_id", meta.ID,
		"provenance", meta.Context.String(),
		"inputs", artifact.InputCount(),
		"outputs", artifact.OutputCount(),
		"duration_ms", time.Since(start).Milliseconds())

	return NewInferModel(meta, artifact), nil
}

// LoadFromPath parses a model file, computing the content hash from the
// file contents.
func (l *TFLiteLoader) LoadFromPath(path string, meta *Meta) (*InferModel, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator configuration
	if err != nil {
		return nil, errors.New(fmt.Errorf("reading model file: %w", err)).
			Component("model").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	fileMeta := *meta
	fileMeta.Hash = sha256.Sum256(data)
	return l.Load(data, &fileMeta)
}

// validateFacts checks declared tensor facts against the parsed graph.
func validateFacts(artifact Artifact, meta *Meta) error {
	if n := len(meta.InputFacts); n > 0 && n != artifact.InputCount() {
		return errors.Newf("model declares %d input facts but graph has %d inputs", n, artifact.InputCount()).
			Component("model").
			Category(errors.CategoryModelLoad).
			ModelContext(meta.ID, meta.OwnerID).
			Build()
	}
	if n := len(meta.OutputFacts); n > 0 && n != artifact.OutputCount() {
		return errors.Newf("model declares %d output facts but graph has %d outputs", n, artifact.OutputCount()).
			Component("model").
			Category(errors.CategoryModelLoad).
			ModelContext(meta.ID, meta.OwnerID).
			Build()
	}
	return nil
}
