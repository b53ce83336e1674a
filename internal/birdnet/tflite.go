package birdnet

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/klauspost/cpuid/v2"
	tflite "github.com/tphakala/go-tflite"

	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/logger"
)

// Model is a loaded TFLite flatbuffer. The weights are loaded once and shared
// by every interpreter created from it; each interpreter is private to one
// worker.
type Model struct {
	path  string
	data  []byte // backing buffer, must outlive model
	model *tflite.Model
	mu    sync.Mutex
	refs  int
}

// LoadModel reads a TFLite model file.
func LoadModel(path string) (*Model, error) {
	start := time.Now()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryModelLoad).
			ModelContext(path, 0).
			Timing("model-load", time.Since(start)).
			Build()
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, errors.Newf("cannot load TensorFlow Lite model").
			Category(errors.CategoryModelInit).
			ModelContext(path, 0).
			Context("model_size_mb", len(data)/1024/1024).
			Timing("model-init", time.Since(start)).
			Build()
	}

	GetLogger().Info("model loaded",
		logger.String("model", filepath.Base(path)),
		logger.Int("size_kb", len(data)/1024),
		logger.Duration("duration", time.Since(start)))

	return &Model{path: path, data: data, model: model, refs: 1}, nil
}

// Path returns the model file path.
func (m *Model) Path() string { return m.path }

// Close releases the model once every interpreter created from it is closed.
func (m *Model) Close() { m.release() }

func (m *Model) acquire() {
	m.mu.Lock()
	m.refs++
	m.mu.Unlock()
}

func (m *Model) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refs == 0 {
		return
	}
	m.refs--
	if m.refs == 0 && m.model != nil {
		m.model.Delete()
		m.model = nil
		m.data = nil
	}
}

// ThreadCount returns the interpreter thread count for a configured value. Zero
// selects the physical core count, bounded by the logical CPU count.
func ThreadCount(configured int) int {
	cpus := runtime.NumCPU()
	if configured > 0 {
		return min(configured, cpus)
	}
	if cores := cpuid.CPU.PhysicalCores; cores > 0 {
		return min(cores, cpus)
	}
	return cpus
}

// newInterpreter creates and allocates an interpreter over m.
func (m *Model) newInterpreter(threads int, kind string) (*tflite.Interpreter, error) {
	m.mu.Lock()
	model := m.model
	m.mu.Unlock()
	if model == nil {
		return nil, errors.Newf("model already closed").
			Category(errors.CategoryState).
			ModelContext(m.path, 0).
			Build()
	}

	options := tflite.NewInterpreterOptions()
	defer options.Delete()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("model_type", kind), logger.String("message", msg))
	}, nil)

	interp := tflite.NewInterpreter(model, options)
	if interp == nil {
		return nil, errors.Newf("cannot create %s interpreter", kind).
			Category(errors.CategoryModelInit).
			ModelContext(m.path, 0).
			Build()
	}
	if status := interp.AllocateTensors(); status != tflite.OK {
		interp.Delete()
		return nil, errors.Newf("tensor allocation failed: %v", status).
			Category(errors.CategoryModelInit).
			ModelContext(m.path, 0).
			Context("model_type", kind).
			Build()
	}
	m.acquire()
	return interp, nil
}

// TFLiteScorer is an AudioScorer backed by a private TFLite interpreter.
type TFLiteScorer struct {
	model      *Model
	interp     *tflite.Interpreter
	input      *tflite.Tensor
	output     *tflite.Tensor
	inputSize  int
	numClasses int
}

// NewTFLiteScorer creates an audio scorer over a shared model.
func (m *Model) NewTFLiteScorer(threads int) (*TFLiteScorer, error) {
	interp, err := m.newInterpreter(ThreadCount(threads), "audio")
	if err != nil {
		return nil, err
	}

	input := interp.GetInputTensor(0)
	output := interp.GetOutputTensor(0)
	if input == nil || output == nil {
		interp.Delete()
		m.release()
		return nil, errors.Newf("cannot get model tensors").
			Category(errors.CategoryModelInit).
			ModelContext(m.path, 0).
			Build()
	}

	s := &TFLiteScorer{
		model:      m,
		interp:     interp,
		input:      input,
		output:     output,
		inputSize:  input.Dim(input.NumDims() - 1),
		numClasses: output.Dim(output.NumDims() - 1),
	}
	GetLogger().Debug("audio scorer ready",
		logger.Int("input_size", s.inputSize),
		logger.Int("classes", s.numClasses),
		logger.Int("threads", ThreadCount(threads)))
	return s, nil
}

// NewTFLiteScorer loads a model file and creates a single audio scorer that
// owns it.
func NewTFLiteScorer(modelPath string, threads int) (*TFLiteScorer, error) {
	m, err := LoadModel(modelPath)
	if err != nil {
		return nil, err
	}
	defer m.Close()
	return m.NewTFLiteScorer(threads)
}

func (s *TFLiteScorer) NumClasses() int { return s.numClasses }
func (s *TFLiteScorer) InputSize() int  { return s.inputSize }

// Score runs one inference.
func (s *TFLiteScorer) Score(chunk []float32) ([]float32, error) {
	if len(chunk) != s.inputSize {
		return nil, errors.Newf("chunk has %d samples, model expects %d", len(chunk), s.inputSize).
			Category(errors.CategoryValidation).
			Build()
	}
	copy(s.input.Float32s(), chunk)

	if status := s.interp.Invoke(); status != tflite.OK {
		return nil, errors.Newf("tensor invoke failed: %v", status).
			Category(errors.CategoryAudioAnalysis).
			ModelContext(s.model.path, s.numClasses).
			Build()
	}

	out := make([]float32, s.numClasses)
	copy(out, s.output.Float32s())
	return out, nil
}

// Close releases the interpreter.
func (s *TFLiteScorer) Close() {
	if s.interp == nil {
		return
	}
	s.interp.Delete()
	s.interp = nil
	s.model.release()
}

// TFLiteMetaScorer is a MetaScorer backed by the range model.
type TFLiteMetaScorer struct {
	model      *Model
	interp     *tflite.Interpreter
	input      *tflite.Tensor
	output     *tflite.Tensor
	numClasses int
}

// NewTFLiteMetaScorer creates a meta scorer over a shared model. The range
// model is small and runs on a single thread.
func (m *Model) NewTFLiteMetaScorer() (*TFLiteMetaScorer, error) {
	interp, err := m.newInterpreter(1, "meta")
	if err != nil {
		return nil, err
	}

	input := interp.GetInputTensor(0)
	output := interp.GetOutputTensor(0)
	if input == nil || output == nil || len(input.Float32s()) < 3 {
		interp.Delete()
		m.release()
		return nil, errors.Newf("meta model must take [latitude, longitude, week]").
			Category(errors.CategoryModelInit).
			ModelContext(m.path, 0).
			Build()
	}

	return &TFLiteMetaScorer{
		model:      m,
		interp:     interp,
		input:      input,
		output:     output,
		numClasses: output.Dim(output.NumDims() - 1),
	}, nil
}

// NewTFLiteMetaScorer loads a meta model file and creates a scorer owning it.
func NewTFLiteMetaScorer(modelPath string) (*TFLiteMetaScorer, error) {
	m, err := LoadModel(modelPath)
	if err != nil {
		return nil, err
	}
	defer m.Close()
	return m.NewTFLiteMetaScorer()
}

// MetaScorerFactory returns a factory creating scorers over m.
func (m *Model) MetaScorerFactory() MetaScorerFactory {
	return func() (MetaScorer, error) {
		return m.NewTFLiteMetaScorer()
	}
}

func (s *TFLiteMetaScorer) NumClasses() int { return s.numClasses }

// Score evaluates the range model at one place and week.
func (s *TFLiteMetaScorer) Score(latitude, longitude float64, week int) ([]float32, error) {
	copy(s.input.Float32s(), []float32{float32(latitude), float32(longitude), float32(week)})

	if status := s.interp.Invoke(); status != tflite.OK {
		return nil, errors.New(fmt.Errorf("tensor invoke failed: %v", status)).
			Category(errors.CategoryAudioAnalysis).
			Context("model_type", "meta").
			Context("latitude", latitude).
			Context("longitude", longitude).
			Context("week", week).
			Build()
	}

	out := make([]float32, s.numClasses)
	copy(out, s.output.Float32s())
	return out, nil
}

// Close releases the interpreter.
func (s *TFLiteMetaScorer) Close() {
	if s.interp == nil {
		return
	}
	s.interp.Delete()
	s.interp = nil
	s.model.release()
}
