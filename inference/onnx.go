package inference

import (
	"context"
	"os"

	"github.com/nvr-ai/go-ml-eval/inference/providers"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"
)

// Default graph node names of the exported Inception network.
const (
	DefaultEmbeddingOutput   = "pool_3"
	DefaultProbabilityOutput = "softmax"
)

// ModelConfig describes the ONNX graph to load.
type ModelConfig struct {
	// Path is the ONNX model file.
	Path string `json:"path" yaml:"path"`
	// Input is the image input name. Empty selects the first graph input.
	Input string `json:"input" yaml:"input"`
	// EmbeddingOutput is the pooled embedding output.
	EmbeddingOutput string `json:"embedding_output" yaml:"embedding_output"`
	// ProbabilityOutput is the class-probability output. Optional.
	ProbabilityOutput string `json:"probability_output" yaml:"probability_output"`
	// LogitsOutput is a logits output to which softmax is applied. Used only when
	// ProbabilityOutput is empty.
	LogitsOutput string `json:"logits_output" yaml:"logits_output"`
	// SharedLibrary overrides the onnxruntime shared library location.
	SharedLibrary string `json:"shared_library" yaml:"shared_library"`
}

// ONNXModel runs a frozen classification network through onnxruntime.
type ONNXModel struct {
	session *ProfiledSession
	head    *SoftmaxHead
	cfg     ModelConfig
	// probIndex and logitsIndex are positions in the output list, -1 when absent.
	probIndex   int
	logitsIndex int
}

// NewONNXModel loads the graph and creates its session.
//
// Order of operations:
//  1. Environment: loads the onnxruntime shared library once per process.
//  2. Graph inspection: resolves the input name and checks the configured outputs exist.
//  3. Session: a dynamic-shape session so the batch size is chosen at call time.
//
// Arguments:
//   - provider: The execution provider.
//   - cfg: The model configuration.
//   - opt: The optimization configuration.
//   - head: A softmax head, required when the graph exposes neither probabilities nor logits.
//
// Returns:
//   - *ONNXModel: The loaded model.
//   - error: An error if the library or model is missing or malformed.
func NewONNXModel(
	provider providers.ExecutionProvider,
	cfg ModelConfig,
	opt providers.OptimizationConfig,
	head *SoftmaxHead,
) (*ONNXModel, error) {
	if cfg.EmbeddingOutput == "" {
		cfg.EmbeddingOutput = DefaultEmbeddingOutput
	}
	if cfg.ProbabilityOutput == "" && cfg.LogitsOutput == "" && head == nil {
		return nil, errors.New("model has no probability output, logits output or softmax head")
	}

	if err := providers.InitializeEnvironment(providers.SharedLibPath(cfg.SharedLibrary)); err != nil {
		return nil, err
	}

	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, errors.Wrap(err, "model file not found")
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "error inspecting model %s", cfg.Path)
	}
	if len(inputs) == 0 {
		return nil, errors.Errorf("model %s has no inputs", cfg.Path)
	}
	if cfg.Input == "" {
		cfg.Input = inputs[0].Name
	}

	available := make(map[string]bool, len(outputs))
	for _, o := range outputs {
		available[o.Name] = true
	}

	m := &ONNXModel{head: head, cfg: cfg, probIndex: -1, logitsIndex: -1}
	names := []string{cfg.EmbeddingOutput}
	switch {
	case cfg.ProbabilityOutput != "":
		m.probIndex = len(names)
		names = append(names, cfg.ProbabilityOutput)
	case cfg.LogitsOutput != "":
		m.logitsIndex = len(names)
		names = append(names, cfg.LogitsOutput)
	}
	for _, name := range names {
		if !available[name] {
			return nil, errors.Errorf("model %s has no output named %q", cfg.Path, name)
		}
	}

	session, err := NewProfiledSession(cfg.Path, []string{cfg.Input}, names, provider, opt)
	if err != nil {
		return nil, err
	}
	m.session = session

	log.Info().
		Str("model", cfg.Path).
		Str("input", cfg.Input).
		Strs("outputs", names).
		Bool("softmax_head", m.probIndex < 0 && m.logitsIndex < 0).
		Msg("model loaded")

	return m, nil
}

// Session returns the profiled session, e.g. to register it with the runtime profiler.
func (m *ONNXModel) Session() *ProfiledSession {
	return m.session
}

// Infer runs the network on an (n, height, width, 3) float32 batch.
func (m *ONNXModel) Infer(ctx context.Context, batch *tensor.Dense) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, ok := batch.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("model input must be float32, got %v", batch.Dtype())
	}
	shape := batch.Shape()
	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}

	input, err := ort.NewTensor(ort.NewShape(dims...), data)
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	defer input.Destroy()

	size := 1
	if m.probIndex >= 0 || m.logitsIndex >= 0 {
		size = 2
	}
	outputs := make([]ort.Value, size)
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	if err := m.session.Run([]ort.Value{input}, outputs, shape[0]); err != nil {
		return nil, err
	}

	embeddings, err := toDense(outputs[0])
	if err != nil {
		return nil, errors.Wrapf(err, "output %s", m.cfg.EmbeddingOutput)
	}

	var probabilities *tensor.Dense
	switch {
	case m.probIndex >= 0:
		probabilities, err = toDense(outputs[m.probIndex])
		if err != nil {
			return nil, errors.Wrapf(err, "output %s", m.cfg.ProbabilityOutput)
		}
	case m.logitsIndex >= 0:
		logits, err := toDense(outputs[m.logitsIndex])
		if err != nil {
			return nil, errors.Wrapf(err, "output %s", m.cfg.LogitsOutput)
		}
		probabilities, err = softmaxRows(logits)
		if err != nil {
			return nil, err
		}
	default:
		probabilities, err = m.head.Forward(embeddings)
		if err != nil {
			return nil, err
		}
	}

	return &Output{Embeddings: embeddings, Probabilities: probabilities}, nil
}

// Close releases the session.
func (m *ONNXModel) Close() error {
	if m.session == nil {
		return nil
	}
	return m.session.Destroy()
}

// toDense copies an onnxruntime float32 output into a Go-owned tensor.
func toDense(v ort.Value) (*tensor.Dense, error) {
	t, ok := v.(*ort.Tensor[float32])
	if !ok {
		return nil, errors.Errorf("expected a float32 tensor, got %T", v)
	}

	src := t.GetData()
	data := make([]float32, len(src))
	copy(data, src)

	shape := t.GetShape()
	dims := make([]int, len(shape))
	for i, d := range shape {
		dims[i] = int(d)
	}
	if len(dims) == 0 {
		dims = []int{len(data)}
	}

	return tensor.New(tensor.WithShape(dims...), tensor.WithBacking(data)), nil
}

// softmaxRows turns (n, ..., classes) logits into (n, classes) probabilities.
func softmaxRows(logits *tensor.Dense) (*tensor.Dense, error) {
	shape := logits.Shape()
	n := shape[0]
	if n == 0 {
		return nil, errors.New("empty logits output")
	}
	classes := shape.TotalSize() / n

	probs, err := Softmax32(logits.Data().([]float32), classes)
	if err != nil {
		return nil, err
	}
	return tensor.New(tensor.WithShape(n, classes), tensor.WithBacking(probs)), nil
}
