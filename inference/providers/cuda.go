package providers

import (
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// CUDAProviderBackend uses NVIDIA CUDA for inference.
	CUDAProviderBackend ProviderBackend = "cuda"
)

// CUDAProvider implements the ExecutionProvider interface.
type CUDAProvider struct {
	options CUDAOptions
}

// CUDAOptions contains arguments for the CUDA provider. Zero values leave the onnxruntime
// default in place.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// The device ID.
	DeviceID int `json:"deviceID" yaml:"deviceID"`
	// The size limit of the device memory arena in bytes.
	GPUMemLimit int64 `json:"gpuMemLimit" yaml:"gpuMemLimit"`
	// The strategy for extending the device memory arena: kNextPowerOfTwo or kSameAsRequested.
	ArenaExtendStrategy string `json:"arenaExtendStrategy" yaml:"arenaExtendStrategy"`
	// The type of search done for cuDNN convolution algorithms: EXHAUSTIVE, HEURISTIC or
	// DEFAULT.
	CudnnConvAlgoSearch string `json:"cudnnConvAlgoSearch" yaml:"cudnnConvAlgoSearch"`
	// Whether to do copies in the default stream or use separate streams.
	DoCopyInDefaultStream bool `json:"doCopyInDefaultStream" yaml:"doCopyInDefaultStream"`
	// Prefer NHWC operators over NCHW. The evaluated batches are NHWC already.
	PreferNHWC bool `json:"preferNHWC" yaml:"preferNHWC"`
}

// Map converts the options to the onnxruntime key/value form.
//
// Returns:
//   - map[string]string: The non-default options keyed by their onnxruntime names.
func (o CUDAOptions) Map() map[string]string {
	m := map[string]string{
		"device_id": strconv.Itoa(o.DeviceID),
	}
	if o.GPUMemLimit > 0 {
		m["gpu_mem_limit"] = strconv.FormatInt(o.GPUMemLimit, 10)
	}
	if o.ArenaExtendStrategy != "" {
		m["arena_extend_strategy"] = o.ArenaExtendStrategy
	}
	if o.CudnnConvAlgoSearch != "" {
		m["cudnn_conv_algo_search"] = o.CudnnConvAlgoSearch
	}
	if o.DoCopyInDefaultStream {
		m["do_copy_in_default_stream"] = "1"
	}
	if o.PreferNHWC {
		m["prefer_nhwc"] = "1"
	}
	return m
}

// ToNativeProviderOptions converts the CUDA options to onnxruntime CUDA provider options.
// The caller must destroy the returned options.
func (o CUDAOptions) ToNativeProviderOptions() (*ort.CUDAProviderOptions, error) {
	opts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating CUDA provider options")
	}

	if err := opts.Update(o.Map()); err != nil {
		opts.Destroy()
		return nil, errors.Wrap(err, "error updating CUDA provider options")
	}

	return opts, nil
}

func (CUDAOptions) isProviderOptions() {}

// Backend returns the backend of the CUDA provider.
func (p *CUDAProvider) Backend() ProviderBackend {
	return CUDAProviderBackend
}

// Options returns the options of the CUDA provider.
func (p *CUDAProvider) Options() ProviderOptions {
	return p.options
}

// NewCUDAProvider creates a new CUDA provider.
func NewCUDAProvider(args CUDAOptions) *CUDAProvider {
	return &CUDAProvider{
		options: args,
	}
}
