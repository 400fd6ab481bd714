package providers

import "strconv"

const (
	// OpenVINOProviderBackend uses Intel OpenVINO for inference optimization.
	OpenVINOProviderBackend ProviderBackend = "openvino"
)

// OpenVINOOptions contains arguments for the OpenVINO provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
type OpenVINOOptions struct {
	// DeviceType overrides the accelerator hardware type, e.g. CPU, GPU or NPU.
	DeviceType string `json:"deviceType"           yaml:"deviceType"`
	// Precision is one of FP32, FP16 or ACCURACY. Empty keeps the device default.
	Precision string `json:"precision"            yaml:"precision"`
	// NumOfThreads overrides the accelerator thread count when positive.
	NumOfThreads int `json:"numOfThreads"         yaml:"numOfThreads"`
	// NumStreams overrides the accelerator stream count when positive.
	NumStreams int `json:"numStreams"           yaml:"numStreams"`
	// DisableDynamicShapes rewrites dynamic shaped models to static shape at runtime.
	DisableDynamicShapes bool `json:"disableDynamicShapes" yaml:"disableDynamicShapes"`
}

// isProviderOptions is a marker function to ensure the options are valid.
func (OpenVINOOptions) isProviderOptions() {}

// Map returns the provider options in onnxruntime's key/value form. Unset fields are
// omitted so the runtime defaults apply.
func (o OpenVINOOptions) Map() map[string]string {
	m := map[string]string{}
	if o.DeviceType != "" {
		m["device_type"] = o.DeviceType
	}
	if o.Precision != "" {
		m["precision"] = o.Precision
	}
	if o.NumOfThreads > 0 {
		m["num_of_threads"] = strconv.Itoa(o.NumOfThreads)
	}
	if o.NumStreams > 0 {
		m["num_streams"] = strconv.Itoa(o.NumStreams)
	}
	if o.DisableDynamicShapes {
		m["disable_dynamic_shapes"] = "true"
	}
	return m
}

// OpenVINOProvider implements the ExecutionProvider interface.
type OpenVINOProvider struct {
	options OpenVINOOptions
}

// NewOpenVINOProvider creates a new OpenVINO provider.
func NewOpenVINOProvider(args OpenVINOOptions) *OpenVINOProvider {
	return &OpenVINOProvider{options: args}
}

// Backend returns the backend of the OpenVINO provider.
func (p *OpenVINOProvider) Backend() ProviderBackend {
	return OpenVINOProviderBackend
}

// Options returns the options of the OpenVINO provider.
func (p *OpenVINOProvider) Options() ProviderOptions {
	return p.options
}
