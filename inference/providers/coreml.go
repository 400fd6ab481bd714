package providers

const (
	// CoreMLProviderBackend uses Apple CoreML for macOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
)

// CoreML flags, see coreml_provider_factory.h.
const (
	CoreMLFlagUseCPUOnly              uint32 = 0x001
	CoreMLFlagEnableOnSubgraph        uint32 = 0x002
	CoreMLFlagOnlyEnableDeviceWithANE uint32 = 0x004
)

// CoreMLProvider implements the ExecutionProvider interface.
type CoreMLProvider struct {
	options CoreMLOptions
}

// CoreMLOptions contains arguments for the CoreML provider.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
type CoreMLOptions struct {
	// Limit CoreML to running on CPU only.
	UseCPUOnly bool `json:"useCPUOnly" yaml:"useCPUOnly"`
	// Enable CoreML EP to run on a subgraph in the body of a control flow operator.
	EnableOnSubgraphs bool `json:"enableOnSubgraphs" yaml:"enableOnSubgraphs"`
	// Only enable the CoreML EP on devices with an Apple Neural Engine.
	OnlyEnableDeviceWithANE bool `json:"onlyEnableDeviceWithANE" yaml:"onlyEnableDeviceWithANE"`
}

// Flags returns the legacy CoreML provider flag set.
func (o CoreMLOptions) Flags() uint32 {
	var flags uint32
	if o.UseCPUOnly {
		flags |= CoreMLFlagUseCPUOnly
	}
	if o.EnableOnSubgraphs {
		flags |= CoreMLFlagEnableOnSubgraph
	}
	if o.OnlyEnableDeviceWithANE {
		flags |= CoreMLFlagOnlyEnableDeviceWithANE
	}
	return flags
}

func (CoreMLOptions) isProviderOptions() {}

// Backend returns the backend of the CoreML provider.
func (p *CoreMLProvider) Backend() ProviderBackend {
	return CoreMLProviderBackend
}

// Options returns the options of the CoreML provider.
func (p *CoreMLProvider) Options() ProviderOptions {
	return p.options
}

// NewCoreMLProvider creates a new CoreML provider.
func NewCoreMLProvider(options CoreMLOptions) *CoreMLProvider {
	return &CoreMLProvider{
		options: options,
	}
}
