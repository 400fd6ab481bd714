package providers

const (
	// CPUProviderBackend runs the graph on the default CPU provider.
	CPUProviderBackend ProviderBackend = "cpu"
)

// CPUOptions contains arguments for the CPU provider. The CPU provider is always registered by
// onnxruntime, so there is nothing to configure beyond the session-level threading.
type CPUOptions struct{}

func (CPUOptions) isProviderOptions() {}

// CPUProvider implements the ExecutionProvider interface.
type CPUProvider struct {
	options CPUOptions
}

// Backend returns the backend of the CPU provider.
func (p *CPUProvider) Backend() ProviderBackend {
	return CPUProviderBackend
}

// Options returns the options of the CPU provider.
func (p *CPUProvider) Options() ProviderOptions {
	return p.options
}

// NewCPUProvider creates a new CPU provider.
func NewCPUProvider(options CPUOptions) *CPUProvider {
	return &CPUProvider{options: options}
}
