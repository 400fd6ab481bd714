package providers

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

var initMu sync.Mutex

// InitializeEnvironment loads the onnxruntime shared library and prepares the native
// environment. It is safe to call more than once; only the first call loads the library.
//
// Arguments:
//   - libPath: The path to the onnxruntime shared library.
//
// Returns:
//   - error: An error if the library is missing or the environment cannot be created.
func InitializeEnvironment(libPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "onnxruntime library not found at %s", libPath)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing onnxruntime environment")
	}

	log.Debug().Str("library", libPath).Msg("onnxruntime environment initialized")
	return nil
}

// DestroyEnvironment releases the native onnxruntime environment.
func DestroyEnvironment() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// NewSessionOptions creates session options for a provider.
//
// Order of operations:
//  1. Session options: threading, execution mode and graph optimization level.
//  2. Execution provider: CUDA, CoreML or OpenVINO is appended when selected; CPU needs nothing.
//
// **Note: the caller must destroy the returned options.**
//
// Arguments:
//   - provider: The execution provider.
//   - opt: The optimization configuration.
//
// Returns:
//   - *ort.SessionOptions: The configured session options.
//   - error: An error if the options cannot be created or the provider cannot be enabled.
func NewSessionOptions(provider ExecutionProvider, opt OptimizationConfig) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating session options")
	}

	if err := applyOptimization(options, opt); err != nil {
		options.Destroy()
		return nil, err
	}

	if err := appendProvider(options, provider); err != nil {
		options.Destroy()
		return nil, err
	}

	return options, nil
}

func applyOptimization(options *ort.SessionOptions, opt OptimizationConfig) error {
	if err := options.SetIntraOpNumThreads(opt.IntraOpNumThreads); err != nil {
		return errors.Wrap(err, "error setting intra-op threads")
	}
	if err := options.SetInterOpNumThreads(opt.InterOpNumThreads); err != nil {
		return errors.Wrap(err, "error setting inter-op threads")
	}
	if err := options.SetExecutionMode(opt.ExecutionMode); err != nil {
		return errors.Wrap(err, "error setting execution mode")
	}
	if err := options.SetGraphOptimizationLevel(opt.GraphOptimizationLevel); err != nil {
		return errors.Wrap(err, "error setting graph optimization level")
	}
	return nil
}

func appendProvider(options *ort.SessionOptions, provider ExecutionProvider) error {
	if provider == nil {
		return nil
	}

	switch provider.Backend() {
	case CPUProviderBackend:
		return nil
	case CoreMLProviderBackend:
		opts, ok := provider.Options().(CoreMLOptions)
		if !ok {
			return errors.Errorf("invalid options type for CoreML: %T", provider.Options())
		}
		if err := options.AppendExecutionProviderCoreML(opts.Flags()); err != nil {
			return errors.Wrap(err, "error enabling CoreML")
		}
	case CUDAProviderBackend:
		opts, ok := provider.Options().(CUDAOptions)
		if !ok {
			return errors.Errorf("invalid options type for CUDA: %T", provider.Options())
		}
		cuda, err := opts.ToNativeProviderOptions()
		if err != nil {
			return err
		}
		defer cuda.Destroy()

		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return errors.Wrapf(err, "error enabling CUDA on device %d", opts.DeviceID)
		}
	case OpenVINOProviderBackend:
		opts, ok := provider.Options().(OpenVINOOptions)
		if !ok {
			return errors.Errorf("invalid options type for OpenVINO: %T", provider.Options())
		}
		if err := options.AppendExecutionProviderOpenVINO(opts.Map()); err != nil {
			return errors.Wrap(err, "error enabling OpenVINO")
		}
	default:
		return errors.Errorf("unsupported execution provider: %s", provider.Backend())
	}

	log.Info().Str("provider", string(provider.Backend())).Msg("execution provider enabled")
	return nil
}
