package providers

import (
	"os"
	"runtime"
)

// SharedLibEnv is the environment variable that overrides the onnxruntime library location.
const SharedLibEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// SharedLibPath returns the path to the onnxruntime shared library.
//
// Arguments:
//   - override: A path that wins over every default when not empty.
//
// Returns:
//   - string: The path to the shared library.
func SharedLibPath(override string) string {
	if override != "" {
		return override
	}
	if env := os.Getenv(SharedLibEnv); env != "" {
		return env
	}

	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.1.21.0.dylib"
	default:
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
}
