package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForDevice(t *testing.T) {
	cpu := ForDevice(-1)
	assert.Equal(t, CPUOptions{}, cpu.Options)

	gpu := ForDevice(2)
	require.IsType(t, CUDAOptions{}, gpu.Options)
	assert.Equal(t, 2, gpu.Options.(CUDAOptions).DeviceID)
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		options ProviderOptions
		backend ProviderBackend
	}{
		{name: "default", options: nil, backend: CPUProviderBackend},
		{name: "cpu", options: CPUOptions{}, backend: CPUProviderBackend},
		{name: "cuda", options: CUDAOptions{DeviceID: 1}, backend: CUDAProviderBackend},
		{name: "coreml", options: CoreMLOptions{}, backend: CoreMLProviderBackend},
		{name: "openvino", options: OpenVINOOptions{DeviceType: "CPU"}, backend: OpenVINOProviderBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.options)
			require.NoError(t, err)
			assert.Equal(t, tt.backend, p.Backend())
		})
	}
}

func TestCUDAOptionsMap(t *testing.T) {
	m := CUDAOptions{DeviceID: 3}.Map()
	assert.Equal(t, map[string]string{"device_id": "3"}, m)

	m = CUDAOptions{
		DeviceID:            0,
		GPUMemLimit:         1 << 30,
		CudnnConvAlgoSearch: "HEURISTIC",
		PreferNHWC:          true,
	}.Map()
	assert.Equal(t, "0", m["device_id"])
	assert.Equal(t, "1073741824", m["gpu_mem_limit"])
	assert.Equal(t, "HEURISTIC", m["cudnn_conv_algo_search"])
	assert.Equal(t, "1", m["prefer_nhwc"])
	assert.NotContains(t, m, "arena_extend_strategy")
}

func TestCoreMLFlags(t *testing.T) {
	assert.Equal(t, uint32(0), CoreMLOptions{}.Flags())
	assert.Equal(t, CoreMLFlagUseCPUOnly|CoreMLFlagOnlyEnableDeviceWithANE,
		CoreMLOptions{UseCPUOnly: true, OnlyEnableDeviceWithANE: true}.Flags())
}

func TestSharedLibPath(t *testing.T) {
	assert.Equal(t, "/opt/ort/libonnxruntime.so", SharedLibPath("/opt/ort/libonnxruntime.so"))

	t.Setenv(SharedLibEnv, "/env/libonnxruntime.so")
	assert.Equal(t, "/env/libonnxruntime.so", SharedLibPath(""))

	t.Setenv(SharedLibEnv, "")
	assert.NotEmpty(t, SharedLibPath(""))
}

func TestOpenVINOMap(t *testing.T) {
	assert.Empty(t, OpenVINOOptions{}.Map())

	m := OpenVINOOptions{
		DeviceType:           "GPU",
		Precision:            "FP16",
		NumOfThreads:         4,
		NumStreams:           2,
		DisableDynamicShapes: true,
	}.Map()
	assert.Equal(t, map[string]string{
		"device_type":            "GPU",
		"precision":              "FP16",
		"num_of_threads":         "4",
		"num_streams":            "2",
		"disable_dynamic_shapes": "true",
	}, m)
}
