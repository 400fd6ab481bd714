// Package dataset - Loading of generated checkpoints and of the reference image population.
package dataset

import (
	"os"
	"path/filepath"

	"github.com/nvr-ai/go-ml-eval/images"
	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
)

// LoadNPY reads an (N, H, W, C) image array saved with numpy.save.
//
// Supported element types are uint8, float32 and float64, little-endian and C-ordered.
//
// Arguments:
//   - path: The .npy file.
//
// Returns:
//   - *images.Batch: The images as float32, values unchanged.
//   - error: An error if the file cannot be read or is not a 4-D array.
func LoadNPY(path string) (*images.Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening image array")
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading npy header of %s", path)
	}

	descr := r.Header.Descr
	if descr.Fortran {
		return nil, errors.Errorf("%s is Fortran ordered", path)
	}
	if len(descr.Shape) != 4 {
		return nil, errors.Errorf("%s has shape %v, want (N, H, W, C)", path, descr.Shape)
	}
	n, h, w, c := descr.Shape[0], descr.Shape[1], descr.Shape[2], descr.Shape[3]
	size := n * h * w * c

	switch descr.Type {
	case "|u1", "<u1":
		data := make([]uint8, size)
		if err := r.Read(&data); err != nil {
			return nil, errors.Wrapf(err, "error reading %s", path)
		}
		return images.FromUint8(data, n, h, w, c)
	case "<f4":
		data := make([]float32, size)
		if err := r.Read(&data); err != nil {
			return nil, errors.Wrapf(err, "error reading %s", path)
		}
		return images.NewBatch(data, n, h, w, c)
	case "<f8":
		data := make([]float64, size)
		if err := r.Read(&data); err != nil {
			return nil, errors.Wrapf(err, "error reading %s", path)
		}
		return images.FromFloat64(data, n, h, w, c)
	default:
		return nil, errors.Errorf("unsupported dtype %q in %s", descr.Type, path)
	}
}

// LoadReference loads the reference population from a CIFAR-10 binary directory or a .npy
// image array.
func LoadReference(path string) (*images.Batch, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "reference dataset not found")
	}

	if info.IsDir() {
		batch, _, err := LoadCIFAR10(path)
		return batch, err
	}
	if filepath.Ext(path) != ".npy" {
		return nil, errors.Errorf("unsupported reference dataset %s", path)
	}
	return LoadNPY(path)
}
