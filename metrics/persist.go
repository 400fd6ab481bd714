package metrics

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// File names of a saved Gaussian.
const (
	MeanFile       = "mu.npy"
	CovarianceFile = "sigma.npy"
)

// SaveGaussian writes the mean and covariance to dir as mu.npy and sigma.npy.
func SaveGaussian(dir string, g *Gaussian) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "error creating %s", dir)
	}

	if err := writeNPY(filepath.Join(dir, MeanFile), g.Mean); err != nil {
		return err
	}
	return writeNPY(filepath.Join(dir, CovarianceFile), mat.DenseCopyOf(g.Cov))
}

// LoadGaussian reads a Gaussian written by SaveGaussian.
//
// Returns:
//   - *Gaussian: The statistics.
//   - error: An error if a file is missing or the shapes do not match.
func LoadGaussian(dir string) (*Gaussian, error) {
	mean, meanShape, err := readNPY(filepath.Join(dir, MeanFile))
	if err != nil {
		return nil, err
	}
	cov, covShape, err := readNPY(filepath.Join(dir, CovarianceFile))
	if err != nil {
		return nil, err
	}

	n := len(mean)
	if len(meanShape) != 1 || len(covShape) != 2 || covShape[0] != n || covShape[1] != n {
		return nil, errors.Wrapf(ErrShapeMismatch, "mean of shape %v with covariance of shape %v", meanShape, covShape)
	}

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, cov[i*n+j])
		}
	}
	return &Gaussian{Mean: mean, Cov: sym}, nil
}

func writeNPY(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "error creating %s", path)
	}
	defer f.Close()

	if err := npyio.Write(f, v); err != nil {
		return errors.Wrapf(err, "error writing %s", path)
	}
	return f.Close()
}

// readNPY reads a little-endian float64 array and its shape.
func readNPY(path string) ([]float64, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "error opening %s", path)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "error reading npy header of %s", path)
	}
	if r.Header.Descr.Type != "<f8" || r.Header.Descr.Fortran {
		return nil, nil, errors.Errorf("%s must hold a C-ordered float64 array, got %q", path, r.Header.Descr.Type)
	}

	var data []float64
	if err := r.Read(&data); err != nil {
		return nil, nil, errors.Wrapf(err, "error reading %s", path)
	}
	return data, r.Header.Descr.Shape, nil
}
