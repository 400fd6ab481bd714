package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nvr-ai/go-ml-eval/images"
	"github.com/pkg/errors"
)

// CIFAR-10 binary layout: every record is a label byte followed by a 32x32 image stored
// channel-major (1024 red, 1024 green, 1024 blue bytes).
const (
	CIFARSide       = 32
	CIFARTrainFiles = 5

	cifarPixels = CIFARSide * CIFARSide
	cifarImage  = cifarPixels * images.Depth
	cifarRecord = 1 + cifarImage
)

// CIFARTrainPath returns the path of training batch i (1-based) in dir.
func CIFARTrainPath(dir string, i int) string {
	return filepath.Join(dir, fmt.Sprintf("data_batch_%d.bin", i))
}

// LoadCIFAR10 reads the CIFAR-10 training split from data_batch_1.bin to data_batch_5.bin.
//
// Arguments:
//   - dir: The cifar-10-batches-bin directory.
//
// Returns:
//   - *images.Batch: The images, NHWC in [0, 255].
//   - []uint8: The class labels.
//   - error: An error if a file is missing or truncated.
func LoadCIFAR10(dir string) (*images.Batch, []uint8, error) {
	var pixels []uint8
	var labels []uint8

	for i := 1; i <= CIFARTrainFiles; i++ {
		path := CIFARTrainPath(dir, i)
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, errors.Wrap(err, "error reading CIFAR-10 batch")
		}
		if len(raw)%cifarRecord != 0 {
			return nil, nil, errors.Errorf("%s holds %d bytes, not a multiple of the %d byte record",
				path, len(raw), cifarRecord)
		}

		pixels, labels = appendCIFARRecords(pixels, labels, raw)
	}

	batch, err := images.FromUint8(pixels, len(labels), CIFARSide, CIFARSide, images.Depth)
	if err != nil {
		return nil, nil, err
	}
	return batch, labels, nil
}

// ReadCIFAR10 decodes CIFAR-10 records from a reader.
func ReadCIFAR10(r io.Reader) (*images.Batch, []uint8, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, "error reading CIFAR-10 records")
	}
	if len(raw)%cifarRecord != 0 {
		return nil, nil, errors.Errorf("%d bytes is not a multiple of the %d byte record", len(raw), cifarRecord)
	}

	pixels, labels := appendCIFARRecords(nil, nil, raw)
	batch, err := images.FromUint8(pixels, len(labels), CIFARSide, CIFARSide, images.Depth)
	if err != nil {
		return nil, nil, err
	}
	return batch, labels, nil
}

// appendCIFARRecords converts channel-major records to interleaved RGB pixels.
func appendCIFARRecords(pixels, labels, raw []uint8) ([]uint8, []uint8) {
	for off := 0; off < len(raw); off += cifarRecord {
		labels = append(labels, raw[off])
		img := raw[off+1 : off+cifarRecord]
		for p := 0; p < cifarPixels; p++ {
			pixels = append(pixels, img[p], img[cifarPixels+p], img[2*cifarPixels+p])
		}
	}
	return pixels, labels
}
