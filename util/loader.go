// Package util - Checkpoint schedule and discovery of generated image arrays.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	// GeneratedDir is the sub directory of the results directory holding the checkpoints.
	GeneratedDir = "gen_imgs"
	// ScoresFile is the name of the score table written next to the checkpoints.
	ScoresFile = "score_results.csv"

	checkpointPrefix = "iter"
	checkpointExt    = ".npy"
)

// Schedule is an inclusive range of training iterations.
type Schedule struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end"   yaml:"end"`
	Step  int `json:"step"  yaml:"step"`
}

// DefaultSchedule is every 1000 iterations from 1000 to 50000.
func DefaultSchedule() Schedule {
	return Schedule{Start: 1000, End: 50000, Step: 1000}
}

// Iterations returns the scheduled iterations in ascending order.
func (s Schedule) Iterations() []int {
	if s.Step <= 0 || s.End < s.Start {
		return nil
	}
	its := make([]int, 0, (s.End-s.Start)/s.Step+1)
	for it := s.Start; it <= s.End; it += s.Step {
		its = append(its, it)
	}
	return its
}

// Checkpoint is a generated image array saved at a training iteration.
type Checkpoint struct {
	// Iteration is the training iteration.
	Iteration int
	// Path is the .npy file.
	Path string
}

// CheckpointPath returns <resultsDir>/gen_imgs/iter<iteration>.npy.
func CheckpointPath(resultsDir string, iteration int) string {
	return filepath.Join(resultsDir, GeneratedDir, fmt.Sprintf("%s%d%s", checkpointPrefix, iteration, checkpointExt))
}

// ScoresPath returns <resultsDir>/gen_imgs/score_results.csv.
func ScoresPath(resultsDir string) string {
	return filepath.Join(resultsDir, GeneratedDir, ScoresFile)
}

// DiscoverCheckpoints returns the scheduled checkpoints that exist on disk.
//
// Missing files are skipped without error.
//
// Arguments:
//   - resultsDir: The results directory.
//   - schedule: The iterations to look for.
//
// Returns:
//   - []Checkpoint: The existing checkpoints in ascending iteration order.
func DiscoverCheckpoints(resultsDir string, schedule Schedule) []Checkpoint {
	var checkpoints []Checkpoint
	for _, it := range schedule.Iterations() {
		path := CheckpointPath(resultsDir, it)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		checkpoints = append(checkpoints, Checkpoint{Iteration: it, Path: path})
	}
	return checkpoints
}

// ScanCheckpoints returns every iter<N>.npy file of the results directory, whatever its
// iteration.
//
// Arguments:
//   - resultsDir: The results directory.
//
// Returns:
//   - []Checkpoint: The checkpoints in ascending iteration order.
//   - error: An error if the directory cannot be read.
func ScanCheckpoints(resultsDir string) ([]Checkpoint, error) {
	dir := filepath.Join(resultsDir, GeneratedDir)
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading %s", dir)
	}

	var checkpoints []Checkpoint
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		name := file.Name()
		if !strings.HasPrefix(name, checkpointPrefix) || filepath.Ext(name) != checkpointExt {
			continue
		}
		it, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, checkpointPrefix), checkpointExt))
		if err != nil {
			continue
		}
		checkpoints = append(checkpoints, Checkpoint{Iteration: it, Path: filepath.Join(dir, name)})
	}

	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].Iteration < checkpoints[j].Iteration
	})

	return checkpoints, nil
}
