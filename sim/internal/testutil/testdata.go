// Package testutil provides shared test infrastructure for the simulator:
// testdata loading, stand-in actors and assertion helpers used across the
// sim/ test packages.
package testutil

import (
	"math"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/sparse-blobpool/blobsim/sim"
)

// TestdataPath resolves a file in the repository's testdata directory.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func TestdataPath(t *testing.T, name string) string {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", name)
}

// LoadConfig loads a scenario configuration from testdata.
func LoadConfig(t *testing.T, name string) sim.SimulationConfig {
	t.Helper()

	cfg, err := sim.LoadConfig(TestdataPath(t, name))
	if err != nil {
		t.Fatalf("Failed to load %s: %v", name, err)
	}
	return *cfg
}

// SmallConfig returns a validated configuration sized for unit tests.
func SmallConfig() sim.SimulationConfig {
	cfg := sim.DefaultConfig()
	cfg.Duration = 60
	cfg.Topology.NodeCount = 20
	cfg.Topology.MeshDegree = 6
	return cfg
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
