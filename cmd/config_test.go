package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/procsim/sim"
)

func newFlagSet(t *testing.T, args ...string) (*pflag.FlagSet, *configFlags) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f := &configFlags{}
	f.register(fs)
	require.NoError(t, fs.Parse(args))
	return fs, f
}

func TestResolveConfig_NoFileNoFlags_UsesDefaults(t *testing.T) {
	fs, f := newFlagSet(t)
	cfg, err := resolveConfig("", fs, f)
	require.NoError(t, err)
	assert.Equal(t, sim.DefaultConfig(), cfg)
}

func TestResolveConfig_FlagsOverrideFile(t *testing.T) {
	// GIVEN a file choosing 2 fcfs cores
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("num-cpu: 2\nscheduler: fcfs\nseed: 7\n"), 0o644))

	// WHEN only --num-cpu is passed
	fs, f := newFlagSet(t, "--num-cpu", "8")
	cfg, err := resolveConfig(path, fs, f)

	// THEN the flag wins and untouched file values survive
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.NumCPU)
	assert.Equal(t, sim.SchedulerFCFS, cfg.Scheduler)
	assert.Equal(t, int64(7), cfg.Seed)
}

func TestResolveConfig_UnsetFlagsDoNotClobberFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("quantum-cycles: 9\n"), 0o644))
	fs, f := newFlagSet(t, "--seed", "1")
	cfg, err := resolveConfig(path, fs, f)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.QuantumCycles)
	assert.Equal(t, int64(1), cfg.Seed)
}

func TestResolveConfig_InvalidOverride_Errors(t *testing.T) {
	fs, f := newFlagSet(t, "--scheduler", "lottery")
	_, err := resolveConfig("", fs, f)
	assert.Error(t, err)
}

func TestResolveConfig_BadFile_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cores: 4\n"), 0o644))
	fs, f := newFlagSet(t)
	_, err := resolveConfig(path, fs, f)
	assert.Error(t, err)
}
