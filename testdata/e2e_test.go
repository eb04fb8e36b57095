package testdata

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "primescan/internal/config"
	"primescan/internal/pipeline"
	"primescan/internal/tools"
	"primescan/pkg/contract"
	wsqlite "primescan/plugins/writer/sqlite"
)

// convertExample 把 files/example.txt 转成 width 字节的二进制输入。
func convertExample(t *testing.T, width int) string {
	t.Helper()
	out := filepath.Join(t.TempDir(), "example.bin")
	_, n, err := tools.ConvertFile(context.Background(), filepath.Join("files", "example.txt"), out, width)
	require.NoError(t, err)
	require.Equal(t, 9, n)
	return out
}

func baseConfig(input, outDir string) cfgpkg.Config {
	cfg := cfgpkg.Defaults()
	cfg.Input = input
	cfg.Logging.Level = "error"
	cfg.Components.Writers = []string{"fs", "sqlite"}
	cfg.Options.Writers = map[string]map[string]any{
		"fs":     {"output_dir": outDir, "atomic": true},
		"sqlite": {"path": filepath.Join(outDir, "history.db")},
	}
	return cfg
}

func runPipeline(t *testing.T, cfg cfgpkg.Config) (contract.Report, error) {
	t.Helper()
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		return contract.Report{}, err
	}
	defer comp.Close()
	return pipeline.Run(context.Background(), comp, set, nil)
}

func readReport(t *testing.T, outDir string) contract.Report {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(outDir, "example.bin.result.json"))
	require.NoError(t, err)
	var rep contract.Report
	require.NoError(t, json.Unmarshal(b, &rep))
	return rep
}

func TestE2ESkipComposites(t *testing.T) {
	in := convertExample(t, 6)
	outDir := t.TempDir()
	cfg := baseConfig(in, outDir)
	cfg.Threads = 4
	got, err := runPipeline(t, cfg)
	require.NoError(t, err)

	want := contract.Run{FirstValue: 2, FirstOffset: 6, LastValue: 13, LastOffset: 42, Length: 6}
	assert.Equal(t, want, got.Result)
	rep := readReport(t, outDir)
	assert.Equal(t, want, rep.Result)
	assert.Equal(t, got.ID, rep.ID)
	assert.Equal(t, contract.StateFinalization, rep.State)
	assert.True(t, rep.Stitched)
	assert.Equal(t, int64(54), rep.SizeBytes)

	store, err := wsqlite.New(&wsqlite.Options{Path: filepath.Join(outDir, "history.db")})
	require.NoError(t, err)
	defer store.Close()
	hist, err := store.Recent(context.Background(), contract.NormalizeInput(in), 5)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, want, hist[0].Result)
	assert.Equal(t, 4, hist[0].Threads)
}

func TestE2EBreakOnComposite(t *testing.T) {
	in := convertExample(t, 6)
	outDir := t.TempDir()
	cfg := baseConfig(in, outDir)
	cfg.Composites = "break"
	cfg.Threads = 3
	got, err := runPipeline(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, contract.Run{FirstValue: 7, FirstOffset: 30, LastValue: 13, LastOffset: 42, Length: 3}, got.Result)
	assert.Equal(t, got.Result, readReport(t, outDir).Result)
}

// TestE2EOracles 加速表与显式素数表两种判定器得到相同结果
func TestE2EOracles(t *testing.T) {
	in := convertExample(t, 2)
	want := contract.Run{FirstValue: 2, FirstOffset: 2, LastValue: 13, LastOffset: 14, Length: 6}

	cfg := baseConfig(in, t.TempDir())
	cfg.ElementWidth = 2
	cfg.Components.Accelerator = "sieve"
	cfg.Accelerator.Upper = 1 << 16
	cfg.Options.Accelerator = map[string]any{"cache_path": filepath.Join(t.TempDir(), "sieve.zst")}
	got, err := runPipeline(t, cfg)
	require.NoError(t, err)
	assert.True(t, got.Accelerated)
	assert.Equal(t, want, got.Result)

	cfg = baseConfig(in, t.TempDir())
	cfg.ElementWidth = 2
	cfg.Components.Oracle = "set"
	cfg.Options.Oracle = map[string]any{"primes": []any{2, 3, 5, 7, 11, 13}}
	cfg.Oracle.CacheSize = 8
	got, err = runPipeline(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, want, got.Result)
}

func TestE2EMissingInput(t *testing.T) {
	outDir := t.TempDir()
	cfg := baseConfig(filepath.Join(outDir, "absent.bin"), outDir)
	_, err := runPipeline(t, cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, contract.ErrInputMissing))
	_, statErr := os.Stat(filepath.Join(outDir, "absent.bin.result.json"))
	assert.True(t, os.IsNotExist(statErr), "no report for a failed run")
}
