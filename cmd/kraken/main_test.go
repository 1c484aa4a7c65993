package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/kraken/internal/config"
	"github.com/dshills/kraken/pkg/types"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvDataDir, filepath.Join(dir, "data"))
	t.Setenv(config.EnvDBPath, filepath.Join(dir, "data", "kraken.db"))
	t.Setenv(config.EnvIndexDir, filepath.Join(dir, "data", "indices"))
	t.Setenv(config.EnvEmbeddingProvider, "local")
	flagConfig = ""
	flagEnvFile = filepath.Join(dir, ".env")
	return dir
}

func TestParseLevel(t *testing.T) {
	level, err := parseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = parseLevel(" WARN ")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = parseLevel("loud")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	isolate(t)
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:")
	assert.Contains(t, out, "SQLite Driver:")
}

func TestConfigCommands(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "kraken.yaml")

	out, err := runCLI(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")

	_, err = runCLI(t, "config", "init", path)
	assert.Error(t, err, "existing file is not overwritten")

	out, err = runCLI(t, "--config", path, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "fuzzy_threshold: 70")
	assert.Contains(t, out, filepath.Join(dir, "data", "indices"), "environment overrides the file")
}

func TestIngestIndexSearchCommands(t *testing.T) {
	dir := isolate(t)
	raw := filepath.Join(dir, "raw")
	require.NoError(t, os.MkdirAll(raw, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(raw, "Base_CDEs.csv"),
		[]byte("CDE,BIZ_TERM,DESCRIPCION_CDE\nCDE-1,Postal Code,customer postal code\nCDE-2,Order Date,date of the order\n"), 0o644))

	_, err := runCLI(t, "ingest", raw)
	require.NoError(t, err)

	_, err = runCLI(t, "index", "--type", "cde")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "data", "indices", types.EntityCDE.IndexName()+".meta.json"))

	_, err = runCLI(t, "search", "cdes", "postal", "code", "--mode", "fuzzy", "--limit", "1")
	require.NoError(t, err)

	_, err = runCLI(t, "search", "tables", "postal")
	assert.Error(t, err)

	_, err = runCLI(t, "search", "cdes", "postal", "--mode", "vector")
	assert.Error(t, err)
	flagSearchMode = "hybrid"

	_, err = runCLI(t, "index", "--type", "tables")
	assert.Error(t, err)
	flagIndexType = "all"
}

func TestPrintResults(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	printResults(&buf, "zip", types.ModeHybrid, []types.SearchResult{
		{
			Entity: types.Entity{Type: types.EntityAttribute, ID: "7", Fields: map[string]string{
				types.FieldPhysicalName: "cust_zip_cd",
				types.FieldDescRaw:      "Customer postal code",
			}},
			Score:  0.9,
			Method: types.MethodFuzzy,
		},
	})
	out := buf.String()
	assert.Contains(t, out, "1 results for \"zip\" (hybrid)")
	assert.Contains(t, out, " 1. cust_zip_cd  0.900 fuzzy")
	assert.Contains(t, out, "Customer postal code")
	assert.Contains(t, out, "id: 7")

	buf.Reset()
	printResults(&buf, "nothing", types.ModeFuzzy, nil)
	assert.Equal(t, "No results for \"nothing\" (fuzzy)\n", buf.String())
}

func TestEmbedCommand(t *testing.T) {
	isolate(t)
	_, err := runCLI(t, "embed", "customer postal code", "postal code of the customer")
	require.NoError(t, err)

	var buf bytes.Buffer
	printEmbeddings(&buf, "local:hash", []string{"a", "b"}, [][]float32{{1, 0}, {1, 0}})
	assert.Contains(t, buf.String(), "Model: local:hash")
	assert.Contains(t, buf.String(), "[0]-[1] 1.0000")
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
}
