package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/kraken/internal/config"
	"github.com/dshills/kraken/internal/embedder"
	"github.com/dshills/kraken/internal/embedder/embeddertest"
	"github.com/dshills/kraken/internal/indexer"
	"github.com/dshills/kraken/internal/metrics"
	"github.com/dshills/kraken/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Files.DataDir = filepath.Join(dir, "data")
	cfg.Files.DBPath = filepath.Join(dir, "data", "kraken.db")
	cfg.Files.RawDir = filepath.Join(dir, "raw")
	cfg.Index.Dir = filepath.Join(dir, "data", "indices")
	return cfg
}

func writeExports(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	files := map[string]string{
		"Mega_Diccionario.csv": "PRODUCT,N_FISICO,DESC_ESP\n" +
			"cards,CUST_ZIP_CD,customer postal code\n" +
			"cards,CUST_EMAIL,customer email address\n",
		"Base_CDEs.csv": "Enterprise_ID,BIZ_TERM,DESCRIPCION_CDE\n" +
			"CDE-1,Postal Code,postal code of the customer\n",
		"Base_Catalogos_S080.csv": "ESQUEMA,TABLA,DESC_CORTA\n" +
			"s080,cat_paises,country codes\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func newTestApp(t *testing.T, cfg *config.Config, m *metrics.Metrics) *App {
	t.Helper()
	stub := embeddertest.NewKeywordEmbedder("customer", "postal", "code", "email", "address", "country")
	a, err := New(cfg, WithEmbedder(stub), WithMetrics(m))
	require.NoError(t, err)
	return a
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	cfg := testConfig(t)
	cfg.Index.Type = "IVF"
	_, err = New(cfg, WithEmbedder(embeddertest.NewKeywordEmbedder("x")))
	assert.Error(t, err)
}

func TestApp_IngestPrepareSearch(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	writeExports(t, cfg.Files.RawDir)
	m := metrics.New(nil)

	a := newTestApp(t, cfg, m)
	defer a.Close()

	report, err := a.Ingester.Ingest(ctx, cfg.Files.RawDir)
	require.NoError(t, err)
	require.Len(t, report.Files, 3)
	for _, f := range report.Files {
		assert.Equal(t, "index not loaded", f.IndexNote, "nothing is attached before Prepare")
	}

	stats, err := a.Prepare(ctx, false)
	require.NoError(t, err)
	require.Len(t, stats.Results, 3)
	for _, r := range stats.Results {
		assert.Equal(t, indexer.OutcomeBuilt, r.Outcome)
	}

	svc, err := a.Service(types.EntityAttribute)
	require.NoError(t, err)
	results, err := svc.Search(ctx, "customer postal code", types.ModeSemantic)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "cust_zip_cd", results[0].Entity.Field(types.FieldPhysicalName))

	cdes, err := a.Service(types.EntityCDE)
	require.NoError(t, err)
	results, err = cdes.Search(ctx, "Postal Code", types.ModeHybrid)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "CDE-1", results[0].Entity.ID)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.IndexWrites.WithLabelValues(types.EntityAttribute.IndexName(), "build"))+
		testutil.ToFloat64(m.IndexWrites.WithLabelValues(types.EntityCDE.IndexName(), "build"))+
		testutil.ToFloat64(m.IndexWrites.WithLabelValues(types.EntityCatalog.IndexName(), "build")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchTotal.WithLabelValues("attribute", "semantic")))

	t.Run("later ingestion appends to attached index", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "Base_CDEs.csv")
		require.NoError(t, os.WriteFile(path, []byte("CDE,BIZ_TERM,DESCRIPCION_CDE\nCDE-2,Email,customer email address\n"), 0o644))

		res, err := a.Ingester.IngestFile(ctx, "run-2", path)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Indexed)

		st, err := a.Indexes.Status(types.EntityCDE.IndexName())
		require.NoError(t, err)
		require.NotNil(t, st.Meta)
		assert.Equal(t, 2, st.Meta.Count)
	})

	t.Run("mcp server", func(t *testing.T) {
		s, err := a.MCPServer()
		require.NoError(t, err)
		assert.NotNil(t, s)
	})
}

func TestApp_ReopenAttachesPersistedIndexes(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	writeExports(t, cfg.Files.RawDir)

	first := newTestApp(t, cfg, nil)
	_, err := first.Ingester.Ingest(ctx, cfg.Files.RawDir)
	require.NoError(t, err)
	_, err = first.Prepare(ctx, false)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	cache := embedder.LoadDiskCache(cfg.CachePath(), nil)
	assert.Greater(t, cache.Len(), 0, "cache persisted on close")

	second := newTestApp(t, cfg, nil)
	defer second.Close()

	stats, err := second.Prepare(ctx, false)
	require.NoError(t, err)
	for _, r := range stats.Results {
		assert.Equal(t, indexer.OutcomeAttached, r.Outcome)
	}

	svc, err := second.Service(types.EntityCatalog)
	require.NoError(t, err)
	results, err := svc.Search(ctx, "country", types.ModeSemantic)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "cat_paises", results[0].Entity.Field(types.FieldTable))
}
