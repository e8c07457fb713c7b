package etl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodpulse/internal/config"
	"foodpulse/internal/dataset"
	apperrors "foodpulse/internal/errors"
	"foodpulse/internal/exporter"
	"foodpulse/internal/sources"
)

const testdata = "../sources/testdata"

func fixtureSources() sources.Sources {
	return sources.Sources{
		Orders:      sources.CSVSource{Path: filepath.Join(testdata, "orders.csv")},
		Users:       sources.JSONSource{Path: filepath.Join(testdata, "users.json")},
		Restaurants: sources.SQLScriptSource{Path: filepath.Join(testdata, "restaurants.sql")},
	}
}

func testWriter(t *testing.T) (*exporter.CSVWriter, *config.Paths) {
	t.Helper()
	cfg := config.Default().Paths
	cfg.BaseDir = t.TempDir()
	paths, err := config.GetPaths(cfg)
	require.NoError(t, err)
	return exporter.NewCSVWriter(paths, nil), paths
}

func TestBuild_EndToEnd(t *testing.T) {
	w, paths := testWriter(t)

	res, err := Build(context.Background(), fixtureSources(), w, paths.AnalyticsFile, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 6, res.Stats.Rows)
	assert.Equal(t, res.Table.Width(), res.Stats.Columns)
	assert.Equal(t, 1, res.Stats.UnmatchedUsers)
	assert.Equal(t, 1, res.Stats.UnmatchedRestaurants)
	assert.True(t, res.Table.HasColumn("restaurant_name_x"))
	assert.True(t, res.Table.HasColumn("restaurant_name_y"))
	assert.True(t, res.Table.HasColumn("address.zip"))
	assert.FileExists(t, paths.AnalyticsFile)

	back, err := ReadAnalyticsTable(paths.AnalyticsFile)
	require.NoError(t, err)
	assert.Equal(t, res.Table.Columns(), back.Columns())
	require.Equal(t, res.Table.Len(), back.Len())

	tests := []struct {
		row    int
		column string
		want   string
		null   bool
	}{
		{0, "city", "Pune", false},
		{0, "cuisine", "Indian", false},
		{2, "avg_cost", "", true},
		{3, "rating", "", true},
		{4, "membership", "", true},
		{5, "cuisine", "", true},
		{5, "total_amount", "", true},
	}
	for _, tt := range tests {
		v := back.Get(tt.row, tt.column)
		assert.Equal(t, tt.null, v.IsNull(), "row %d %s", tt.row, tt.column)
		assert.Equal(t, tt.want, v.String(), "row %d %s", tt.row, tt.column)
	}
}

func TestBuild_MissingSource(t *testing.T) {
	w, paths := testWriter(t)
	srcs := fixtureSources()
	srcs.Users = sources.JSONSource{Path: filepath.Join(t.TempDir(), "absent.json")}

	_, err := Build(context.Background(), srcs, w, paths.AnalyticsFile, DefaultOptions())

	assert.ErrorIs(t, err, apperrors.ErrSourceNotFound)
	assert.NoFileExists(t, paths.AnalyticsFile)
}

func TestLoadAll_NilSource(t *testing.T) {
	srcs := fixtureSources()
	srcs.Restaurants = nil

	_, err := LoadAll(context.Background(), srcs)
	assert.Error(t, err)
}

func TestLoadAll_StaticSources(t *testing.T) {
	srcs := sources.Sources{
		Orders:      sources.StaticSource{Label: "orders", Table: ordersTable()},
		Users:       sources.StaticSource{Label: "users", Table: usersTable()},
		Restaurants: sources.StaticSource{Label: "restaurants", Table: restaurantsTable()},
	}

	in, err := LoadAll(context.Background(), srcs)
	require.NoError(t, err)
	assert.Equal(t, 4, in.Orders.Len())
	assert.Equal(t, 2, in.Users.Len())
	assert.Equal(t, 2, in.Restaurants.Len())
}

func TestReadAnalyticsTable(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadAnalyticsTable(filepath.Join(dir, "none.csv"))
		assert.ErrorIs(t, err, apperrors.ErrSourceNotFound)
	})

	t.Run("bom and empty cells", func(t *testing.T) {
		path := filepath.Join(dir, "bom.csv")
		require.NoError(t, os.WriteFile(path, []byte("\ufefforder_id,city\n1,\n2,Pune\n"), 0o644))

		table, err := ReadAnalyticsTable(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"order_id", "city"}, table.Columns())
		assert.True(t, table.Get(0, "city").IsNull())
		assert.True(t, dataset.String("Pune").Equal(table.Get(1, "city")))
	})

	t.Run("present empty string reads back missing", func(t *testing.T) {
		w, paths := testWriter(t)
		table := dataset.MustNew([]string{"order_id", "city"}, [][]dataset.Value{
			{dataset.String("1"), dataset.String("")},
		})
		require.False(t, table.Get(0, "city").IsNull())
		require.NoError(t, Persist(w, table, paths.AnalyticsFile))

		back, err := ReadAnalyticsTable(paths.AnalyticsFile)
		require.NoError(t, err)
		assert.True(t, back.Get(0, "city").IsNull())

		quoted := filepath.Join(dir, "quoted.csv")
		require.NoError(t, os.WriteFile(quoted, []byte("order_id,city\n1,\"\"\n"), 0o644))
		back, err = ReadAnalyticsTable(quoted)
		require.NoError(t, err)
		assert.True(t, back.Get(0, "city").IsNull())
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(dir, "empty.csv")
		require.NoError(t, os.WriteFile(path, nil, 0o644))

		_, err := ReadAnalyticsTable(path)
		assert.True(t, errors.Is(err, apperrors.ErrParse))
	})
}
