package sources

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodpulse/internal/config"
	"foodpulse/internal/dataset"
	apperrors "foodpulse/internal/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadOrders(t *testing.T) {
	ctx := context.Background()

	t.Run("fixture", func(t *testing.T) {
		tbl, err := LoadOrders(ctx, filepath.Join("testdata", "orders.csv"))
		require.NoError(t, err)

		assert.Equal(t, 6, tbl.Len())
		assert.Equal(t, []string{"order_id", "user_id", "restaurant_id", "order_date", "total_amount", "rating", "restaurant_name"}, tbl.Columns())
		assert.Equal(t, "450.50", tbl.Get(0, ColTotalAmount).String())
		assert.True(t, tbl.Get(3, ColRating).IsNull(), "empty rating is missing")
		assert.True(t, tbl.Get(5, ColTotalAmount).IsNull(), "empty amount is missing")
	})

	t.Run("byte order mark is stripped", func(t *testing.T) {
		path := writeFile(t, "bom.csv", "\ufefforder_id,user_id,restaurant_id,order_date,total_amount\n1,u1,r1,01-01-2024,100\n")
		tbl, err := LoadOrders(ctx, path)
		require.NoError(t, err)
		assert.True(t, tbl.HasColumn(ColOrderID))
	})

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"missing file", filepath.Join("testdata", "absent.csv"), apperrors.ErrSourceNotFound},
		{"non numeric amount", filepath.Join("testdata", "bad_amount.csv"), apperrors.ErrParse},
		{"ragged row", filepath.Join("testdata", "ragged.csv"), apperrors.ErrParse},
		{"date in wrong layout", filepath.Join("testdata", "bad_date.csv"), apperrors.ErrParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadOrders(ctx, tt.path)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	numeric := []struct {
		name   string
		amount string
	}{
		{"nan amount", "NaN"},
		{"infinite amount", "Inf"},
		{"padded amount", `" 120.5"`},
		{"hex float amount", "0x1p4"},
		{"overflowing amount", "1e400"},
	}
	for _, tt := range numeric {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "orders.csv",
				"order_id,user_id,restaurant_id,order_date,total_amount\n1,u1,r1,01-01-2024,"+tt.amount+"\n")
			_, err := LoadOrders(ctx, path)
			require.ErrorIs(t, err, apperrors.ErrParse)
			assert.Contains(t, err.Error(), ColTotalAmount)
		})
	}

	t.Run("exponent amount is accepted", func(t *testing.T) {
		path := writeFile(t, "orders.csv",
			"order_id,user_id,restaurant_id,order_date,total_amount,rating\n1,u1,r1,01-01-2024,1.2e2,-4\n")
		tbl, err := LoadOrders(ctx, path)
		require.NoError(t, err)
		f, ok, err := tbl.Get(0, ColTotalAmount).AsFloat()
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 120.0, f)
	})

	t.Run("missing required column", func(t *testing.T) {
		path := writeFile(t, "orders.csv", "order_id,user_id,order_date,total_amount\n1,u1,01-01-2024,10\n")
		_, err := LoadOrders(ctx, path)
		require.ErrorIs(t, err, apperrors.ErrParse)
		assert.Contains(t, err.Error(), ColRestaurantID)
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := LoadOrders(ctx, writeFile(t, "orders.csv", ""))
		assert.ErrorIs(t, err, apperrors.ErrParse)
	})

	t.Run("custom date layout", func(t *testing.T) {
		tbl, err := CSVSource{Path: filepath.Join("testdata", "bad_date.csv"), DateLayout: "2006-01-02"}.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, tbl.Len())
	})
}

func TestLoadUsers(t *testing.T) {
	ctx := context.Background()

	t.Run("fixture is flattened", func(t *testing.T) {
		tbl, err := LoadUsers(ctx, filepath.Join("testdata", "users.json"))
		require.NoError(t, err)

		assert.Equal(t, 3, tbl.Len())
		assert.Equal(t, []string{"user_id", "name", "city", "membership", "address.zip", "address.area", "tags", "referrer"}, tbl.Columns())
		assert.Equal(t, "411001", tbl.Get(0, "address.zip").String())
		assert.True(t, tbl.Get(1, "address.zip").IsNull(), "absent key is missing")
		assert.Equal(t, `["veg", "late-night"]`, tbl.Get(1, "tags").String())
		assert.True(t, tbl.Get(2, "referrer").IsNull(), "json null is missing")
	})

	t.Run("numeric ids keep their literal text", func(t *testing.T) {
		path := writeFile(t, "users.json", `[{"membership":"Gold","user_id":7,"score":1.50,"active":true}]`)
		tbl, err := LoadUsers(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, "user_id", tbl.Columns()[0])
		assert.Equal(t, "7", tbl.Get(0, "user_id").String())
		assert.Equal(t, "1.50", tbl.Get(0, "score").String())
		assert.Equal(t, "true", tbl.Get(0, "active").String())
	})

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"malformed json", `[{"user_id": "u1",]`, apperrors.ErrParse},
		{"object at top level", `{"user_id": "u1"}`, apperrors.ErrParse},
		{"record is not an object", `["u1"]`, apperrors.ErrParse},
		{"missing user_id", `[{"name": "x"}]`, apperrors.ErrParse},
		{"null user_id", `[{"user_id": null}]`, apperrors.ErrParse},
		{"trailing data", `[] []`, apperrors.ErrParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadUsers(ctx, writeFile(t, "users.json", tt.content))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("empty array", func(t *testing.T) {
		tbl, err := LoadUsers(ctx, writeFile(t, "users.json", `[]`))
		require.NoError(t, err)
		assert.Equal(t, 0, tbl.Len())
		assert.Equal(t, []string{"user_id"}, tbl.Columns())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadUsers(ctx, filepath.Join(t.TempDir(), "users.json"))
		assert.ErrorIs(t, err, apperrors.ErrSourceNotFound)
	})
}

func TestLoadRestaurants(t *testing.T) {
	ctx := context.Background()

	t.Run("fixture", func(t *testing.T) {
		tbl, err := LoadRestaurants(ctx, filepath.Join("testdata", "restaurants.sql"))
		require.NoError(t, err)

		assert.Equal(t, 3, tbl.Len())
		assert.Equal(t, []string{"restaurant_id", "restaurant_name", "cuisine", "avg_cost"}, tbl.Columns())
		assert.Equal(t, "R002", tbl.Get(1, "restaurant_id").String())
		assert.Equal(t, "280.5", tbl.Get(1, "avg_cost").String())
		assert.True(t, tbl.Get(2, "avg_cost").IsNull())
	})

	t.Run("script without restaurants table", func(t *testing.T) {
		_, err := LoadRestaurants(ctx, filepath.Join("testdata", "no_restaurants.sql"))
		assert.ErrorIs(t, err, apperrors.ErrSchema)
	})

	t.Run("invalid script", func(t *testing.T) {
		_, err := LoadRestaurants(ctx, writeFile(t, "broken.sql", "CREATE TABLE restaurants (;"))
		assert.ErrorIs(t, err, apperrors.ErrSchema)
	})

	t.Run("missing script", func(t *testing.T) {
		_, err := LoadRestaurants(ctx, filepath.Join("testdata", "absent.sql"))
		assert.ErrorIs(t, err, apperrors.ErrSourceNotFound)
	})

	t.Run("each load starts from an empty store", func(t *testing.T) {
		path := filepath.Join("testdata", "restaurants.sql")
		_, err := LoadRestaurants(ctx, path)
		require.NoError(t, err)
		// A shared store would fail on the second CREATE TABLE
		_, err = LoadRestaurants(ctx, path)
		assert.NoError(t, err)
	})
}

func TestSQLTableSource(t *testing.T) {
	ctx := context.Background()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, `CREATE TABLE restaurants (restaurant_id TEXT, cuisine TEXT, seats INTEGER);
INSERT INTO restaurants VALUES ('R1', 'Thai', 40), ('R2', NULL, NULL);`)
	require.NoError(t, err)

	tbl, err := SQLTableSource{DB: db, Table: "restaurants"}.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, "40", tbl.Get(0, "seats").String())
	assert.True(t, tbl.Get(1, "cuisine").IsNull())

	_, err = SQLTableSource{DB: db, Table: "restaurants; DROP TABLE x"}.Load(ctx)
	assert.ErrorIs(t, err, apperrors.ErrSchema)

	_, err = SQLTableSource{DB: db, Table: "missing"}.Load(ctx)
	assert.ErrorIs(t, err, apperrors.ErrSchema)

	_, err = SQLTableSource{Table: "restaurants"}.Load(ctx)
	assert.Error(t, err)
}

func TestStaticSource(t *testing.T) {
	tbl := dataset.Empty("user_id")
	got, err := StaticSource{Label: "users", Table: tbl}.Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, tbl, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = StaticSource{Label: "users", Table: tbl}.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.BaseDir = t.TempDir()
	paths, err := config.GetPaths(cfg.Paths)
	require.NoError(t, err)

	srcs, closeFn, err := FromConfig(context.Background(), paths, cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, closeFn)
	assert.NoError(t, closeFn())

	assert.IsType(t, CSVSource{}, srcs.Orders)
	assert.IsType(t, JSONSource{}, srcs.Users)
	assert.IsType(t, SQLScriptSource{}, srcs.Restaurants)
	assert.Equal(t, paths.OrdersFile, srcs.Orders.(CSVSource).Path)

	cfg.Sources.RestaurantsDSN = "postgres://localhost/foodpulse"
	cfg.Sources.RestaurantsDriver = "mysql"
	_, _, err = FromConfig(context.Background(), paths, cfg, nil)
	assert.Error(t, err)
}
