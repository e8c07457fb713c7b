package explain

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodpulse/internal/dataset"
	apperrors "foodpulse/internal/errors"
)

// ratingTable builds rating/total_amount rows; "" marks a missing cell
func ratingTable(pairs ...[2]string) *dataset.Table {
	rows := make([][]dataset.Value, len(pairs))
	for i, p := range pairs {
		rows[i] = []dataset.Value{cell(p[0]), cell(p[1])}
	}
	return dataset.MustNew([]string{"rating", "total_amount"}, rows)
}

func cell(s string) dataset.Value {
	if s == "" {
		return dataset.Null
	}
	return dataset.String(s)
}

func syntheticOrders(n int) *dataset.Table {
	rng := rand.New(rand.NewPCG(7, 7))
	rows := make([][]dataset.Value, n)
	for i := range rows {
		rating := math.Round((1+4*rng.Float64())*10) / 10
		distance := math.Round(rng.Float64()*100) / 10
		amount := 80*rating + 3*distance + rng.Float64()*20
		rows[i] = []dataset.Value{dataset.Float(rating), dataset.Float(distance), dataset.Float(amount)}
	}
	return dataset.MustNew([]string{"rating", "distance_km", "total_amount"}, rows)
}

func assertLocalAccuracy(t *testing.T, a *Attribution) {
	t.Helper()
	for i, phi := range a.Values {
		sum := a.BaseValue
		for _, v := range phi {
			sum += v
		}
		assert.InDelta(t, a.Predictions[i], sum, 1e-8, "row %d", i)
	}
}

func TestExplain_SingleFeature(t *testing.T) {
	table := ratingTable(
		[2]string{"4.5", "450"}, [2]string{"3.8", "220"}, [2]string{"4.9", "780"},
		[2]string{"3.2", "150"}, [2]string{"4.0", "300"}, [2]string{"4.5", "470"},
	)

	a, err := Explain(table, DefaultOptions())
	require.NoError(t, err)

	require.Len(t, a.Values, 6)
	for _, row := range a.Values {
		assert.Len(t, row, 1)
	}
	assert.Equal(t, []string{"rating"}, a.Features)
	assertLocalAccuracy(t, a)

	// one feature: the attribution is the centered prediction
	for i := range a.Values {
		assert.InDelta(t, a.Predictions[i]-a.BaseValue, a.Values[i][0], 1e-9)
	}
	assert.Equal(t, a.Values[0], a.Values[5], "identical ratings share attributions")
}

func TestExplain_MultipleFeatures(t *testing.T) {
	opts := DefaultOptions()
	opts.Features = []string{"rating", "distance_km"}
	opts.Trees = 20

	a, err := Explain(syntheticOrders(150), opts)
	require.NoError(t, err)

	require.Len(t, a.Values, 150)
	require.Len(t, a.X, 150)
	for _, row := range a.Values {
		assert.Len(t, row, 2)
	}
	assertLocalAccuracy(t, a)

	imp := a.Importance()
	require.Len(t, imp, 2)
	assert.Equal(t, "rating", imp[0].Feature)
	assert.Greater(t, imp[0].MeanAbsSHAP, imp[1].MeanAbsSHAP)
}

func TestExplain_MissingRowsExcluded(t *testing.T) {
	table := ratingTable(
		[2]string{"4.5", "450"}, [2]string{"", "220"}, [2]string{"4.9", ""}, [2]string{"3.0", "100"},
	)

	a, err := Explain(table, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []int{0, 3}, a.Rows)
	assert.Equal(t, 2, a.Dropped)
	assert.Equal(t, [][]float64{{4.5}, {3.0}}, a.X)
	assertLocalAccuracy(t, a)
}

func TestExplain_ZeroRows(t *testing.T) {
	a, err := Explain(ratingTable([2]string{"", "100"}), DefaultOptions())
	require.NoError(t, err)

	assert.Empty(t, a.Values)
	assert.Empty(t, a.X)
	assert.Equal(t, 1, a.Dropped)
	assert.Zero(t, a.BaseValue)
	assert.Equal(t, []FeatureImportance{{Feature: "rating"}}, a.Importance())
}

func TestExplain_Deterministic(t *testing.T) {
	opts := DefaultOptions()
	opts.Features = []string{"rating", "distance_km"}
	opts.Trees = 10
	opts.BackgroundSize = 30

	a, err := Explain(syntheticOrders(80), opts)
	require.NoError(t, err)
	b, err := Explain(syntheticOrders(80), opts)
	require.NoError(t, err)

	assert.Equal(t, a.Values, b.Values)
	assert.Equal(t, a.BaseValue, b.BaseValue)
	assertLocalAccuracy(t, a)
}

func TestExplain_Errors(t *testing.T) {
	tests := []struct {
		name  string
		table *dataset.Table
		opts  func(*Options)
		want  error
	}{
		{"missing feature column", dataset.Empty("total_amount"), nil, apperrors.ErrSchema},
		{"non numeric rating", ratingTable([2]string{"good", "100"}), nil, apperrors.ErrParse},
		{"no trees", ratingTable(), func(o *Options) { o.Trees = 0 }, apperrors.ErrInvalidOptions},
		{"no features", ratingTable(), func(o *Options) { o.Features = nil }, apperrors.ErrInvalidOptions},
		{"target as feature", ratingTable(), func(o *Options) { o.Features = []string{"total_amount"} }, apperrors.ErrInvalidOptions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			if tt.opts != nil {
				tt.opts(&opts)
			}
			_, err := Explain(tt.table, opts)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGrowTree_FitsDistinctPoints(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}, {4}, {5}}
	y := []float64{10, 40, 20, 50, 30}
	idx := []int{0, 1, 2, 3, 4}

	tree := growTree(X, y, idx, treeParams{minSamplesLeaf: 1})

	for i := range X {
		assert.Equal(t, y[i], tree.Predict(X[i]))
	}
	assert.Equal(t, 5, tree.Leaves())
	assert.Equal(t, 40.0, tree.Predict([]float64{2.5}), "midpoint threshold sends 2.5 left")
}

func TestGrowTree_MaxDepth(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}, {4}}
	y := []float64{1, 2, 3, 4}

	tree := growTree(X, y, []int{0, 1, 2, 3}, treeParams{minSamplesLeaf: 1, maxDepth: 1})

	assert.Equal(t, 2, tree.Leaves())
	assert.Equal(t, 1.5, tree.Predict([]float64{1}))
	assert.Equal(t, 3.5, tree.Predict([]float64{4}))
}

func TestShapWeights(t *testing.T) {
	w := newShapWeights(3)

	tests := []struct {
		nx, nz int
		want   float64
	}{
		{1, 0, 1},
		{1, 1, 0.5},
		{2, 0, 0.5},
		{1, 2, 1.0 / 3},
		{2, 1, 1.0 / 6},
		{3, 0, 1.0 / 3},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%d", tt.nx, tt.nz), func(t *testing.T) {
			assert.InDelta(t, tt.want, w[tt.nx][tt.nz], 1e-12)
		})
	}
}

func TestTreeSHAP_InteractionSplitsCredit(t *testing.T) {
	// f(a, b) = 1 only when both a and b exceed 0.5
	tree := &Tree{Nodes: []Node{
		{Feature: 0, Threshold: 0.5, Left: 1, Right: 2},
		{Feature: -1, Value: 0},
		{Feature: 1, Threshold: 0.5, Left: 3, Right: 4},
		{Feature: -1, Value: 0},
		{Feature: -1, Value: 1},
	}}
	forest := &Forest{Trees: []*Tree{tree}, NumFeatures: 2}

	phi := forest.SHAP([]float64{1, 1}, [][]float64{{0, 0}})

	assert.InDelta(t, 0.5, phi[0], 1e-12)
	assert.InDelta(t, 0.5, phi[1], 1e-12)
}

func BenchmarkExplain(b *testing.B) {
	table := syntheticOrders(500)
	opts := DefaultOptions()
	opts.Features = []string{"rating", "distance_km"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Explain(table, opts); err != nil {
			b.Fatal(err)
		}
	}
}
