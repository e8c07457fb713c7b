package explain

import (
	"math/rand/v2"
)

// Forest averages bootstrap-trained regression trees
type Forest struct {
	Trees       []*Tree
	NumFeatures int
}

// ForestOptions configures FitForest
type ForestOptions struct {
	Trees          int
	MinSamplesLeaf int
	MaxDepth       int
}

// FitForest trains opts.Trees trees, each on a bootstrap sample of the rows
// drawn from rng.
func FitForest(X [][]float64, y []float64, opts ForestOptions, rng *rand.Rand) *Forest {
	f := &Forest{Trees: make([]*Tree, opts.Trees)}
	if len(X) > 0 {
		f.NumFeatures = len(X[0])
	}
	p := treeParams{minSamplesLeaf: max(opts.MinSamplesLeaf, 1), maxDepth: opts.MaxDepth}

	n := len(X)
	sample := make([]int, n)
	for t := range f.Trees {
		for i := range sample {
			sample[i] = rng.IntN(n)
		}
		f.Trees[t] = growTree(X, y, sample, p)
	}
	return f
}

// Predict is the mean tree prediction
func (f *Forest) Predict(x []float64) float64 {
	sum := 0.0
	for _, t := range f.Trees {
		sum += t.Predict(x)
	}
	return sum / float64(len(f.Trees))
}
