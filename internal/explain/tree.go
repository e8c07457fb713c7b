package explain

import (
	"sort"
)

// Node is a tree node. Leaves have Feature -1.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
	Samples   int     `json:"samples"`
}

func (n Node) leaf() bool { return n.Feature < 0 }

// Tree is a regression tree stored as a flat node slice rooted at 0
type Tree struct {
	Nodes []Node
}

type treeParams struct {
	minSamplesLeaf int
	maxDepth       int // 0 means unbounded
}

// growTree fits a CART tree minimizing squared error over the rows in idx.
// Splits sit halfway between adjacent distinct feature values.
func growTree(X [][]float64, y []float64, idx []int, p treeParams) *Tree {
	t := &Tree{}
	t.grow(X, y, idx, 0, p)
	return t
}

func (t *Tree) grow(X [][]float64, y []float64, idx []int, depth int, p treeParams) int {
	sum := 0.0
	for _, i := range idx {
		sum += y[i]
	}
	self := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{Feature: -1, Value: sum / float64(len(idx)), Samples: len(idx)})

	if len(idx) < 2*p.minSamplesLeaf || (p.maxDepth > 0 && depth >= p.maxDepth) || pure(y, idx) {
		return self
	}

	feature, threshold, ok := bestSplit(X, y, idx, p.minSamplesLeaf)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := t.grow(X, y, left, depth+1, p)
	r := t.grow(X, y, right, depth+1, p)
	t.Nodes[self].Feature = feature
	t.Nodes[self].Threshold = threshold
	t.Nodes[self].Left = l
	t.Nodes[self].Right = r
	return self
}

func pure(y []float64, idx []int) bool {
	for _, i := range idx[1:] {
		if y[i] != y[idx[0]] {
			return false
		}
	}
	return true
}

// bestSplit scans every feature for the threshold with the largest squared
// error reduction. It reports false when no split leaves minLeaf rows on
// both sides.
func bestSplit(X [][]float64, y []float64, idx []int, minLeaf int) (int, float64, bool) {
	n := len(idx)
	total := 0.0
	for _, i := range idx {
		total += y[i]
	}

	bestFeature, bestThreshold := -1, 0.0
	// maximizing sum_l^2/n_l + sum_r^2/n_r minimizes the children's SSE
	bestScore := total * total / float64(n)
	const minGain = 1e-12

	order := make([]int, n)
	for f := range X[idx[0]] {
		copy(order, idx)
		sort.SliceStable(order, func(a, b int) bool { return X[order[a]][f] < X[order[b]][f] })

		left := 0.0
		for k := 0; k < n-1; k++ {
			left += y[order[k]]
			nl := k + 1
			cur, next := X[order[k]][f], X[order[k+1]][f]
			if cur == next || nl < minLeaf || n-nl < minLeaf {
				continue
			}
			right := total - left
			score := left*left/float64(nl) + right*right/float64(n-nl)
			if score > bestScore+minGain*max(1, bestScore) {
				bestFeature, bestScore = f, score
				bestThreshold = cur + (next-cur)/2
				if bestThreshold == next {
					bestThreshold = cur
				}
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

// Predict walks x down to a leaf
func (t *Tree) Predict(x []float64) float64 {
	n := t.Nodes[0]
	for !n.leaf() {
		if x[n.Feature] <= n.Threshold {
			n = t.Nodes[n.Left]
		} else {
			n = t.Nodes[n.Right]
		}
	}
	return n.Value
}

// Leaves counts leaf nodes
func (t *Tree) Leaves() int {
	c := 0
	for _, n := range t.Nodes {
		if n.leaf() {
			c++
		}
	}
	return c
}
