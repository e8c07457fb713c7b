package segmentation

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// KMeans clusters dense vectors with Lloyd iterations from k-means++ starts
type KMeans struct {
	K         int
	MaxIter   int
	Tolerance float64
	Inits     int
	Seed      uint64
}

// Clustering is the best of KMeans.Inits runs
type Clustering struct {
	Labels     []int
	Centroids  [][]float64
	Inertia    float64
	Iterations int
}

// Fit clusters rows into K groups. rows must hold at least K vectors of equal
// width. Runs draw from one seeded generator, so results depend only on the
// data and the seed.
func (km KMeans) Fit(rows [][]float64) Clustering {
	rng := rand.New(rand.NewPCG(km.Seed, km.Seed))
	tol := km.Tolerance * meanVariance(rows)

	inits := max(km.Inits, 1)
	var best Clustering
	for run := 0; run < inits; run++ {
		c := km.lloyd(rows, km.seedCentroids(rows, rng), tol)
		if run == 0 || c.Inertia < best.Inertia {
			best = c
		}
	}
	return best
}

// seedCentroids picks K starting centroids with greedy k-means++: each step
// samples a few candidates proportional to squared distance and keeps the one
// that lowers the potential most.
func (km KMeans) seedCentroids(rows [][]float64, rng *rand.Rand) [][]float64 {
	n := len(rows)
	trials := 2 + int(math.Log(float64(km.K)))

	centroids := make([][]float64, 0, km.K)
	centroids = append(centroids, clone(rows[rng.IntN(n)]))

	closest := make([]float64, n)
	for i, r := range rows {
		closest[i] = sqDist(r, centroids[0])
	}
	potential := floats.Sum(closest)

	for len(centroids) < km.K {
		bestIdx, bestPot := -1, math.Inf(1)
		var bestClosest []float64
		for t := 0; t < trials; t++ {
			idx := sampleWeighted(closest, potential, rng)
			cand := make([]float64, n)
			for i, r := range rows {
				cand[i] = math.Min(closest[i], sqDist(r, rows[idx]))
			}
			if pot := floats.Sum(cand); pot < bestPot {
				bestIdx, bestPot, bestClosest = idx, pot, cand
			}
		}
		centroids = append(centroids, clone(rows[bestIdx]))
		closest, potential = bestClosest, bestPot
	}
	return centroids
}

// sampleWeighted draws an index with probability weights[i]/total, uniformly
// when every weight is zero.
func sampleWeighted(weights []float64, total float64, rng *rand.Rand) int {
	if total <= 0 {
		return rng.IntN(len(weights))
	}
	target := rng.Float64() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if acc > target {
			return i
		}
	}
	return len(weights) - 1
}

func (km KMeans) lloyd(rows [][]float64, centroids [][]float64, tol float64) Clustering {
	labels := make([]int, len(rows))
	iter := 0
	for iter < km.MaxIter {
		iter++
		assign(rows, centroids, labels)
		next := km.update(rows, centroids, labels)

		shift := 0.0
		for c := range centroids {
			shift += sqDist(centroids[c], next[c])
		}
		centroids = next
		if shift <= tol {
			break
		}
	}
	inertia := assign(rows, centroids, labels)
	return Clustering{Labels: labels, Centroids: centroids, Inertia: inertia, Iterations: iter}
}

// assign labels each row with its nearest centroid and returns the inertia
func assign(rows, centroids [][]float64, labels []int) float64 {
	inertia := 0.0
	for i, r := range rows {
		best, bestDist := 0, math.Inf(1)
		for c, centroid := range centroids {
			if d := sqDist(r, centroid); d < bestDist {
				best, bestDist = c, d
			}
		}
		labels[i] = best
		inertia += bestDist
	}
	return inertia
}

// update recomputes centroids as cluster means. An empty cluster takes the
// point farthest from its current centroid.
func (km KMeans) update(rows [][]float64, centroids [][]float64, labels []int) [][]float64 {
	width := len(rows[0])
	next := make([][]float64, len(centroids))
	counts := make([]int, len(centroids))
	for c := range next {
		next[c] = make([]float64, width)
	}
	for i, r := range rows {
		floats.Add(next[labels[i]], r)
		counts[labels[i]]++
	}

	taken := make(map[int]bool)
	for c := range next {
		if counts[c] > 0 {
			floats.Scale(1/float64(counts[c]), next[c])
			continue
		}
		far, farDist := 0, -1.0
		for i, r := range rows {
			if d := sqDist(r, centroids[labels[i]]); d > farDist && !taken[i] {
				far, farDist = i, d
			}
		}
		taken[far] = true
		copy(next[c], rows[far])
	}
	return next
}

func meanVariance(rows [][]float64) float64 {
	if len(rows) == 0 {
		return 0
	}
	width := len(rows[0])
	total := 0.0
	for j := 0; j < width; j++ {
		sum, sumSq := 0.0, 0.0
		for _, r := range rows {
			sum += r[j]
			sumSq += r[j] * r[j]
		}
		m := sum / float64(len(rows))
		total += sumSq/float64(len(rows)) - m*m
	}
	return total / float64(width)
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
