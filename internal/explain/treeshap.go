package explain

// Path state of a feature during the interventional traversal
const (
	unset int8 = iota
	fromX
	fromZ
)

// shapWeights[nx][nz] holds (nx-1)! nz! / (nx+nz)! for nx >= 1
type shapWeights [][]float64

func newShapWeights(features int) shapWeights {
	fact := make([]float64, features+1)
	fact[0] = 1
	for i := 1; i <= features; i++ {
		fact[i] = fact[i-1] * float64(i)
	}
	w := make(shapWeights, features+1)
	for nx := range w {
		w[nx] = make([]float64, features+1)
		if nx == 0 {
			continue
		}
		for nz := 0; nx+nz <= features; nz++ {
			w[nx][nz] = fact[nx-1] * fact[nz] / fact[nx+nz]
		}
	}
	return w
}

// shapPair adds to phi the Shapley values of tree t for explaining x against
// the single reference z. sum(phi) grows by t(x) - t(z).
func (t *Tree) shapPair(x, z, phi []float64, state []int8, w shapWeights) {
	t.shapRecurse(0, x, z, phi, state, 0, 0, w)
}

func (t *Tree) shapRecurse(node int, x, z, phi []float64, state []int8, nx, nz int, w shapWeights) {
	n := t.Nodes[node]
	if n.leaf() {
		if nx > 0 {
			pos := n.Value * w[nx][nz]
			for f, s := range state {
				if s == fromX {
					phi[f] += pos
				}
			}
		}
		if nz > 0 {
			// feature leaving the coalition: nx! (nz-1)! / n! == w[nx+1][nz-1]
			neg := n.Value * w[nx+1][nz-1]
			for f, s := range state {
				if s == fromZ {
					phi[f] -= neg
				}
			}
		}
		return
	}

	f := n.Feature
	xChild, zChild := n.Right, n.Right
	if x[f] <= n.Threshold {
		xChild = n.Left
	}
	if z[f] <= n.Threshold {
		zChild = n.Left
	}

	switch state[f] {
	case fromX:
		t.shapRecurse(xChild, x, z, phi, state, nx, nz, w)
	case fromZ:
		t.shapRecurse(zChild, x, z, phi, state, nx, nz, w)
	default:
		if xChild == zChild {
			t.shapRecurse(xChild, x, z, phi, state, nx, nz, w)
			return
		}
		state[f] = fromX
		t.shapRecurse(xChild, x, z, phi, state, nx+1, nz, w)
		state[f] = fromZ
		t.shapRecurse(zChild, x, z, phi, state, nx, nz+1, w)
		state[f] = unset
	}
}

// SHAP returns the per-feature attribution of f(x) against the mean
// prediction over background.
func (f *Forest) SHAP(x []float64, background [][]float64) []float64 {
	phi := make([]float64, f.NumFeatures)
	if len(background) == 0 || len(f.Trees) == 0 {
		return phi
	}
	w := newShapWeights(f.NumFeatures)
	state := make([]int8, f.NumFeatures)
	for _, t := range f.Trees {
		for _, z := range background {
			t.shapPair(x, z, phi, state, w)
		}
	}
	scale := 1 / float64(len(f.Trees)*len(background))
	for i := range phi {
		phi[i] *= scale
	}
	return phi
}
