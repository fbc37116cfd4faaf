package forest

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
)

// Leaf marks a node without children.
const Leaf = -1

// Node is one tree node. Samples with x[Feature] <= Threshold go Left.
type Node struct {
	Value     []float64 `json:"value,omitempty"`
	Threshold float64   `json:"threshold"`
	Feature   int       `json:"feature"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
}

// Tree is a flattened binary tree rooted at Nodes[0].
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) leaf(x []float64) []float64 {
	n := &t.Nodes[0]
	for n.Feature != Leaf {
		if x[n.Feature] <= n.Threshold {
			n = &t.Nodes[n.Left]
		} else {
			n = &t.Nodes[n.Right]
		}
	}
	return n.Value
}

func (t *Tree) validate(numFeatures, numClasses int) error {
	if len(t.Nodes) == 0 {
		return errors.New("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Feature == Leaf {
			if len(n.Value) != numClasses {
				return fmt.Errorf("leaf %d has %d class values", i, len(n.Value))
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= numFeatures {
			return fmt.Errorf("node %d splits on unknown feature %d", i, n.Feature)
		}
		// Children always follow their parent, which rules out cycles.
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has invalid children %d/%d", i, n.Left, n.Right)
		}
	}
	return nil
}

type grower struct {
	rng        *rand.Rand
	X          [][]float64
	y          []int
	weights    []float64
	importance []float64
	nodes      []Node
	cfg        Config
	numClasses int
}

type split struct {
	feature   int
	threshold float64
	score     float64
	left      []int
	right     []int
}

func (g *grower) grow() Tree {
	samples := make([]int, 0, len(g.X))
	for i, w := range g.weights {
		if w > 0 {
			samples = append(samples, i)
		}
	}
	g.nodes = make([]Node, 0, 64)
	g.build(samples, 0)
	return Tree{Nodes: g.nodes}
}

func (g *grower) classWeights(samples []int) ([]float64, float64) {
	dist := make([]float64, g.numClasses)
	var total float64
	for _, i := range samples {
		dist[g.y[i]] += g.weights[i]
		total += g.weights[i]
	}
	return dist, total
}

func gini(dist []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	impurity := 1.0
	for _, w := range dist {
		p := w / total
		impurity -= p * p
	}
	return impurity
}

func (g *grower) build(samples []int, depth int) int {
	idx := len(g.nodes)
	g.nodes = append(g.nodes, Node{Feature: Leaf, Left: Leaf, Right: Leaf})

	dist, total := g.classWeights(samples)
	impurity := gini(dist, total)

	if depth >= g.cfg.MaxDepth ||
		len(samples) < g.cfg.MinSamplesSplit ||
		len(samples) < 2*g.cfg.MinSamplesLeaf ||
		impurity <= 1e-12 {
		g.nodes[idx].Value = proportions(dist, total)
		return idx
	}

	best, ok := g.bestSplit(samples, dist, total)
	if !ok {
		g.nodes[idx].Value = proportions(dist, total)
		return idx
	}

	leftDist, leftTotal := g.classWeights(best.left)
	rightDist, rightTotal := g.classWeights(best.right)
	g.importance[best.feature] += total*impurity -
		leftTotal*gini(leftDist, leftTotal) -
		rightTotal*gini(rightDist, rightTotal)

	left := g.build(best.left, depth+1)
	right := g.build(best.right, depth+1)
	g.nodes[idx] = Node{Feature: best.feature, Threshold: best.threshold, Left: left, Right: right}
	return idx
}

// bestSplit keeps drawing features until MaxFeatures non-constant ones have
// been examined and a valid split exists, or every feature has been tried.
func (g *grower) bestSplit(samples []int, dist []float64, total float64) (split, bool) {
	numFeatures := len(g.X[0])
	features := make([]int, numFeatures)
	for i := range features {
		features[i] = i
	}

	best := split{score: -1}
	found := false
	examined := 0
	sorted := make([]int, len(samples))

	for drawn := 0; drawn < numFeatures; drawn++ {
		if examined >= g.cfg.MaxFeatures && found {
			break
		}
		j := drawn + g.rng.IntN(numFeatures-drawn)
		features[drawn], features[j] = features[j], features[drawn]
		f := features[drawn]

		copy(sorted, samples)
		sort.Slice(sorted, func(a, b int) bool {
			va, vb := g.X[sorted[a]][f], g.X[sorted[b]][f]
			if va != vb {
				return va < vb
			}
			return sorted[a] < sorted[b]
		})
		if g.X[sorted[0]][f] == g.X[sorted[len(sorted)-1]][f] {
			continue
		}
		examined++

		leftDist := make([]float64, g.numClasses)
		rightDist := make([]float64, g.numClasses)
		copy(rightDist, dist)
		var leftTotal float64
		rightTotal := total

		for k := 0; k < len(sorted)-1; k++ {
			i := sorted[k]
			w := g.weights[i]
			leftDist[g.y[i]] += w
			rightDist[g.y[i]] -= w
			leftTotal += w
			rightTotal -= w

			a, b := g.X[i][f], g.X[sorted[k+1]][f]
			if a == b {
				continue
			}
			nLeft := k + 1
			if nLeft < g.cfg.MinSamplesLeaf || len(sorted)-nLeft < g.cfg.MinSamplesLeaf {
				continue
			}

			score := -(leftTotal*gini(leftDist, leftTotal) + rightTotal*gini(rightDist, rightTotal))
			if !found || score > best.score {
				threshold := a + (b-a)/2
				if threshold >= b {
					threshold = a
				}
				best = split{feature: f, threshold: threshold, score: score}
				found = true
			}
		}
	}

	if !found {
		return best, false
	}

	for _, i := range samples {
		if g.X[i][best.feature] <= best.threshold {
			best.left = append(best.left, i)
		} else {
			best.right = append(best.right, i)
		}
	}
	return best, true
}

func proportions(dist []float64, total float64) []float64 {
	out := make([]float64, len(dist))
	if total <= 0 {
		return out
	}
	for c, w := range dist {
		out[c] = w / total
	}
	return out
}
