package training

import (
	"math"
	"math/rand/v2"
	"sort"
)

// stratifiedSplit shuffles each class with rng and moves roughly fraction of
// it into the test set. Every class keeps at least one training row, and the
// test set is never empty when a class has two or more rows.
func stratifiedSplit(y []int, numClasses int, fraction float64, rng *rand.Rand) (train, test []int) {
	byClass := make([][]int, numClasses)
	for i, c := range y {
		byClass[c] = append(byClass[c], i)
	}

	largest := -1
	for c, idx := range byClass {
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		if largest < 0 || len(idx) > len(byClass[largest]) {
			largest = c
		}
	}

	for _, idx := range byClass {
		nTest := int(math.Round(fraction * float64(len(idx))))
		nTest = min(nTest, len(idx)-1)
		nTest = max(nTest, 0)
		test = append(test, idx[:nTest]...)
		train = append(train, idx[nTest:]...)
	}

	if len(test) == 0 && largest >= 0 && len(byClass[largest]) >= 2 {
		moved := byClass[largest][0]
		test = append(test, moved)
		for i, v := range train {
			if v == moved {
				train = append(train[:i], train[i+1:]...)
				break
			}
		}
	}

	sort.Ints(train)
	sort.Ints(test)
	return train, test
}

// stratifiedFolds assigns each class's rows round-robin to k folds, keeping
// the original row order inside a class.
func stratifiedFolds(y []int, numClasses, k int) [][]int {
	folds := make([][]int, k)
	seen := make([]int, numClasses)
	for i, c := range y {
		folds[seen[c]%k] = append(folds[seen[c]%k], i)
		seen[c]++
	}
	return folds
}

func subset[T any](values []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = values[j]
	}
	return out
}
