package training

import (
	"math"
	"sort"

	"github.com/Veraticus/spice-ledger/internal/model"
)

func accuracy(actual, predicted []int) float64 {
	if len(actual) == 0 {
		return 0
	}
	correct := 0
	for i := range actual {
		if actual[i] == predicted[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(actual))
}

// classificationReport computes precision, recall and F1 per category.
// Undefined ratios are reported as zero.
func classificationReport(actual, predicted []int, categories []string) []model.CategoryReport {
	k := len(categories)
	tp := make([]int, k)
	fp := make([]int, k)
	fn := make([]int, k)
	support := make([]int, k)

	for i := range actual {
		support[actual[i]]++
		if actual[i] == predicted[i] {
			tp[actual[i]]++
			continue
		}
		fp[predicted[i]]++
		fn[actual[i]]++
	}

	report := make([]model.CategoryReport, k)
	for c := range k {
		r := model.CategoryReport{Category: categories[c], Support: support[c]}
		if tp[c]+fp[c] > 0 {
			r.Precision = float64(tp[c]) / float64(tp[c]+fp[c])
		}
		if tp[c]+fn[c] > 0 {
			r.Recall = float64(tp[c]) / float64(tp[c]+fn[c])
		}
		if r.Precision+r.Recall > 0 {
			r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
		}
		report[c] = r
	}
	return report
}

// weightedF1 averages per-category F1 weighted by support.
func weightedF1(report []model.CategoryReport) float64 {
	var sum float64
	var total int
	for _, r := range report {
		sum += r.F1 * float64(r.Support)
		total += r.Support
	}
	if total == 0 {
		return 0
	}
	return sum / float64(total)
}

// meanStd returns the mean and population standard deviation.
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(variance / float64(len(values)))
}

func topFeatures(names []string, importances []float64, n int) []model.FeatureImportance {
	idx := make([]int, len(importances))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return importances[idx[a]] > importances[idx[b]]
	})

	n = min(n, len(idx))
	out := make([]model.FeatureImportance, 0, n)
	for _, i := range idx[:n] {
		out = append(out, model.FeatureImportance{Feature: names[i], Importance: importances[i]})
	}
	return out
}
