package model

// ConfidenceLevel is the band a prediction's confidence falls into.
type ConfidenceLevel string

// Confidence bands.
const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Band thresholds. The review queue depends on these exact values.
const (
	HighConfidenceThreshold   = 0.80
	MediumConfidenceThreshold = 0.60
)

// LevelForConfidence maps a probability to its confidence band.
func LevelForConfidence(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= HighConfidenceThreshold:
		return ConfidenceHigh
	case confidence >= MediumConfidenceThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Suggestion is one ranked alternative category.
type Suggestion struct {
	Category   string  `json:"category" yaml:"category"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// PredictionResult is the predictor's output for a single transaction.
type PredictionResult struct {
	Category        string          `json:"category"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`
	Suggestions     []Suggestion    `json:"suggestions"`
	Confidence      float64         `json:"confidence"`
}

// Uncategorized is stored when no model is available to score a transaction.
func Uncategorized() PredictionResult {
	return PredictionResult{ConfidenceLevel: ConfidenceLow}
}
