package features

import (
	"errors"
	"fmt"
	"slices"
)

// State is the serializable fitted state of an Extractor.
type State struct {
	Vocabulary           []string  `json:"vocabulary"`
	IDF                  []float64 `json:"idf"`
	NumericFeatures      []string  `json:"numeric_features"`
	MaxVocabulary        int       `json:"max_vocabulary"`
	MinDocumentFrequency int       `json:"min_document_frequency"`
	NgramMax             int       `json:"ngram_max"`
}

// State exports the fitted vocabulary and weights.
func (e *Extractor) State() (State, error) {
	if !e.fitted {
		return State{}, ErrNotFitted
	}
	return State{
		Vocabulary:           slices.Clone(e.vocabulary),
		IDF:                  slices.Clone(e.idf),
		NumericFeatures:      slices.Clone(NumericFeatures),
		MaxVocabulary:        e.cfg.MaxVocabulary,
		MinDocumentFrequency: e.cfg.MinDocumentFrequency,
		NgramMax:             2,
	}, nil
}

// FromState rebuilds a fitted extractor. The state must come from an
// extractor with the same numeric feature layout.
func FromState(s State) (*Extractor, error) {
	if len(s.Vocabulary) != len(s.IDF) {
		return nil, fmt.Errorf("vocabulary has %d terms but %d idf weights", len(s.Vocabulary), len(s.IDF))
	}
	if !slices.Equal(s.NumericFeatures, NumericFeatures) {
		return nil, fmt.Errorf("unsupported numeric features %v", s.NumericFeatures)
	}
	if s.NgramMax != 2 {
		return nil, fmt.Errorf("unsupported ngram range 1..%d", s.NgramMax)
	}

	e := NewExtractor(Config{MaxVocabulary: s.MaxVocabulary, MinDocumentFrequency: s.MinDocumentFrequency})
	e.vocabulary = slices.Clone(s.Vocabulary)
	e.idf = slices.Clone(s.IDF)
	e.index = make(map[string]int, len(s.Vocabulary))
	for i, term := range s.Vocabulary {
		if _, dup := e.index[term]; dup {
			return nil, errors.New("duplicate vocabulary term " + term)
		}
		e.index[term] = i
	}
	e.fitted = true
	return e, nil
}
