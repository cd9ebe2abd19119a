package agent

import (
	"context"
	"strings"
	"unicode"
)

// Sentiment labels.
const (
	LabelBullish = "bullish"
	LabelBearish = "bearish"
	LabelNeutral = "neutral"
)

// Analysis is the tool's answer.
type Analysis struct {
	Query string  `json:"query"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
	Hits  int     `json:"hits"`
	Payer string  `json:"payer,omitempty"`
}

var lexicon = map[string]float64{
	"bull": 1, "bullish": 1, "moon": 1, "pump": 1, "rally": 1, "gain": 1, "gains": 1,
	"up": 0.5, "buy": 0.5, "breakout": 1, "strong": 0.5, "growth": 0.5, "ath": 1,
	"bear": -1, "bearish": -1, "dump": -1, "crash": -1, "loss": -1, "losses": -1,
	"down": -0.5, "sell": -0.5, "weak": -0.5, "fear": -1, "rug": -1, "hack": -1,
}

// LexiconAnalyzer scores text by summing word weights. Score is normalized
// to [-1, 1] by the number of matched words.
type LexiconAnalyzer struct{}

func (LexiconAnalyzer) Analyze(ctx context.Context, query string) (*Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var sum float64
	hits := 0
	for _, w := range words {
		if weight, ok := lexicon[w]; ok {
			sum += weight
			hits++
		}
	}

	a := &Analysis{Query: query, Label: LabelNeutral, Hits: hits}
	if hits > 0 {
		a.Score = sum / float64(hits)
	}
	switch {
	case a.Score > 0.2:
		a.Label = LabelBullish
	case a.Score < -0.2:
		a.Label = LabelBearish
	}
	return a, nil
}
