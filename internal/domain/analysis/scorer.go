// Package analysis holds the pure scoring and text normalization functions of
// the pipeline. Nothing in this package performs I/O.
package analysis

import (
	"math"

	"github.com/convolens/convolens/internal/domain/model"
)

// Inputs collects the raw inference outputs for one message.
type Inputs struct {
	Joy   float64
	Sad   float64
	Fear  float64
	Anger float64

	// SentimentLabel and SentimentScore come from the sentiment classifier;
	// the score is unsigned and the label carries the polarity.
	SentimentLabel string
	SentimentScore float64

	Entities []model.Entity
	Keywords []string
}

// SignedSentiment applies the label polarity to the classifier score.
func SignedSentiment(label string, score float64) float64 {
	if label == model.SentimentNegative {
		return -score
	}
	return score
}

// Risk maps emotion intensities and a signed sentiment onto a bounded scalar.
// Both tanh applications keep intermediates in (-1, 1); the outer one
// compresses the sum of the two signals back into a single comparable scale.
func Risk(joy, sad, fear, anger, sentiment float64) float64 {
	e := joy - sad - fear - anger
	return math.Tanh(math.Tanh(e) + sentiment)
}

// Score normalizes raw inference outputs into a result record. Deterministic
// given its inputs.
func Score(in Inputs) *model.AnalysisResult {
	sentiment := SignedSentiment(in.SentimentLabel, in.SentimentScore)
	return &model.AnalysisResult{
		Risk:         Risk(in.Joy, in.Sad, in.Fear, in.Anger, sentiment),
		Sentiment:    sentiment,
		JoyExtreme:   in.Joy,
		SadExtreme:   in.Sad,
		FearExtreme:  in.Fear,
		AngerExtreme: in.Anger,
		Entities:     in.Entities,
		Keywords:     in.Keywords,
	}
}
