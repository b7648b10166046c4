package analysis

import (
	"testing"

	"github.com/convolens/convolens/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiskBounds(t *testing.T) {
	// Sweep emotion intensities over [0,1] and sentiment over [-1,1]; risk
	// must stay strictly inside (-1, 1).
	steps := []float64{0, 0.25, 0.5, 0.75, 1}
	sentiments := []float64{-1, -0.5, 0, 0.5, 1}
	for _, joy := range steps {
		for _, sad := range steps {
			for _, fear := range steps {
				for _, anger := range steps {
					for _, s := range sentiments {
						risk := Risk(joy, sad, fear, anger, s)
						require.Greater(t, risk, -1.0)
						require.Less(t, risk, 1.0)
					}
				}
			}
		}
	}
}

func TestRiskDirection(t *testing.T) {
	// Pure joy with positive sentiment scores safer than pure fear with
	// negative sentiment.
	safe := Risk(1, 0, 0, 0, 0.9)
	risky := Risk(0, 1, 1, 1, -0.9)
	assert.Greater(t, safe, 0.0)
	assert.Less(t, risky, 0.0)
	assert.Greater(t, safe, risky)
}

func TestRiskNeutral(t *testing.T) {
	assert.InDelta(t, 0, Risk(0, 0, 0, 0, 0), 1e-12)
}

func TestSignedSentiment(t *testing.T) {
	assert.InDelta(t, -0.8, SignedSentiment(model.SentimentNegative, 0.8), 1e-12)
	assert.InDelta(t, 0.8, SignedSentiment("POSITIVE", 0.8), 1e-12)
}

func TestScore(t *testing.T) {
	in := Inputs{
		Joy:            0.1,
		Sad:            0.7,
		Fear:           0.6,
		Anger:          0.2,
		SentimentLabel: model.SentimentNegative,
		SentimentScore: 0.95,
		Entities:       []model.Entity{{Text: "Alice", Label: "PERSON"}},
		Keywords:       []string{"alice", "meeting"},
	}
	res := Score(in)

	assert.InDelta(t, -0.95, res.Sentiment, 1e-12)
	assert.InDelta(t, Risk(0.1, 0.7, 0.6, 0.2, -0.95), res.Risk, 1e-12)
	assert.Equal(t, 0.7, res.SadExtreme)
	assert.Equal(t, in.Entities, res.Entities)
	assert.Equal(t, in.Keywords, res.Keywords)
	assert.Equal(t, model.RiskHigh, res.Level())
}

func TestScoreDeterministic(t *testing.T) {
	in := Inputs{Joy: 0.3, Sad: 0.1, SentimentLabel: "POSITIVE", SentimentScore: 0.4}
	assert.Equal(t, Score(in), Score(in))
}

func TestRiskLevelBands(t *testing.T) {
	tests := []struct {
		risk float64
		want model.RiskLevel
	}{
		{-0.9, model.RiskHigh},
		{-0.4, model.RiskHigh},
		{-0.39, model.RiskMedium},
		{0, model.RiskMedium},
		{0.39, model.RiskMedium},
		{0.4, model.RiskLow},
		{0.9, model.RiskLow},
	}
	for _, tt := range tests {
		res := &model.AnalysisResult{Risk: tt.risk}
		assert.Equal(t, tt.want, res.Level(), "risk %v", tt.risk)
	}
}
