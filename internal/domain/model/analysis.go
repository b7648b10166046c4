package model

import (
	"encoding/json"
	"fmt"
)

// EmotionKind identifies one of the emotion intensity regressions.
type EmotionKind string

const (
	// EmotionJoy is the joy intensity regression.
	EmotionJoy EmotionKind = "joy"
	// EmotionSad is the sadness intensity regression.
	EmotionSad EmotionKind = "sad"
	// EmotionFear is the fear intensity regression.
	EmotionFear EmotionKind = "fear"
	// EmotionAnger is the anger intensity regression.
	EmotionAnger EmotionKind = "anger"
)

// Emotions lists all emotion kinds in the order workers query them.
func Emotions() []EmotionKind {
	return []EmotionKind{EmotionSad, EmotionFear, EmotionAnger, EmotionJoy}
}

// ClassifyKind identifies a classification sub-task.
type ClassifyKind string

const (
	// ClassifySentiment requests a sentiment label with a confidence score.
	ClassifySentiment ClassifyKind = "sentiment"
	// ClassifyEntities requests named entity extraction.
	ClassifyEntities ClassifyKind = "entities"
)

// SentimentNegative is the label value the provider returns for negative
// sentiment; its score is negated before scoring.
const SentimentNegative = "NEGATIVE"

// Label is a single classification output: a label value, a confidence score,
// and for entity extraction the matched span of text.
type Label struct {
	Value string  `json:"value"`
	Score float64 `json:"score"`
	Text  string  `json:"text,omitempty"`
}

// Entity is a named entity found in a message.
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// AnalysisResult is the composite payload a worker confirms into a task.
type AnalysisResult struct {
	Risk         float64  `json:"risk"`
	Sentiment    float64  `json:"sentiment"`
	JoyExtreme   float64  `json:"joy_extreme"`
	SadExtreme   float64  `json:"sad_extreme"`
	FearExtreme  float64  `json:"fear_extreme"`
	AngerExtreme float64  `json:"anger_extreme"`
	Entities     []Entity `json:"entities"`
	Keywords     []string `json:"keywords"`
}

// ParseAnalysisResult decodes a serialized task result.
func ParseAnalysisResult(raw json.RawMessage) (*AnalysisResult, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty analysis result")
	}
	var res AnalysisResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode analysis result: %w", err)
	}
	return &res, nil
}

// RiskLevel is a presentation band derived from the canonical risk value.
type RiskLevel string

const (
	// RiskHigh flags risk at or below -0.4.
	RiskHigh RiskLevel = "high"
	// RiskMedium covers the middle band.
	RiskMedium RiskLevel = "medium"
	// RiskLow flags risk at or above 0.4.
	RiskLow RiskLevel = "low"
)

// riskBand is the cutoff separating the medium band from high and low.
const riskBand = 0.4

// Level bands the risk value. The numeric value stays canonical; the band is
// presentation only.
func (r *AnalysisResult) Level() RiskLevel {
	switch {
	case r.Risk <= -riskBand:
		return RiskHigh
	case r.Risk >= riskBand:
		return RiskLow
	default:
		return RiskMedium
	}
}
