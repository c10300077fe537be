package sentiment

import (
	"fmt"
	"strings"
)

// Label is the three-way sentiment classification of a message.
type Label string

const (
	Positive Label = "POSITIVE"
	Negative Label = "NEGATIVE"
	Neutral  Label = "NEUTRAL"
)

// Labels lists every valid label.
var Labels = []Label{Positive, Negative, Neutral}

// ParseLabel maps a case-insensitive label name to a Label.
func ParseLabel(s string) (Label, error) {
	switch Label(strings.ToUpper(strings.TrimSpace(s))) {
	case Positive:
		return Positive, nil
	case Negative:
		return Negative, nil
	case Neutral:
		return Neutral, nil
	}
	return "", fmt.Errorf("unknown sentiment %q (expected POSITIVE, NEGATIVE or NEUTRAL)", s)
}

// Score thresholds. Both comparisons are strict.
const (
	PositiveThreshold = 0.6
	NegativeThreshold = 0.4

	// NeutralScore is returned when no lexicon entry occurs in the text.
	NeutralScore = 0.5
)

var (
	defaultPositive = []string{"bom", "ótimo", "excelente", "feliz", "amor", "gosto", "maravilhoso"}
	defaultNegative = []string{"ruim", "péssimo", "ódio", "triste", "problema", "erro", "terrível"}
)

// Result is the outcome of analyzing one text.
type Result struct {
	Label Label
	Score float64
}

// Scorer is a lexicon-based sentiment classifier. It is safe for concurrent use.
type Scorer struct {
	positive []string
	negative []string
}

// New creates a Scorer with custom lexicons. Entries are lower-cased.
func New(positive, negative []string) *Scorer {
	return &Scorer{
		positive: lowerAll(positive),
		negative: lowerAll(negative),
	}
}

var defaultScorer = New(defaultPositive, defaultNegative)

// Default returns the scorer built from the standard Portuguese lexicons.
func Default() *Scorer {
	return defaultScorer
}

// Score returns a value in [0, 1]; higher is more positive.
//
// Each lexicon entry counts once if it appears anywhere in the lower-cased
// text. Matching is plain substring containment, so "bom" also matches
// inside "bombom".
func (s *Scorer) Score(text string) float64 {
	lower := strings.ToLower(text)

	pos := countHits(lower, s.positive)
	neg := countHits(lower, s.negative)

	total := pos + neg
	if total == 0 {
		return NeutralScore
	}
	return float64(pos) / float64(total)
}

// Analyze scores the text and derives its label.
func (s *Scorer) Analyze(text string) Result {
	score := s.Score(text)
	return Result{Label: Classify(score), Score: score}
}

// Classify maps a score to a label.
func Classify(score float64) Label {
	switch {
	case score > PositiveThreshold:
		return Positive
	case score < NegativeThreshold:
		return Negative
	default:
		return Neutral
	}
}

// Score scores text with the default scorer.
func Score(text string) float64 {
	return defaultScorer.Score(text)
}

// Analyze analyzes text with the default scorer.
func Analyze(text string) Result {
	return defaultScorer.Analyze(text)
}

func countHits(text string, lexicon []string) int {
	n := 0
	for _, word := range lexicon {
		if word != "" && strings.Contains(text, word) {
			n++
		}
	}
	return n
}

func lowerAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToLower(w)
	}
	return out
}
