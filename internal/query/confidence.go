package query

import "strings"

const (
	uncertaintyFactor = 0.7
	citationFactor    = 1.1
)

// scoreConfidence estimates how trustworthy an answer is. The base is the
// mean retrieval certainty; the answer text then adjusts it: hedging language
// discounts it, explicit document citations boost it. The result is clamped
// to [0, 1].
func scoreConfidence(sources []Source, answer string, uncertaintyMarkers, citationMarkers []string) float64 {
	score := meanCertainty(sources)

	lowered := strings.ToLower(answer)
	if containsAny(lowered, uncertaintyMarkers) {
		score *= uncertaintyFactor
	}
	if containsAny(lowered, citationMarkers) {
		score *= citationFactor
	}

	return clamp(score)
}

func meanCertainty(sources []Source) float64 {
	if len(sources) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range sources {
		sum += s.Certainty
	}
	return sum / float64(len(sources))
}

func containsAny(text string, markers []string) bool {
	for _, marker := range markers {
		if marker == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
