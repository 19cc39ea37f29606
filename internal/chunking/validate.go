package chunking

import (
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"
)

// Report is the quality validation result for one chunking run. Chunks below
// the minimum coherence are flagged, never silently dropped.
type Report struct {
	ChunkCount       int
	AverageCoherence float64
	// Flagged holds the ordinals of chunks scoring below the minimum.
	Flagged []int
}

func validate(chunks []Chunk, minCoherence float64) *Report {
	report := &Report{ChunkCount: len(chunks)}

	var total float64
	for _, chunk := range chunks {
		total += chunk.Metadata.Coherence
		if chunk.Metadata.Coherence < minCoherence {
			report.Flagged = append(report.Flagged, chunk.Ordinal)
		}
	}
	if len(chunks) > 0 {
		report.AverageCoherence = total / float64(len(chunks))
	}

	return report
}

// scoreCoherence rates how well a chunk respects natural text structure:
// whether it ends on a sentence or paragraph boundary, how far its length
// deviates from the target, and how much of it is structural noise rather
// than content. The returned boundary label is stored in chunk metadata.
func scoreCoherence(content string, target int) (float64, string) {
	trimmedRight := strings.TrimRight(content, " \t")

	boundaryScore := 0.3
	boundary := "hard"
	switch {
	case strings.HasSuffix(trimmedRight, "\n"):
		boundaryScore = 1.0
		boundary = "paragraph"
	case endsWithSentencePunct(trimmedRight):
		boundaryScore = 1.0
		boundary = "sentence"
	case strings.HasSuffix(trimmedRight, ","), strings.HasSuffix(trimmedRight, ";"):
		boundaryScore = 0.6
		boundary = "clause"
	}

	deviation := float64(len(content)-target) / float64(target)
	if deviation < 0 {
		deviation = -deviation
	}
	lengthScore := 1.0 - deviation
	if lengthScore < 0 {
		lengthScore = 0
	}

	contentScore := signalRatio(content)

	score := 0.5*boundaryScore + 0.3*lengthScore + 0.2*contentScore
	if score > 1 {
		score = 1
	}
	return score, boundary
}

func endsWithSentencePunct(s string) bool {
	for _, suffix := range []string{".", "!", "?", ".\"", "!\"", "?\"", "。", "：", ":"} {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

// signalRatio is the fraction of letters and digits among all characters; a
// chunk of mostly whitespace or delimiter soup scores low.
func signalRatio(s string) float64 {
	if s == "" {
		return 0
	}
	signal := 0
	total := 0
	for _, r := range s {
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			signal++
		}
	}
	return float64(signal) / float64(total)
}

// sentenceCount segments the chunk with prose. Falls back to a terminal
// punctuation count when segmentation fails.
func sentenceCount(text string) int {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err == nil {
		if n := len(doc.Sentences()); n > 0 {
			return n
		}
	}

	n := strings.Count(text, ". ") + strings.Count(text, "! ") + strings.Count(text, "? ")
	if n == 0 && strings.TrimSpace(text) != "" {
		n = 1
	}
	return n
}
