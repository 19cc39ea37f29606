package chunking

import (
	"regexp"
	"strings"
)

// splitFunc turns text into raw segments. Merging of undersized neighbours
// and overlap insertion happen afterwards, shared across strategies.
type splitFunc func(text string, cfg Config) []string

var strategyTable = map[Strategy]splitFunc{
	StrategyFixedSize: splitFixed,
	StrategyRecursive: splitRecursiveEntry,
	StrategySemantic:  splitSemantic,
	StrategyHybrid:    splitHybrid,
	StrategyToken:     splitTokens,
}

// StrategyFor implements the content-aware default selection policy.
func StrategyFor(ct ContentType) Strategy {
	switch ct {
	case ContentTypeStructured, ContentTypeCode:
		return StrategySemantic
	case ContentTypeMarkdown:
		return StrategyHybrid
	default:
		return StrategyRecursive
	}
}

// DefaultSeparators returns the ordered separator list for a strategy when the
// caller did not supply one.
func DefaultSeparators(s Strategy, ct ContentType) []string {
	switch s {
	case StrategySemantic:
		if ct == ContentTypeStructured {
			return []string{"},", "],", "}\n", "\n\n", "\n"}
		}
		return []string{"\nfunc ", "\nclass ", "\ndef ", "\ntype ", "\n\n", "\n"}
	case StrategyHybrid:
		return []string{"\n\n", "\n", ". ", " "}
	default:
		return []string{"\n\n", "\n", ". ", " "}
	}
}

func splitFixed(text string, cfg Config) []string {
	return hardSplit(text, cfg.ChunkSize)
}

func splitRecursiveEntry(text string, cfg Config) []string {
	return splitRecursive(text, cfg.Separators, cfg.ChunkSize)
}

// splitRecursive splits on the first separator, recursing with the remaining
// separators for any segment still over size, and hard-splits once the list
// is exhausted. Separators stay attached to the preceding segment so boundary
// text is never lost.
func splitRecursive(text string, separators []string, size int) []string {
	if len(text) <= size {
		return []string{text}
	}
	if len(separators) == 0 {
		return hardSplit(text, size)
	}

	sep := separators[0]
	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		return splitRecursive(text, separators[1:], size)
	}

	var out []string
	for i, part := range parts {
		if i < len(parts)-1 {
			part += sep
		}
		if strings.TrimSpace(part) == "" {
			continue
		}
		if len(part) > size {
			out = append(out, splitRecursive(part, separators[1:], size)...)
		} else {
			out = append(out, part)
		}
	}
	return out
}

// splitSemantic treats every separator occurrence as a boundary, splits the
// text into atoms at those boundaries, and packs whole atoms up to the target
// size. Atoms are only hard-split when a single atom exceeds the target.
func splitSemantic(text string, cfg Config) []string {
	atoms := []string{text}
	for _, sep := range cfg.Separators {
		var next []string
		for _, atom := range atoms {
			parts := strings.SplitAfter(atom, sep)
			next = append(next, parts...)
		}
		atoms = next
	}

	var segments []string
	var current strings.Builder
	for _, atom := range atoms {
		if atom == "" {
			continue
		}
		if len(atom) > cfg.ChunkSize {
			if current.Len() > 0 {
				segments = append(segments, current.String())
				current.Reset()
			}
			segments = append(segments, hardSplit(atom, cfg.ChunkSize)...)
			continue
		}
		if current.Len()+len(atom) > cfg.ChunkSize && current.Len() > 0 {
			segments = append(segments, current.String())
			current.Reset()
		}
		current.WriteString(atom)
	}
	if current.Len() > 0 {
		segments = append(segments, current.String())
	}
	return segments
}

var headingPattern = regexp.MustCompile(`(?m)^#{1,6}\s`)

// splitHybrid sections markdown at headings first, keeping each heading with
// its section, then splits oversized sections recursively.
func splitHybrid(text string, cfg Config) []string {
	bounds := headingPattern.FindAllStringIndex(text, -1)

	var sections []string
	prev := 0
	for _, b := range bounds {
		if b[0] > prev {
			sections = append(sections, text[prev:b[0]])
		}
		prev = b[0]
	}
	if prev < len(text) {
		sections = append(sections, text[prev:])
	}
	if len(sections) == 0 {
		sections = []string{text}
	}

	var segments []string
	for _, section := range sections {
		if strings.TrimSpace(section) == "" {
			continue
		}
		if len(section) > cfg.ChunkSize {
			segments = append(segments, splitRecursive(section, cfg.Separators, cfg.ChunkSize)...)
		} else {
			segments = append(segments, section)
		}
	}
	return segments
}

// splitTokens packs whitespace tokens into segments of ChunkSize tokens.
func splitTokens(text string, cfg Config) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var segments []string
	for start := 0; start < len(words); start += cfg.ChunkSize {
		end := start + cfg.ChunkSize
		if end > len(words) {
			end = len(words)
		}
		segments = append(segments, strings.Join(words[start:end], " "))
	}
	return segments
}
