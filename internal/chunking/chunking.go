package chunking

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/knowledgehub/backend/internal/storage/models"
	"github.com/knowledgehub/backend/pkg/logger"
)

type Strategy string

const (
	StrategyFixedSize Strategy = "fixed_size"
	StrategyRecursive Strategy = "recursive"
	StrategySemantic  Strategy = "semantic"
	StrategyHybrid    Strategy = "hybrid"
	StrategyToken     Strategy = "token"
)

var (
	ErrEmptyContent    = errors.New("content is empty after trimming")
	ErrOverlapTooLarge = errors.New("overlap must be smaller than chunk size")
)

// ChunkingError reports a malformed input or a configuration that would not
// terminate. It is never retried automatically.
type ChunkingError struct {
	Err error
}

func (e *ChunkingError) Error() string { return fmt.Sprintf("chunking: %v", e.Err) }
func (e *ChunkingError) Unwrap() error { return e.Err }

// Config selects a strategy and its sizing. ChunkSize is in characters,
// except for StrategyToken where it counts whitespace tokens; Overlap is
// always in characters. An empty Strategy means content-aware selection via
// StrategyFor.
type Config struct {
	Strategy     Strategy
	ChunkSize    int
	Overlap      int
	Separators   []string
	MinCoherence float64
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1000
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if c.MinCoherence <= 0 {
		c.MinCoherence = 0.5
	}
	return c
}

// Chunk is one bounded segment of a document, the atomic unit of retrieval.
type Chunk struct {
	Ordinal  int
	Content  string
	Metadata models.ChunkMetadata
}

type Chunker struct {
	cfg Config
}

func New(cfg Config) *Chunker {
	return &Chunker{cfg: cfg.withDefaults()}
}

// Chunk splits content into an ordered sequence of chunks using the
// configured strategy, or the content-aware default for contentType when no
// strategy is set. Ordinals are contiguous from 0 and no chunk is empty after
// trimming.
func (c *Chunker) Chunk(content string, contentType ContentType) ([]Chunk, *Report, error) {
	cfg := c.cfg

	if strings.TrimSpace(content) == "" {
		return nil, nil, &ChunkingError{Err: ErrEmptyContent}
	}
	if cfg.Overlap >= cfg.ChunkSize {
		return nil, nil, &ChunkingError{Err: ErrOverlapTooLarge}
	}

	if contentType == ContentTypeHTML {
		content = StripHTML(content)
		contentType = ContentTypePlain
		if strings.TrimSpace(content) == "" {
			return nil, nil, &ChunkingError{Err: ErrEmptyContent}
		}
	}

	strategy := cfg.Strategy
	if strategy == "" {
		strategy = StrategyFor(contentType)
	}
	if len(cfg.Separators) == 0 {
		cfg.Separators = DefaultSeparators(strategy, contentType)
	}

	split, ok := strategyTable[strategy]
	if !ok {
		return nil, nil, &ChunkingError{Err: fmt.Errorf("unknown strategy %q", strategy)}
	}

	segments := split(content, cfg)
	segments = mergeUndersized(segments, cfg.ChunkSize)
	segments = applyOverlap(segments, cfg.Overlap)

	chunks := make([]Chunk, 0, len(segments))
	for _, seg := range segments {
		if strings.TrimSpace(seg) == "" {
			continue
		}
		coherence, boundary := scoreCoherence(seg, cfg.ChunkSize)
		chunks = append(chunks, Chunk{
			Ordinal: len(chunks),
			Content: seg,
			Metadata: models.ChunkMetadata{
				CharCount:     len(seg),
				WordCount:     len(strings.Fields(seg)),
				SentenceCount: sentenceCount(seg),
				Coherence:     coherence,
				Strategy:      string(strategy),
				Boundary:      boundary,
			},
		})
	}

	if len(chunks) == 0 {
		return nil, nil, &ChunkingError{Err: ErrEmptyContent}
	}

	report := validate(chunks, cfg.MinCoherence)

	logger.Debug("Content chunked",
		zap.String("strategy", string(strategy)),
		zap.Int("chunks", len(chunks)),
		zap.Float64("avg_coherence", report.AverageCoherence),
		zap.Int("flagged", len(report.Flagged)),
	)

	return chunks, report, nil
}

// mergeUndersized joins adjacent segments whose combined length still fits the
// target size, so one short trailing sentence does not become its own chunk.
func mergeUndersized(segments []string, size int) []string {
	var merged []string
	for _, seg := range segments {
		if strings.TrimSpace(seg) == "" {
			continue
		}
		if n := len(merged); n > 0 && len(merged[n-1])+len(seg) <= size {
			merged[n-1] += seg
			continue
		}
		merged = append(merged, seg)
	}
	return merged
}

// applyOverlap copies the trailing overlap characters of segment n onto the
// head of segment n+1 so referential continuity survives chunk boundaries.
func applyOverlap(segments []string, overlap int) []string {
	if overlap <= 0 || len(segments) < 2 {
		return segments
	}
	out := make([]string, len(segments))
	out[0] = segments[0]
	for i := 1; i < len(segments); i++ {
		prev := []rune(segments[i-1])
		start := len(prev) - overlap
		if start < 0 {
			start = 0
		}
		tail := strings.TrimLeft(string(prev[start:]), " \t")
		out[i] = tail + segments[i]
	}
	return out
}

func hardSplit(text string, size int) []string {
	runes := []rune(text)
	var parts []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}
