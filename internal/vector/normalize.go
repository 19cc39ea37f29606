package vector

import "context"

// Index is the narrow contract the core consumes from a vector database.
type Index interface {
	// Upsert replaces-or-inserts the items as one multi-item call.
	Upsert(ctx context.Context, items []Item) error
	// Search returns results with certainty >= request threshold, ranked by
	// certainty descending.
	Search(ctx context.Context, req SearchRequest) ([]SearchResult, error)
	// DeleteByDocument removes every chunk of one document.
	DeleteByDocument(ctx context.Context, documentID string) error
	Ping(ctx context.Context) error
}

// Metric identifies the index's native distance or similarity measure.
type Metric string

const (
	MetricL2     Metric = "l2"
	MetricCosine Metric = "cosine"
	MetricIP     Metric = "ip"
)

// NormalizeCertainty maps a native metric value onto the common [0,1]
// certainty scale, monotonically: a closer vector always yields a higher
// certainty regardless of the underlying metric.
//
// For L2 on unit vectors d² = 2 - 2cos, so certainty (1+cos)/2 = 1 - d²/4.
// Cosine and inner-product scores in [-1,1] map through (1+s)/2 directly.
func NormalizeCertainty(metric Metric, raw float64) float64 {
	var certainty float64
	switch metric {
	case MetricL2:
		certainty = 1 - (raw*raw)/4
	case MetricCosine, MetricIP:
		certainty = (1 + raw) / 2
	default:
		certainty = raw
	}

	if certainty < 0 {
		return 0
	}
	if certainty > 1 {
		return 1
	}
	return certainty
}
