package ingestion

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/knowledgehub/backend/internal/chunking"
	"github.com/knowledgehub/backend/internal/storage/models"
)

// extractMetadata derives content statistics and a content-type
// classification, then merges in the caller's metadata. Caller values win on
// key collision.
func extractMetadata(req Request) (chunking.ContentType, map[string]string) {
	contentType := chunking.ParseContentType(req.ContentType, req.Content)

	metadata := map[string]string{
		"char_count":      strconv.Itoa(len(req.Content)),
		"word_count":      strconv.Itoa(len(strings.Fields(req.Content))),
		"paragraph_count": strconv.Itoa(paragraphCount(req.Content)),
		"content_type":    string(contentType),
	}

	for key, value := range req.Metadata {
		metadata[key] = value
	}

	return contentType, metadata
}

func paragraphCount(content string) int {
	count := 0
	for _, block := range strings.Split(content, "\n\n") {
		if strings.TrimSpace(block) != "" {
			count++
		}
	}
	return count
}

func chunkMetadataJSON(m models.ChunkMetadata) string {
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}
