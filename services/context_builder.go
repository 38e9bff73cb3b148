package services

import (
	"fmt"
	"strings"

	"github/itish2003/medchat/models"
)

const (
	// ContextSeparator sits between rendered chunks in the context block.
	ContextSeparator = "\n\n---\n\n"
	// DefaultMaxContextChars bounds the joined context string.
	DefaultMaxContextChars = 3000
	unknownSource          = "unknown"
)

// SourceLabel picks the citation label for a chunk: the source metadata,
// then chunk_id, then "unknown".
func SourceLabel(metadata map[string]interface{}) string {
	for _, key := range []string{models.MetadataSource, models.MetadataChunkID} {
		if v, ok := metadata[key]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return unknownSource
}

// BuildContext renders each chunk as "Source: {label}\n{text}", joins them in
// rank order and then clips the joined string to maxChars characters.
func BuildContext(chunks []models.RetrievedChunk, maxChars int) string {
	blocks := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		blocks = append(blocks, fmt.Sprintf("Source: %s\n%s", SourceLabel(ch.Metadata), ch.Text))
	}
	return truncateChars(strings.Join(blocks, ContextSeparator), maxChars)
}

// truncateChars keeps the first max characters (runes) of s.
func truncateChars(s string, max int) string {
	if max < 0 || len(s) <= max {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}
