// Package knowledge retrieves reference passages for a category by embedding similarity.
package knowledge

import (
	"context"
	"fmt"
	"strings"
)

// Chunk is one retrievable passage.
type Chunk struct {
	ID         string  `json:"id"`
	Category   string  `json:"category"`
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Similarity float64 `json:"similarity"`
}

// Searcher runs similarity search over the chunk index.
type Searcher interface {
	Search(ctx context.Context, query []float32, categories []string, minSimilarity float64, limit int) ([]Chunk, error)
}

// FormatBlock renders chunks as a numbered block with source annotations. It returns "" for
// no chunks so templates can guard on it.
func FormatBlock(chunks []Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, strings.TrimSpace(c.Content))
		if c.Source != "" {
			fmt.Fprintf(&b, " (fonte: %s)", c.Source)
		}
	}
	return b.String()
}
