package knowledge

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Searcher using cosine similarity.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks []memoryChunk
}

type memoryChunk struct {
	chunk     Chunk
	embedding []float32
}

var _ Searcher = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Add(c Chunk, embedding []float32) {
	m.mu.Lock()
	m.chunks = append(m.chunks, memoryChunk{chunk: c, embedding: embedding})
	m.mu.Unlock()
}

func (m *MemoryStore) Search(_ context.Context, query []float32, categories []string, minSimilarity float64, limit int) ([]Chunk, error) {
	allowed := make(map[string]bool, len(categories))
	for _, c := range categories {
		allowed[c] = true
	}

	m.mu.RLock()
	var out []Chunk
	for _, mc := range m.chunks {
		if !allowed[mc.chunk.Category] {
			continue
		}
		sim := Cosine(query, mc.embedding)
		if sim < minSimilarity {
			continue
		}
		c := mc.chunk
		c.Similarity = sim
		out = append(out, c)
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is empty or their
// lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
