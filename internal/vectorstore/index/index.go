// Package index is a flat exact-search vector index over document chunks.
//
// Vectors are stored L2-normalised so a dot product is the cosine similarity;
// higher scores are closer.
package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/feichai0017/pdf-rag/internal/embedding"
	"github.com/feichai0017/pdf-rag/internal/models"
)

const (
	// DefaultK is the number of results returned when Search gets k <= 0.
	DefaultK = 4

	// BatchSize bounds how many chunks are sent to the embedder per call.
	BatchSize = 32
)

// Index holds chunks and their vectors.
type Index struct {
	mu        sync.RWMutex
	emb       embedding.Embedder
	dimension int
	chunks    []models.Chunk
	vectors   [][]float32
}

// Build embeds every chunk and returns an index over them. No partial index
// is ever returned.
func Build(ctx context.Context, chunks []models.Chunk, emb embedding.Embedder) (*Index, error) {
	if len(chunks) == 0 {
		return nil, models.ErrEmptyInput
	}

	ix := &Index{
		emb:     emb,
		chunks:  make([]models.Chunk, 0, len(chunks)),
		vectors: make([][]float32, 0, len(chunks)),
	}

	for start := 0; start < len(chunks); start += BatchSize {
		end := start + BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := emb.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingFailure, err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("%w: got %d vectors for %d chunks", models.ErrEmbeddingFailure, len(vectors), len(texts))
		}

		for i, v := range vectors {
			if ix.dimension == 0 {
				ix.dimension = len(v)
			}
			if len(v) == 0 || len(v) != ix.dimension {
				return nil, fmt.Errorf("%w: chunk %d has dimension %d, want %d",
					models.ErrEmbeddingFailure, start+i, len(v), ix.dimension)
			}
			ix.vectors = append(ix.vectors, normalize(v))
			ix.chunks = append(ix.chunks, batch[i])
		}
	}

	return ix, nil
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks)
}

// Dimension returns the vector size, zero for an empty index.
func (ix *Index) Dimension() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dimension
}

// Merge appends every vector of other to ix. other must not be used afterwards.
func (ix *Index) Merge(other *Index) error {
	if other == nil || ix == other {
		return nil
	}

	other.mu.RLock()
	chunks, vectors, dim := other.chunks, other.vectors, other.dimension
	other.mu.RUnlock()

	if len(chunks) == 0 {
		return nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dimension != 0 && ix.dimension != dim {
		return fmt.Errorf("cannot merge index of dimension %d into %d", dim, ix.dimension)
	}
	ix.dimension = dim
	ix.chunks = append(ix.chunks, chunks...)
	ix.vectors = append(ix.vectors, vectors...)
	if ix.emb == nil {
		ix.emb = other.emb
	}
	return nil
}

// Search embeds text and returns the k closest chunks, closest first.
// Equal scores keep insertion order.
func (ix *Index) Search(ctx context.Context, text string, k int) ([]models.SearchResult, error) {
	if ix.Len() == 0 {
		return []models.SearchResult{}, nil
	}
	if ix.emb == nil {
		return nil, fmt.Errorf("index has no embedder")
	}

	q, err := ix.emb.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingFailure, err)
	}
	return ix.SearchVector(q, k)
}

// SearchVector is Search for an already embedded query.
func (ix *Index) SearchVector(query []float32, k int) ([]models.SearchResult, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.vectors) == 0 {
		return []models.SearchResult{}, nil
	}
	if len(query) != ix.dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), ix.dimension)
	}
	if k <= 0 {
		k = DefaultK
	}

	q := normalize(query)
	scores := make([]float64, len(ix.vectors))
	for i, v := range ix.vectors {
		scores[i] = dot(v, q)
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if k > len(order) {
		k = len(order)
	}
	results := make([]models.SearchResult, k)
	for i := 0; i < k; i++ {
		j := order[i]
		results[i] = models.SearchResult{Chunk: ix.chunks[j], Score: scores[j]}
	}
	return results, nil
}

func normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		copy(out, v)
		return out
	}
	inv := 1 / math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
