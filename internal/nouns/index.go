package nouns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"golang.org/x/sync/errgroup"

	"askdb/internal/metrics"
)

const (
	DefaultK           = 5
	defaultBatchSize   = 64
	defaultConcurrency = 4
)

// ErrDimensionMismatch is returned when the embedder produces vectors of
// differing lengths.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Index is a nearest-neighbour index over the proper nouns of one database.
// Values are embedded lowercased and stored unit-normalized, so cosine
// similarity is a dot product.
type Index struct {
	embedder    embeddings.Embedder
	logger      *slog.Logger
	batchSize   int
	concurrency int

	mu      sync.RWMutex
	values  []string
	vectors [][]float32
	builtAt time.Time
}

// IndexOption configures an Index.
type IndexOption func(*Index)

func WithBatchSize(n int) IndexOption {
	return func(ix *Index) {
		if n > 0 {
			ix.batchSize = n
		}
	}
}

func WithConcurrency(n int) IndexOption {
	return func(ix *Index) {
		if n > 0 {
			ix.concurrency = n
		}
	}
}

func WithLogger(logger *slog.Logger) IndexOption {
	return func(ix *Index) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

// NewIndex returns an empty index backed by embedder.
func NewIndex(embedder embeddings.Embedder, opts ...IndexOption) *Index {
	ix := &Index{
		embedder:    embedder,
		logger:      slog.Default(),
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Build replaces the contents of the index with values. On error the previous
// contents are kept.
func (ix *Index) Build(ctx context.Context, values []string) error {
	start := time.Now()

	batches := make([][]string, 0, len(values)/ix.batchSize+1)
	for i := 0; i < len(values); i += ix.batchSize {
		end := min(i+ix.batchSize, len(values))
		batch := make([]string, 0, end-i)
		for _, v := range values[i:end] {
			batch = append(batch, strings.ToLower(v))
		}
		batches = append(batches, batch)
	}

	results := make([][][]float32, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			vecs, err := ix.embedder.EmbedDocuments(gctx, batch)
			if err != nil {
				return fmt.Errorf("failed to embed batch %d: %w", i, err)
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("embedder returned %d vectors for %d values", len(vecs), len(batch))
			}
			results[i] = vecs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	vectors := make([][]float32, 0, len(values))
	dim := -1
	for _, vecs := range results {
		for _, v := range vecs {
			if dim < 0 {
				dim = len(v)
			} else if len(v) != dim {
				return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dim)
			}
			vectors = append(vectors, normalize(v))
		}
	}

	ix.mu.Lock()
	ix.values = append([]string(nil), values...)
	ix.vectors = vectors
	ix.builtAt = time.Now()
	ix.mu.Unlock()

	metrics.RecordIndexBuild(time.Since(start))
	ix.logger.Info("Proper noun index built",
		"values", len(values),
		"batches", len(batches),
		"elapsed", time.Since(start))
	return nil
}

// Search returns up to k indexed values closest to query, best first. The
// query is lowercased before embedding. k <= 0 means DefaultK.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]string, error) {
	if k <= 0 {
		k = DefaultK
	}

	ix.mu.RLock()
	values, vectors := ix.values, ix.vectors
	ix.mu.RUnlock()

	if len(values) == 0 {
		return []string{}, nil
	}

	q, err := ix.embedder.EmbedQuery(ctx, strings.ToLower(strings.TrimSpace(query)))
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(q) != len(vectors[0]) {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(q), len(vectors[0]))
	}
	q = normalize(q)

	type scored struct {
		idx   int
		score float32
	}
	scores := make([]scored, len(vectors))
	for i, v := range vectors {
		scores[i] = scored{idx: i, score: dot(q, v)}
	}
	sort.SliceStable(scores, func(a, b int) bool {
		return scores[a].score > scores[b].score
	})

	k = min(k, len(scores))
	out := make([]string, 0, k)
	for _, s := range scores[:k] {
		out = append(out, values[s.idx])
	}
	return out, nil
}

// Len returns the number of indexed values.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.values)
}

// Values returns a copy of the indexed values.
func (ix *Index) Values() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]string(nil), ix.values...)
}

// BuiltAt returns when the index was last built, or the zero time.
func (ix *Index) BuiltAt() time.Time {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.builtAt
}

// Rebuild collects the proper nouns of src and rebuilds the index from them.
func (ix *Index) Rebuild(ctx context.Context, src Source, stripNumbers bool) (int, error) {
	values := Collect(ctx, src, stripNumbers, ix.logger)
	if err := ix.Build(ctx, values); err != nil {
		return 0, err
	}
	return len(values), nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	norm := math.Sqrt(sum)
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
