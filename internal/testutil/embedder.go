package testutil

import (
	"context"
	"errors"
	"hash/fnv"
	"sync/atomic"
)

const trigramDims = 256

// TrigramEmbedder embeds text as a hashed bag of character trigrams, so
// near-spellings land close together. It satisfies embeddings.Embedder.
type TrigramEmbedder struct {
	// FailAfter makes EmbedDocuments fail once this many calls succeeded; 0 disables.
	FailAfter int32
	calls     atomic.Int32
	Queries   atomic.Int32
}

func (e *TrigramEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	n := e.calls.Add(1)
	if e.FailAfter > 0 && n > e.FailAfter {
		return nil, errors.New("embedding service unavailable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = trigramVector(t)
	}
	return out, nil
}

func (e *TrigramEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.Queries.Add(1)
	return trigramVector(text), nil
}

func trigramVector(text string) []float32 {
	v := make([]float32, trigramDims)
	padded := []rune("  " + text + "  ")
	for i := 0; i+3 <= len(padded); i++ {
		h := fnv.New32a()
		h.Write([]byte(string(padded[i : i+3])))
		v[h.Sum32()%trigramDims]++
	}
	return v
}
