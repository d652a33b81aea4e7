package llm

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const DefaultLocalDimensions = 384

// LocalEmbedder builds deterministic bag-of-features vectors without a remote model.
// It is meant for development, tests and air-gapped demos: similar wording yields similar
// vectors, but there is no semantic understanding.
type LocalEmbedder struct {
	dimensions int
}

// NewLocalEmbedder creates a local embedder. Dimensions below 64 fall back to the default.
func NewLocalEmbedder(dimensions int) *LocalEmbedder {
	if dimensions < 64 {
		dimensions = DefaultLocalDimensions
	}
	return &LocalEmbedder{dimensions: dimensions}
}

// Dimensions returns the vector length
func (l *LocalEmbedder) Dimensions() int {
	return l.dimensions
}

// Embed never fails and never blocks on I/O
func (l *LocalEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = l.embedOne(text)
	}
	return vectors, nil
}

// embedOne hashes lowercased word tokens and character trigrams into buckets, then L2-normalizes.
// The first 37 slots hold character frequencies.
func (l *LocalEmbedder) embedOne(text string) []float32 {
	embedding := make([]float32, l.dimensions)
	text = strings.ToLower(text)

	const chars = "abcdefghijklmnopqrstuvwxyz0123456789 "
	runes := []rune(text)
	if len(runes) > 0 {
		for i, char := range chars {
			embedding[i] = float32(strings.Count(text, string(char))) / float32(len(runes))
		}
	}

	offset := len(chars)
	buckets := l.dimensions - offset

	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for _, token := range tokens {
		embedding[offset+bucket(token, buckets)] += 1.0
		for _, part := range strings.Split(token, "_") {
			if part != "" && part != token {
				embedding[offset+bucket(part, buckets)] += 0.5
			}
		}
		padded := []rune(" " + token + " ")
		for i := 0; i+3 <= len(padded); i++ {
			embedding[offset+bucket(string(padded[i:i+3]), buckets)] += 0.25
		}
	}

	var magnitude float64
	for _, v := range embedding {
		magnitude += float64(v) * float64(v)
	}
	if magnitude > 0 {
		norm := float32(1.0 / math.Sqrt(magnitude))
		for i := range embedding {
			embedding[i] *= norm
		}
	}
	return embedding
}

func bucket(feature string, buckets int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(feature))
	return int(h.Sum32() % uint32(buckets))
}
