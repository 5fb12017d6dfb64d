// Package gallery holds the enrolled identities: one unit-norm representative
// embedding per identity key, plus the stores that persist them.
package gallery

import (
	"errors"
	"fmt"
	"sort"

	"github.com/MrCodeEU/faceroll/pkg/face"
)

// ErrNoGallery is returned when no persisted gallery exists.
var ErrNoGallery = errors.New("no trained gallery found")

// ErrEmptyGallery is returned when a persisted gallery holds no identities.
var ErrEmptyGallery = errors.New("gallery has no enrolled identities")

// ErrInvalidKey is returned for identity keys that normalize to nothing.
var ErrInvalidKey = errors.New("invalid identity key")

// ErrDuplicateKey is returned when persisted keys collide after normalization.
var ErrDuplicateKey = errors.New("duplicate identity key")

// ErrDimensionMismatch is returned when an embedding does not match the
// gallery dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Gallery maps identity keys to representative embeddings. Iteration order is
// always lexicographic by key, which makes matching deterministic.
type Gallery struct {
	entries map[string]face.Embedding
	keys    []string
	dim     int
}

// New returns an empty gallery.
func New() *Gallery {
	return &Gallery{entries: make(map[string]face.Embedding)}
}

// Add normalizes key and embedding and stores them, replacing any previous
// entry for the same identity.
func (g *Gallery) Add(key string, emb face.Embedding) error {
	unit, err := emb.Normalize()
	if err != nil {
		return fmt.Errorf("identity %q: %w", key, err)
	}
	return g.set(key, unit)
}

// set stores emb as is. Used by stores so persisted values round-trip exactly.
func (g *Gallery) set(key string, emb face.Embedding) error {
	k := NormalizeKey(key)
	if k == "" {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if !emb.Valid() {
		return fmt.Errorf("identity %q: %w", k, face.ErrZeroNorm)
	}
	if g.dim != 0 && len(emb) != g.dim {
		return fmt.Errorf("%w: identity %q has %d values, gallery has %d", ErrDimensionMismatch, k, len(emb), g.dim)
	}

	if _, exists := g.entries[k]; !exists {
		i := sort.SearchStrings(g.keys, k)
		g.keys = append(g.keys, "")
		copy(g.keys[i+1:], g.keys[i:])
		g.keys[i] = k
	}
	g.entries[k] = emb.Clone()
	g.dim = len(emb)
	return nil
}

// Remove deletes an identity. It reports whether the identity existed.
func (g *Gallery) Remove(key string) bool {
	k := NormalizeKey(key)
	if _, ok := g.entries[k]; !ok {
		return false
	}
	delete(g.entries, k)
	i := sort.SearchStrings(g.keys, k)
	g.keys = append(g.keys[:i], g.keys[i+1:]...)
	if len(g.keys) == 0 {
		g.dim = 0
	}
	return true
}

// Get returns the embedding for key.
func (g *Gallery) Get(key string) (face.Embedding, bool) {
	emb, ok := g.entries[NormalizeKey(key)]
	return emb, ok
}

// Keys returns the identity keys in lexicographic order.
func (g *Gallery) Keys() []string {
	out := make([]string, len(g.keys))
	copy(out, g.keys)
	return out
}

// Len returns the number of identities.
func (g *Gallery) Len() int {
	return len(g.keys)
}

// Dimension returns the embedding dimension, or 0 for an empty gallery.
func (g *Gallery) Dimension() int {
	return g.dim
}

// Each calls fn for every identity in key order until fn returns false.
func (g *Gallery) Each(fn func(key string, emb face.Embedding) bool) {
	for _, k := range g.keys {
		if !fn(k, g.entries[k]) {
			return
		}
	}
}

// FromMap builds a gallery from persisted values without renormalizing them.
// Two keys that normalize to the same identity are rejected.
func FromMap(m map[string][]float32) (*Gallery, error) {
	g := New()
	seen := make(map[string]string, len(m))
	for k, v := range m {
		nk := NormalizeKey(k)
		if other, ok := seen[nk]; ok {
			return nil, fmt.Errorf("%w: %q and %q are the same identity", ErrDuplicateKey, other, k)
		}
		seen[nk] = k
		if err := g.set(k, face.Embedding(v)); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// ToMap returns a copy of the gallery contents.
func (g *Gallery) ToMap() map[string][]float32 {
	out := make(map[string][]float32, len(g.keys))
	for _, k := range g.keys {
		out[k] = []float32(g.entries[k].Clone())
	}
	return out
}
