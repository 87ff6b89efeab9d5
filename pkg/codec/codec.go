// Copyright (c) 2025 A Bit of Help, Inc.

// Package codec defines the contract every compression algorithm adapter satisfies
// and the fixed registry that maps container algorithm ids to adapters.
//
// The registry is built once from a known list and passed explicitly to the
// components that need it, so tests can swap in synthetic codecs with
// controllable timing.
package codec

import (
	"fmt"
)

// Codec is a stateless compression algorithm adapter.
//
// For any buffer B, Decompress(Compress(B)) must reconstruct B. No guarantee is
// made across different codecs. Implementations must be safe for concurrent use,
// since a codec may be raced against itself in consecutive rounds while an
// abandoned call is still running
type Codec interface {
	// ID is the byte stored in the container header for this codec
	ID() byte

	// Name is a human readable identifier used in logs and summaries
	Name() string

	// Compress returns a newly allocated compressed copy of data
	Compress(data []byte) ([]byte, error)

	// Decompress reverses Compress
	Decompress(data []byte) ([]byte, error)
}

// Registry is an ordered, read-only set of codecs keyed by id
type Registry struct {
	codecs []Codec
	byID   map[byte]Codec
}

// NewRegistry builds a registry from codecs in the given order.
// It fails if a codec is nil or two codecs share an id
func NewRegistry(codecs ...Codec) (*Registry, error) {
	r := &Registry{
		codecs: make([]Codec, 0, len(codecs)),
		byID:   make(map[byte]Codec, len(codecs)),
	}

	for i, c := range codecs {
		if c == nil {
			return nil, fmt.Errorf("codec at position %d is nil", i)
		}
		if existing, ok := r.byID[c.ID()]; ok {
			return nil, fmt.Errorf("duplicate codec id %d: %s and %s", c.ID(), existing.Name(), c.Name())
		}
		r.byID[c.ID()] = c
		r.codecs = append(r.codecs, c)
	}

	return r, nil
}

// MustNewRegistry is like NewRegistry but panics on an invalid codec list
func MustNewRegistry(codecs ...Codec) *Registry {
	r, err := NewRegistry(codecs...)
	if err != nil {
		panic(fmt.Sprintf("codec: %v", err))
	}
	return r
}

// Lookup returns the codec registered under id
func (r *Registry) Lookup(id byte) (Codec, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// All returns the codecs in registration order. The returned slice is a copy
func (r *Registry) All() []Codec {
	out := make([]Codec, len(r.codecs))
	copy(out, r.codecs)
	return out
}

// Len returns the number of registered codecs
func (r *Registry) Len() int {
	return len(r.codecs)
}

// Name returns the name of the codec registered under id, or a placeholder
// naming the raw id when it is unknown
func (r *Registry) Name(id byte) string {
	if c, ok := r.byID[id]; ok {
		return c.Name()
	}
	return fmt.Sprintf("unknown(%d)", id)
}
