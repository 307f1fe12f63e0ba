// Package codec provides the structured payload codecs used to encode values
// handed to Send and to decode payloads for typed handlers.
package codec

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Content types of the built-in codecs.
const (
	ContentTypeJSON  = "application/json"
	ContentTypeCBOR  = "application/cbor"
	ContentTypeProto = "application/x-protobuf"
)

// ErrUnknownCodec is returned by Registry.Lookup for an unregistered name.
var ErrUnknownCodec = errors.New("codec: unknown codec")

// Codec marshals typed values to bytes and back.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Registry maps content types and short aliases ("json", "cbor", "proto") to
// codecs. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Codec
}

// NewRegistry returns a registry preloaded with JSON, CBOR and Proto.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]Codec)}
	r.Register("json", JSON())
	r.Register("cbor", CBOR())
	r.Register("proto", Proto())
	return r
}

// Register adds c under its content type and the given aliases.
func (r *Registry) Register(alias string, c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[c.ContentType()] = c
	if alias != "" {
		r.byName[alias] = c
	}
}

// Get returns a codec by content type or alias, or nil.
func (r *Registry) Get(name string) Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// Lookup is Get with an error for unknown names.
func (r *Registry) Lookup(name string) (Codec, error) {
	if c := r.Get(name); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("%w %q (known: %v)", ErrUnknownCodec, name, r.Names())
}

// Names lists every registered key, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry()

// Lookup resolves name against the default registry.
func Lookup(name string) (Codec, error) {
	return defaultRegistry.Lookup(name)
}
