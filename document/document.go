// Package document provides a schemaless model usable by any router: a named
// bag of data plus the router envelope.
package document

import (
	"maps"

	"github.com/goliatone/go-repository-router/router"
)

// Document is a named value with free-form data.
type Document struct {
	router.Envelope `yaml:",inline" msgpack:",inline"`

	Key  string         `json:"name" yaml:"name" msgpack:"name"`
	Data map[string]any `json:"data,omitempty" yaml:"data,omitempty" msgpack:"data,omitempty"`
}

// New returns an empty document named key.
func New(key string) *Document {
	return &Document{Key: key, Data: map[string]any{}}
}

// Name implements router.Instance.
func (d *Document) Name() string { return d.Key }

// Get returns a single data field.
func (d *Document) Get(field string) (any, bool) {
	v, ok := d.Data[field]
	return v, ok
}

// Set stores a single data field.
func (d *Document) Set(field string, value any) {
	if d.Data == nil {
		d.Data = map[string]any{}
	}
	d.Data[field] = value
}

// Clone returns a copy with its own top-level data map.
func (d *Document) Clone() *Document {
	out := &Document{Key: d.Key, Data: maps.Clone(d.Data)}
	out.SetExpiration(d.Expiration())
	return out
}

// Model builds documents for routers.
var Model router.Model = router.ModelFunc(func(key string) router.Instance {
	return New(key)
})
