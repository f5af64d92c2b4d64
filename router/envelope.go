package router

import "time"

// Instance is a value produced or consumed through a router. The router only
// relies on the name (used as the request key when saving) and on the
// advisory expiration carried by the value itself.
type Instance interface {
	Name() string
	Expiration() time.Time
	SetExpiration(time.Time)
	Expired(now time.Time) bool
}

// Envelope carries the expiration of a value. Embed it in model types to
// satisfy the expiration half of Instance.
type Envelope struct {
	ExpiresAt time.Time `json:"expiration,omitempty" yaml:"expiration,omitempty" msgpack:"expiration,omitempty"`
}

// Expiration returns the absolute expiration time, zero when unset.
func (e *Envelope) Expiration() time.Time {
	return e.ExpiresAt
}

// SetExpiration sets the absolute expiration time.
func (e *Envelope) SetExpiration(t time.Time) {
	e.ExpiresAt = t
}

// Expired is true iff an expiration is set and lies before now.
func (e *Envelope) Expired(now time.Time) bool {
	if e.ExpiresAt.IsZero() {
		return false
	}
	return e.ExpiresAt.Before(now)
}

// Model describes the value type a router produces and consumes. Backends
// that materialize values (plain, yaml, redis, queue, the HTTP front end)
// ask the model for an empty instance to decode into.
type Model interface {
	NewInstance(key string) Instance
}

// ModelFunc adapts a constructor function to Model.
type ModelFunc func(key string) Instance

// NewInstance calls f(key).
func (f ModelFunc) NewInstance(key string) Instance {
	return f(key)
}
