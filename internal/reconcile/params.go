package reconcile

import (
	"fmt"
	"net/url"
)

// Params holds the query parameters of a return-trip redirect. Only the
// first value of each key is kept. A Params value is not modified after
// parsing; use Clone to derive a copy.
type Params map[string]string

// Recognized redirect keys.
const (
	KeyToken      = "token"
	KeyCheckoutID = "checkoutId"
	KeyResult     = "result"
	KeyFree       = "free"
	KeySessionID  = "session_id"
)

// ParseParams parses a raw query string.
func ParseParams(rawQuery string) (Params, error) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	return FromValues(values), nil
}

// FromValues converts url.Values, keeping the first value per key.
func FromValues(values url.Values) Params {
	p := make(Params, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			p[k] = vs[0]
		}
	}
	return p
}

// Get returns the value for key. A key present with an empty value is
// reported as absent.
func (p Params) Get(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Missing returns the first key in keys that is absent from p.
func (p Params) Missing(keys []string) (string, bool) {
	for _, k := range keys {
		if _, ok := p.Get(k); !ok {
			return k, true
		}
	}
	return "", false
}

// Clone returns a copy of p.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
