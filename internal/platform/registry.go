package platform

import (
	"fmt"
	"net/url"
	"strings"
)

// GenericID identifies the catch-all platform every registry carries.
const GenericID = "generic"

// Registry holds the closed set of dispatchable platforms. Resolution walks
// descriptors in registration order and the generic platform is always last,
// so a specific platform can never be shadowed by the fallback.
type Registry struct {
	ordered []*Descriptor
	byID    map[string]*Descriptor
}

// NewRegistry validates and indexes the provided descriptors. Exactly one
// generic descriptor is required; it is moved to the end regardless of where
// it appears in the input. Duplicate IDs are construction errors.
func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	reg := &Registry{byID: make(map[string]*Descriptor, len(descriptors))}
	var generic *Descriptor

	for i := range descriptors {
		d := descriptors[i]
		d.ID = strings.ToLower(strings.TrimSpace(d.ID))
		if d.ID == "" {
			return nil, fmt.Errorf("platform registry: descriptor %d has empty id", i)
		}
		if _, exists := reg.byID[d.ID]; exists {
			return nil, fmt.Errorf("platform registry: duplicate platform id %q", d.ID)
		}
		if d.Auth == "" {
			d.Auth = AuthNone
		}
		if _, err := ParseAuthRequirement(string(d.Auth)); err != nil {
			return nil, fmt.Errorf("platform registry: %s: %w", d.ID, err)
		}
		entry := &d
		reg.byID[d.ID] = entry
		if d.ID == GenericID {
			if generic != nil {
				return nil, fmt.Errorf("platform registry: duplicate generic platform")
			}
			generic = entry
			continue
		}
		reg.ordered = append(reg.ordered, entry)
	}

	if generic == nil {
		return nil, fmt.Errorf("platform registry: missing generic platform")
	}
	reg.ordered = append(reg.ordered, generic)
	return reg, nil
}

// Resolve maps a raw URL to the first matching platform in registration
// order. The generic platform matches any parseable URL, so a nil error
// always comes with a non-nil descriptor. Resolve has no side effects.
func (r *Registry) Resolve(rawURL string) (*Descriptor, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty url", ErrInvalidURL)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, trimmed)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host in %s", ErrInvalidURL, trimmed)
	}

	for _, d := range r.ordered {
		if d.ID == GenericID {
			return d, nil
		}
		for _, m := range d.Matchers {
			if m.matches(parsed) {
				return d, nil
			}
		}
	}
	// Unreachable: construction guarantees a trailing generic descriptor.
	return nil, fmt.Errorf("%w: no platform matched %s", ErrInvalidURL, trimmed)
}

// Lookup returns the descriptor for a platform id.
func (r *Registry) Lookup(id string) (*Descriptor, bool) {
	d, ok := r.byID[strings.ToLower(strings.TrimSpace(id))]
	return d, ok
}

// Descriptors returns the registered platforms in resolution order.
func (r *Registry) Descriptors() []*Descriptor {
	out := make([]*Descriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}
